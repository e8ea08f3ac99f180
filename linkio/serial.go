package linkio

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-nodebus/logger"
)

// SerialByteTime returns the time one StreamHardware symbol occupies on a
// serial port running at baud with 8N1 framing: two 10-bit characters.
func SerialByteTime(baud int) time.Duration {
	if baud <= 0 {
		return 0
	}

	return time.Duration(20 * int64(time.Second) / int64(baud))
}

// OpenSerial opens a serial device in 8N1 mode and wraps it in a StreamHardware.
func OpenSerial(device string, baud int, l logger.Logger) (*StreamHardware, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("linkio: open serial %s: %w", device, err)
	}

	if l == nil {
		l = logger.GetLogger()
	}
	l.Info("linkio: serial port opened", "device", device, "baud", baud)

	return NewStreamHardware(port, 0, l), nil
}
