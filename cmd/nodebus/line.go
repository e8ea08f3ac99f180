package main

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/arloliu/go-nodebus/config"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/linkio"
	"github.com/arloliu/go-nodebus/logger"
)

const tcpScheme = "tcp://"

// openLine opens the hardware named by line.device and builds its framer.
// The returned closer releases the device.
func openLine(cfg config.LineConfig, l logger.Logger) (*line.Framer, io.Closer, error) {
	opts := cfg.LineOptions(l)

	var hw *linkio.StreamHardware
	if addr, ok := strings.CutPrefix(cfg.Device, tcpScheme); ok {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("dial line %s: %w", addr, err)
		}
		hw = linkio.NewStreamHardware(conn, 0, l)
	} else {
		var err error
		if hw, err = linkio.OpenSerial(cfg.Device, cfg.Baud, l); err != nil {
			return nil, nil, err
		}
		if cfg.ByteTimeUs == 0 {
			// Each symbol takes two serial characters.
			opts = append(opts, line.WithByteTime(linkio.SerialByteTime(cfg.Baud)))
		}
	}

	lcfg, err := line.NewConfig(opts...)
	if err != nil {
		_ = hw.Close()
		return nil, nil, err
	}

	f, err := line.NewFramer(hw, line.NewSystemClock(), lcfg)
	if err != nil {
		_ = hw.Close()
		return nil, nil, err
	}
	l.Info("nodebus: line opened", "device", cfg.Device, "byte_time", lcfg.ByteTime().Duration().String())

	return f, hw, nil
}
