package line

import "github.com/sigurn/crc16"

// CRC16 keeps a running CRC-16/MODBUS over symbols consumed from a Framer.
// Install it with f.SetDiscardHook(crc.Observe).
type CRC16 struct {
	table *crc16.Table
	crc   uint16
}

// NewCRC16 returns a CRC-16/MODBUS accumulator in its initial state.
func NewCRC16() *CRC16 {
	t := crc16.MakeTable(crc16.CRC16_MODBUS)

	return &CRC16{table: t, crc: crc16.Init(t)}
}

// Observe folds the data bits of sym into the running CRC.
func (c *CRC16) Observe(sym Symbol) {
	c.crc = crc16.Update(c.crc, []byte{sym.Byte()}, c.table)
}

// Update folds p into the running CRC.
func (c *CRC16) Update(p []byte) {
	c.crc = crc16.Update(c.crc, p, c.table)
}

// Sum returns the CRC of everything observed since the last Reset.
func (c *CRC16) Sum() uint16 {
	return crc16.Complete(c.crc, c.table)
}

// Reset restarts the accumulator.
func (c *CRC16) Reset() {
	c.crc = crc16.Init(c.table)
}
