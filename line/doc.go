// Package line implements the framing layer of a shared half-duplex serial
// line.
//
// A Framer owns the line direction and a 9-bit symbol stream: every byte on
// the wire carries an auxiliary marker bit that higher layers use to tell
// address/control bytes from tunnel payload without escaping.
//
// # Timing
//
// The framer has no interrupts and no goroutines. The caller's loop must call
// [Framer.Poll] at least every half byte time while a packet may be in flight;
// every transition is driven by comparing elapsed ticks from a [Clock] against
// thresholds derived from the configured byte time:
//
//   - mark threshold (3.5 byte times): the line is idle and framing resynchronizes
//   - engage gap (2 byte times): minimum quiet time before taking the driver
//   - engage delay (1 byte time): settle time between driver on and first bit
//   - disengage delay (1 byte time): hold time after the last bit before releasing
//
// # Faults
//
// A hardware receive overrun is fatal: [Framer.Poll] returns
// [ErrReceiveOverrun] from then on. A hardware framing error is soft: the
// framer drops everything up to the next mark condition.
package line
