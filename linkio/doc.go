// Package linkio provides line.Hardware implementations.
//
//   - Bus is an in-memory shared medium with per-character timing, collision
//     and overrun modeling. Simulations and tests attach one Port per node.
//   - StreamHardware carries 9-bit symbols as byte pairs over any
//     io.ReadWriter, such as a serial port opened with OpenSerial.
package linkio
