// Package tunnel implements the byte-transparent tunnel carried over a
// nodebus line once a primary and one secondary have agreed to connect.
//
// Payload bytes travel unmarked and unescaped. Control signals are single
// marked symbols that end a burst:
//
//   - Idle: keep-alive; the sender had nothing to forward and passes the floor.
//   - Over: end of a data burst; the sender passes the floor and releases
//     the line without waiting out its disengage delay.
//   - Close: graceful end of the tunnel.
//   - Abort: abrupt end; the sender's local connection failed.
//
// The line is half-duplex, so the two ends alternate: only the side holding
// the floor transmits. The primary holds the floor when the tunnel opens.
package tunnel
