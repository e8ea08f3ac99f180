// Package primary implements the bus controller of a nodebus line.
//
// The Controller owns the line through a line.Framer. It polls every address
// in turn with Heartbeat, closes each scan cycle with a ReadyForHello
// broadcast, assigns addresses to nodes that answer the broadcast, and keeps
// two sets of children:
//
//   - known: nodes that answered recently.
//   - dirty: nodes whose state changed since an external consumer last
//     cleared them (joined, left, or reported pending status).
//
// On request the controller suspends polling and opens a tunnel to one node,
// bridging a tunnel.Endpoint until either side closes it or the peer stays
// silent past the socket timeout.
//
// Controller is driven by a single loop calling Step. Runner provides that
// loop and serializes requests made from other goroutines.
package primary
