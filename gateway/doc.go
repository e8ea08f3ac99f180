// Package gateway exposes bus tunnels over TCP.
//
// A client connects and sends one byte, the address of the node it wants to
// reach. The server asks the bus controller for a tunnel to that node and then
// copies bytes in both directions. When the tunnel ends the server writes one
// line holding the reason (for example "ClosedByPeer") and closes the
// connection. A rejected request is answered with a line starting "error:".
//
// Closing the write half of the client connection closes the tunnel
// gracefully; bytes already sent are still delivered to the node.
package gateway
