// Package secondary implements the node agent of a nodebus line.
//
// An Agent matches frame headers addressed to its stored address and answers
// each poll with one ack:
//
//   - Heartbeat: Hello the first time this primary session polls the node,
//     ReadStatus while the application has a pending status, otherwise Heartbeat.
//   - ReadyForHello: Hello, only while unregistered (the registration window).
//   - AddressAssign: only in the registration window and only after this
//     node's Hello; the address is persisted and acknowledged with Heartbeat.
//   - Connect: opens a tunnel to the endpoint supplied by the Acceptor.
//
// Anything else, and any header byte that does not fit, makes the agent skip
// to the end of the frame.
package secondary
