// Package bus defines the wire vocabulary shared by the primary and the
// secondaries of a nodebus line.
//
// Every poll and acknowledgement is a 4-byte frame sent with the marker bit
// set on each byte:
//
//	[0x55] [0xAA] [address] [msgType]   primary -> secondary
//	[0x55] [0xAA] [address] [ackType]   secondary -> primary
//
// Addresses run from 0 to MaxChildren-1; 0xFF is the broadcast address used
// for discovery and is also the value a secondary stores while it has never
// been registered.
package bus
