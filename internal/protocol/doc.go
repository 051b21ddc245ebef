// Package protocol owns the V-Frame wire contract.
//
// Ownership boundary:
// - error taxonomy shared by codec and dispatch
// - vframe: header, slice table, slice and checksum primitives
// - dispatch: per message type interpretation of decoded frames
package protocol
