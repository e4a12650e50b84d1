// Package wire owns the Connect protocol framing primitives.
//
// Ownership boundary:
// - command line framing
// - ACK/NACK token parsing
// - synchronous query headers
// - asynchronous message envelopes
// - returning-report buffer splitting
//
// The package performs no I/O; callers read the declared byte counts
// off the socket and hand the raw bytes in.
package wire
