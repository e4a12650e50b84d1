// Package connect owns the Connect protocol request/acknowledgement cycle.
//
// Ownership boundary:
// - client configuration and construction
// - the two framing disciplines (synchronous ack, asynchronous envelope)
// - multi-packet message reassembly
// - report command construction and returning-report decoding
//
// One client owns one connection; send and read are strictly sequential,
// so callers must not pipeline commands on a single client.
package connect
