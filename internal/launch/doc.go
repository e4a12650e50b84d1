// Package launch owns application startup and readiness detection.
//
// Ownership boundary:
// - starting the application binary, locally or over SSH
// - draining its diagnostic stream on a background worker
// - scanning for the ready / license-failure / bind-failure sentinels
// - port-shift retry when the socket cannot be bound
//
// The package hands a reachable endpoint to the protocol client; it does
// not otherwise manage the simulation process.
package launch
