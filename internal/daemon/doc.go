// Package daemon runs one NCP driver as a process.
//
// Ownership boundary:
// - opening the transport and the power/reset side channels
// - the runloop goroutine that owns the ncp.Instance
// - the reader goroutine that posts inbound bytes onto the loop
// - the HTTP status and control surface
package daemon
