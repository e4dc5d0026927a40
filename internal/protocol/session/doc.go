// Package session owns the reliability primitives between the driver and
// one NCP connection.
//
// Ownership boundary:
// - send/response/operation timeouts
// - retry backoff and the windowed runaway-reset manager
// - the one-slot outbound mailbox and its completion callback
package session
