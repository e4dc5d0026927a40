// Package ncp drives a Spinel NCP: the data pump, the task queue and the
// lifecycle state machine that keeps the NCP initialized.
//
// Ownership boundary:
// - every Instance method runs on the owning runloop goroutine
// - ControlInterface posts caller operations onto that goroutine
// - at most one command is in flight; tasks run FIFO, one at a time
package ncp
