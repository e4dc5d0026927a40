// Package tools runs host commands on behalf of the driver.
//
// Ownership boundary:
// - command execution with bounded runtime
// - the external firmware check and upgrade hooks
package tools
