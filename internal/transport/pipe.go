package transport

import (
	"io"
	"net"
	"sync/atomic"
)

// PipeTransport is an in-memory link whose far end is handed to a device
// simulator.
type PipeTransport struct {
	net.Conn
	resets     atomic.Int32
	hibernates atomic.Int32
}

// Pipe returns the host side and the device side of an in-memory link.
func Pipe() (*PipeTransport, io.ReadWriteCloser) {
	host, device := net.Pipe()
	return &PipeTransport{Conn: host}, device
}

func (p *PipeTransport) Name() string { return "pipe" }

func (p *PipeTransport) Reset() error {
	p.resets.Add(1)
	return nil
}

func (p *PipeTransport) Hibernate() error {
	p.hibernates.Add(1)
	return nil
}

func (p *PipeTransport) Resets() int     { return int(p.resets.Load()) }
func (p *PipeTransport) Hibernates() int { return int(p.hibernates.Load()) }
