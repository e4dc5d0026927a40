// Package transport provides the byte links to an NCP.
//
// Ownership boundary:
// - opening serial devices and sockets from one socket spec
// - reset (drop buffered bytes, reopen) and hibernate (release the device)
// - power and reset side channels addressed as byte-oriented files
package transport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/danmuck/wpanctl/internal/logs"
)

var (
	ErrClosed      = errors.New("transport: closed")
	ErrUnsupported = errors.New("transport: unsupported socket spec")
)

// Transport is a byte link to the NCP. Read blocks while the link is
// hibernating and resumes after Reset.
type Transport interface {
	io.ReadWriteCloser
	Name() string
	// Reset drops buffered input and reopens the link if it was released.
	Reset() error
	// Hibernate releases the underlying device until the next Reset.
	Hibernate() error
}

// Open selects a transport from a socket spec:
// "tcp://host:port", "unix:///path", or a serial device path.
func Open(spec string, baud int) (Transport, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return nil, fmt.Errorf("%w: empty", ErrUnsupported)
	case strings.HasPrefix(spec, "tcp://"):
		return Dial("tcp", strings.TrimPrefix(spec, "tcp://"))
	case strings.HasPrefix(spec, "unix://"):
		return Dial("unix", strings.TrimPrefix(spec, "unix://"))
	case strings.Contains(spec, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, spec)
	default:
		return OpenSerial(spec, baud)
	}
}

type opener func() (io.ReadWriteCloser, error)

// link reopens its device on demand. Reads park while hibernating.
type link struct {
	name  string
	open  opener
	flush func(io.ReadWriteCloser) error

	mu     sync.Mutex
	cond   *sync.Cond
	dev    io.ReadWriteCloser
	asleep bool
	closed bool
}

func newLink(name string, open opener, flush func(io.ReadWriteCloser) error) (*link, error) {
	dev, err := open()
	if err != nil {
		return nil, err
	}
	l := &link{name: name, open: open, flush: flush, dev: dev}
	l.cond = sync.NewCond(&l.mu)
	return l, nil
}

func (l *link) Name() string {
	return l.name
}

func (l *link) current() (io.ReadWriteCloser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.asleep && !l.closed {
		l.cond.Wait()
	}
	if l.closed {
		return nil, ErrClosed
	}
	return l.dev, nil
}

func (l *link) Read(p []byte) (int, error) {
	for {
		dev, err := l.current()
		if err != nil {
			return 0, err
		}
		n, err := dev.Read(p)
		if err != nil && l.released(dev) {
			// The device was swapped underneath a blocked read.
			continue
		}
		return n, err
	}
}

func (l *link) Write(p []byte) (int, error) {
	l.mu.Lock()
	if l.asleep {
		l.mu.Unlock()
		if err := l.Reset(); err != nil {
			return 0, err
		}
		l.mu.Lock()
	}
	dev, closed := l.dev, l.closed
	l.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return dev.Write(p)
}

func (l *link) released(dev io.ReadWriteCloser) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && (l.asleep || l.dev != dev)
}

func (l *link) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.asleep {
		dev, err := l.open()
		if err != nil {
			logs.Errf("transport.%s.Reset reopen err=%v", l.name, err)
			return err
		}
		l.dev = dev
		l.asleep = false
		l.cond.Broadcast()
		logs.Infof("transport.%s.Reset reopened", l.name)
		return nil
	}
	if l.flush != nil {
		if err := l.flush(l.dev); err != nil {
			logs.Warnf("transport.%s.Reset flush err=%v", l.name, err)
			return err
		}
	}
	logs.Debugf("transport.%s.Reset flushed", l.name)
	return nil
}

func (l *link) Hibernate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.asleep {
		return nil
	}
	l.asleep = true
	logs.Infof("transport.%s.Hibernate", l.name)
	return l.dev.Close()
}

func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.cond.Broadcast()
	if l.asleep {
		return nil
	}
	return l.dev.Close()
}
