package transport

import (
	"io"
	"net"
	"time"
)

const dialTimeout = 5 * time.Second

// Dial connects to an NCP exposed on a stream socket. Reset on an open
// connection is a no-op; a hibernated connection is redialed.
func Dial(network, addr string) (Transport, error) {
	open := func() (io.ReadWriteCloser, error) {
		return net.DialTimeout(network, addr, dialTimeout)
	}
	return newLink(network+"("+addr+")", open, nil)
}
