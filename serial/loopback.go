// Package serial provides concrete byte-channel implementations for
// transport.Session: a real POSIX serial port backend (serial_linux.go)
// and an in-memory loopback pair for tests, grounded on how
// nwaples-tacplus's tests dial a net.Pipe/net.Listener pair instead of
// touching real sockets.
package serial

import (
	"net"
	"time"
)

// pipeChannel adapts a net.Conn to the Read/Write/Close/SetReadTimeout
// shape transport.Session expects.
type pipeChannel struct {
	net.Conn
}

func (p *pipeChannel) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return p.Conn.SetReadDeadline(time.Time{})
	}
	return p.Conn.SetReadDeadline(time.Now().Add(d))
}

// Loopback returns a connected pair of in-memory channels: a is the
// "probe" side a Session would use, b is the scripted-meter side a test
// drives directly.
func Loopback() (a, b *pipeChannel) {
	c1, c2 := net.Pipe()
	return &pipeChannel{c1}, &pipeChannel{c2}
}
