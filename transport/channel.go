package transport

import (
	"io"
	"time"
)

// Channel is the abstract byte channel a Session speaks C12.18 over.
// spec.md treats enumeration and low-level byte I/O of the physical
// optical probe as an external collaborator; Session only needs a
// half-duplex reliable byte stream with a settable read deadline. See
// package serial for concrete implementations.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer

	// SetReadTimeout bounds the next Read call(s); implementations
	// should return a timeout error (wrapped by Session as ErrTimeout)
	// once the deadline elapses without a full read.
	SetReadTimeout(d time.Duration) error
}
