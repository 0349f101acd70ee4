//go:build linux

package serial

import (
	"time"

	goserial "github.com/daedaluz/goserial"
)

// Parity selects the serial line parity mode.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// Config mirrors the spec.md section 6 serial options: BAUDRATE,
// BYTESIZE, STOPBITS, PARITY.
type Config struct {
	BaudRate int
	ByteSize int
	StopBits int
	Parity   Parity
}

// DefaultConfig returns the spec.md section 6 serial defaults.
func DefaultConfig() Config {
	return Config{BaudRate: 9600, ByteSize: 8, StopBits: 1, Parity: ParityNone}
}

// Port is a real POSIX optical-probe serial connection, grounded on
// github.com/daedaluz/goserial's ioctl-based termios configuration.
type Port struct {
	p *goserial.Port
}

// Open opens the named serial device (e.g. "/dev/ttyUSB0") and applies
// cfg via termios, the way goserial's own callers configure a line.
func Open(name string, cfg Config) (*Port, error) {
	opts := goserial.NewOptions()
	p, err := goserial.Open(name, opts)
	if err != nil {
		return nil, err
	}
	if err := applyConfig(p, cfg); err != nil {
		p.Close()
		return nil, err
	}
	return &Port{p: p}, nil
}

func applyConfig(p *goserial.Port, cfg Config) error {
	if err := p.MakeRaw(); err != nil {
		return err
	}
	attrs, err := p.GetAttr2()
	if err != nil {
		return err
	}
	attrs.Cflag &^= goserial.CSIZE
	switch cfg.ByteSize {
	case 5:
		attrs.Cflag |= goserial.CS5
	case 6:
		attrs.Cflag |= goserial.CS6
	case 7:
		attrs.Cflag |= goserial.CS7
	default:
		attrs.Cflag |= goserial.CS8
	}
	if cfg.StopBits >= 2 {
		attrs.Cflag |= goserial.CSTOPB
	} else {
		attrs.Cflag &^= goserial.CSTOPB
	}
	switch cfg.Parity {
	case ParityOdd:
		attrs.Cflag |= goserial.PARENB | goserial.PARODD
	case ParityEven:
		attrs.Cflag |= goserial.PARENB
		attrs.Cflag &^= goserial.PARODD
	default:
		attrs.Cflag &^= (goserial.PARENB | goserial.PARODD)
	}
	attrs.SetCustomSpeed(uint32(cfg.BaudRate))
	return p.SetAttr2(goserial.TCSANOW, attrs)
}

func (p *Port) Read(b []byte) (int, error)  { return p.p.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.p.Write(b) }
func (p *Port) Close() error                { return p.p.Close() }

func (p *Port) SetReadTimeout(d time.Duration) error {
	p.p.SetReadTimeout(d)
	return nil
}
