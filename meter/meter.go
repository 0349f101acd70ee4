// Package meter is the consumer-facing facade over transport.Session
// and tables.TableIO: the single type an operator tool (package
// cmd/optiprobe) or a test should need to import to talk to a meter.
// It is grounded on how nwaples-tacplus's Client wraps a raw Conn
// behind a handful of named RPCs (Authenticate, AuthenStart, Author,
// Account) rather than making callers assemble packets themselves.
package meter

import (
	"github.com/cascade-sec/optiprobe/metrics"
	"github.com/cascade-sec/optiprobe/tables"
	"github.com/cascade-sec/optiprobe/transport"
)

// C1219Endian re-exports tables.Endian so callers only need to import
// package meter for the common case.
type C1219Endian = tables.Endian

const (
	EndianUnknown = tables.EndianUnknown
	EndianBig     = tables.EndianBig
	EndianLittle  = tables.EndianLittle
)

// Meter is a single optical-port session to one device, bundling the
// C12.18 link/session layer with the C12.19 table layer above it.
type Meter struct {
	*transport.Session
	*tables.TableIO
	cfg transport.Config
}

// New builds a Meter over ch, which must already be open (dialed or
// probed) and ready for I/O. cfg configures retries, timeouts, and
// optional metrics; a zero cfg.Metrics leaves instrumentation off.
func New(ch transport.Channel, cfg transport.Config) *Meter {
	sess := transport.NewSession(ch, cfg)
	tio := tables.NewTableIO(sess, cfg.Metrics)
	sess.CacheInvalidator = func() { tio.FlushCache() }
	return &Meter{Session: sess, TableIO: tio, cfg: cfg}
}

// NewWithMetrics is a convenience constructor that builds a fresh
// metrics.Collector and wires it into cfg before constructing the
// Meter, returning the collector so callers can serve it over HTTP.
func NewWithMetrics(ch transport.Channel, cfg transport.Config) (*Meter, *metrics.Collector) {
	collector := metrics.NewCollector()
	cfg.Metrics = collector
	return New(ch, cfg), collector
}

// Login runs the full C12.18 handshake: IDENT, NEGOTIATE, LOGON, and
// (if password is non-nil) SECURITY. It returns the device Identity
// reported by IDENT.
func (m *Meter) Login(username string, userid uint16, password []byte) (*transport.Identity, error) {
	id, err := m.Open()
	if err != nil {
		return nil, err
	}
	if err := m.Negotiate(0, 0); err != nil {
		return id, err
	}
	if err := m.Logon(username, userid); err != nil {
		return id, err
	}
	if password != nil {
		ok, err := m.Security(password)
		if err != nil {
			return id, err
		}
		if !ok {
			return id, &transport.SecurityError{}
		}
	}
	return id, nil
}

// Negotiate proposes pktsize/nbrpkts; zero values fall back to the
// Meter's configured proposals (transport.Config.ProposedPacketSize
// and ProposedMaxPackets).
func (m *Meter) Negotiate(pktsize, nbrpkts int) error {
	if pktsize <= 0 {
		pktsize = m.proposedPacketSize()
	}
	if nbrpkts <= 0 {
		nbrpkts = m.proposedMaxPackets()
	}
	return m.Session.Negotiate(pktsize, nbrpkts)
}

func (m *Meter) proposedPacketSize() int {
	if m.cfg.ProposedPacketSize > 0 {
		return m.cfg.ProposedPacketSize
	}
	return 512
}

func (m *Meter) proposedMaxPackets() int {
	if m.cfg.ProposedMaxPackets > 0 {
		return m.cfg.ProposedMaxPackets
	}
	return 2
}

// Logout sends TERMINATE and resets local session state.
func (m *Meter) Logout() error {
	return m.Terminate()
}
