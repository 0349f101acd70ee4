package transport

import (
	"encoding/binary"
	"log"
	"time"

	"github.com/rs/xid"

	"github.com/cascade-sec/optiprobe/metrics"
)

func stdLogPrint(v ...interface{}) { log.Print(v...) }

// SessionState is the C12.18 session state machine described in
// spec.md section 3.
type SessionState int

const (
	StateClosed SessionState = iota
	StateOpened
	StateIdentified
	StateNegotiated
	StateAuthenticated
	StateLoggedOn
)

func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpened:
		return "opened"
	case StateIdentified:
		return "identified"
	case StateNegotiated:
		return "negotiated"
	case StateAuthenticated:
		return "authenticated"
	case StateLoggedOn:
		return "logged-on"
	default:
		return "unknown"
	}
}

// Identity is the device identity reported by the IDENT service.
type Identity struct {
	ProtocolVersion byte
	Revision        byte
	Feature         byte
}

// Config configures retry budgets, timeouts, and optional
// instrumentation for a Session. The zero value is not usable; use
// DefaultConfig as a starting point.
type Config struct {
	// Retries bounds the attempts to send a single packet (the first
	// write plus retransmits after a NAK or a missing ACK), and
	// separately bounds the attempts of a whole service, which is
	// repeated only after a Timeout. Both counts include the first try.
	Retries int

	// RetryTimeout is the inter-character/inter-packet timeout:
	// how long to wait for an ACK/NAK or frame byte before giving up
	// on the current read.
	RetryTimeout time.Duration

	// ServiceTimeout bounds an entire SendService call, across all of
	// its packets and reassembly.
	ServiceTimeout time.Duration

	// ProposedPacketSize and ProposedMaxPackets are offered to the
	// meter during Negotiate; the meter may return smaller values.
	ProposedPacketSize int
	ProposedMaxPackets int

	// Log receives a line when the meter rejects SECURITY; retries,
	// toggle events, and other non-OK statuses are not logged. A nil
	// Log defaults to the standard library's log.Print.
	Log func(v ...interface{})

	// Metrics is optional; a nil Metrics is a no-op.
	Metrics *metrics.Collector
}

// DefaultConfig returns the spec.md section 6 defaults.
func DefaultConfig() Config {
	return Config{
		Retries:            3,
		RetryTimeout:       1 * time.Second,
		ServiceTimeout:     6 * time.Second,
		ProposedPacketSize: 512,
		ProposedMaxPackets: 2,
	}
}

// Session is a single C12.18 link session over one Channel. Per
// spec.md section 5 it is single-threaded and blocking: concurrent use
// from multiple goroutines is undefined and must be prevented by the
// caller.
type Session struct {
	cfg Config
	ch  Channel

	state   SessionState
	toggle  byte
	pktsize int
	nbrpkts int
	id      string

	// CacheInvalidator is notified (if set) whenever the session
	// resets, so an attached tables.TableIO can drop its cache. It is
	// wired by the meter package, never by transport itself.
	CacheInvalidator func()
}

// NewSession creates a Session bound to ch. The session starts Closed;
// call Open to begin the handshake.
func NewSession(ch Channel, cfg Config) *Session {
	return &Session{cfg: cfg, ch: ch, state: StateClosed}
}

// State returns the current session state.
func (s *Session) State() SessionState { return s.state }

// PacketSize returns the negotiated packet size, or 0 before Negotiate.
func (s *Session) PacketSize() int { return s.pktsize }

// SessionID returns the correlation id assigned by the most recent
// Open call, used to tag log lines. Metrics carry no session label.
func (s *Session) SessionID() string { return s.id }

func (s *Session) logf(v ...interface{}) {
	if s.id != "" {
		v = append([]interface{}{"[" + s.id + "] "}, v...)
	}
	if s.cfg.Log != nil {
		s.cfg.Log(v...)
		return
	}
	stdLogPrint(v...)
}

func (s *Session) metric() *metrics.Collector { return s.cfg.Metrics }

// Open sends IDENT and advances the session to Identified.
func (s *Session) Open() (*Identity, error) {
	s.toggle = 0
	s.state = StateOpened
	s.id = xid.New().String()

	body, err := s.sendServiceWithRetry([]byte{opIdent})
	if err != nil {
		s.forceCloseLocked()
		if isTimeout(err) {
			return nil, ErrUnresponsive
		}
		return nil, err
	}
	if len(body) < 3 {
		s.forceCloseLocked()
		return nil, &FramingError{ReasonTruncated}
	}
	s.state = StateIdentified
	return &Identity{ProtocolVersion: body[0], Revision: body[1], Feature: body[2]}, nil
}

// Negotiate proposes pktsize/nbrpkts and records the meter's reply.
func (s *Session) Negotiate(pktsize, nbrpkts int) error {
	if pktsize <= 0 || pktsize > maxPayload {
		return ErrInvalidArgument
	}
	if nbrpkts <= 0 || nbrpkts > 255 {
		return ErrInvalidArgument
	}
	req := []byte{opNegotiate}
	req = appendUint16(req, pktsize)
	req = append(req, byte(nbrpkts))

	body, err := s.sendServiceWithRetryStatus(req, &NegotiateError{})
	if err != nil {
		return err
	}
	if len(body) < 3 {
		return &FramingError{ReasonTruncated}
	}
	s.pktsize = int(binary.BigEndian.Uint16(body[0:2]))
	s.nbrpkts = int(body[2])
	s.state = StateNegotiated
	return nil
}

// Logon sends LOGON with the given username (zero-padded to 10 bytes;
// a longer one is rejected with ErrInvalidArgument) and userid.
func (s *Session) Logon(username string, userid uint16) error {
	if len(username) > 10 {
		return ErrInvalidArgument
	}
	req := []byte{opLogon}
	namebuf := make([]byte, 10)
	copy(namebuf, username)
	req = append(req, namebuf...)
	req = appendUint16(req, int(userid))

	_, err := s.sendServiceWithRetryStatus(req, &LogonError{})
	if err != nil {
		return err
	}
	s.state = StateAuthenticated
	return nil
}

// Security sends SECURITY with the given password (zero-padded to 20
// bytes; a longer one is rejected with ErrInvalidArgument). It reports success via ok; a non-OK status is not
// returned as an error here (per spec.md section 4.2) since callers
// may treat security as optional. The session remains Authenticated
// when ok is false.
func (s *Session) Security(password []byte) (ok bool, err error) {
	if len(password) > 20 {
		return false, ErrInvalidArgument
	}
	req := []byte{opSecurity}
	pwbuf := make([]byte, 20)
	copy(pwbuf, password)
	req = append(req, pwbuf...)

	_, status, err := s.sendServiceRaw(req)
	if err != nil {
		return false, err
	}
	if status != statusOK {
		s.logf("c12.18: security rejected:", statusName(status))
		return false, nil
	}
	s.state = StateLoggedOn
	return true, nil
}

// Wait sends WAIT to reset the meter's idle timer.
func (s *Session) Wait(seconds byte) error {
	req := []byte{opWait, seconds}
	_, err := s.sendServiceWithRetry(req)
	return err
}

// Terminate sends TERMINATE and then resets local session state
// regardless of the result.
func (s *Session) Terminate() error {
	req := []byte{opTerminate}
	_, err := s.sendServiceWithRetry(req)
	s.forceCloseLocked()
	return err
}

// ForceClose resets local session state without sending TERMINATE. It
// is always safe to call, including after an unrecoverable error. This
// resolves spec.md section 9 Open Question (a): force_close is
// state-reset only, never a wire operation.
func (s *Session) ForceClose() {
	s.forceCloseLocked()
}

func (s *Session) forceCloseLocked() {
	s.state = StateClosed
	s.toggle = 0
	if s.CacheInvalidator != nil {
		s.CacheInvalidator()
	}
}

// SendService sends a raw application-layer request (opcode + body)
// and returns the OK response body, or a typed error for a non-OK
// status or transport failure. Callers in package tables build the
// opcode+body themselves; this is the seam spec.md section 4.2 calls
// send_service.
func (s *Session) SendService(req []byte) ([]byte, error) {
	return s.sendServiceWithRetry(req)
}

// SendServiceStatus is like SendService but also returns the raw
// response status byte, letting callers in package tables map it onto
// their own ReadTableError/WriteTableError/ProcedureError taxonomy
// instead of transport's NegotiateError/LogonError.
func (s *Session) SendServiceStatus(req []byte) (body []byte, status byte, err error) {
	return s.sendServiceWithRetryRaw(req)
}

// sendServiceWithRetry attempts the whole service up to cfg.Retries
// times in all, trying again only after a Timeout, per spec.md
// section 4.2's timeout policy.
func (s *Session) sendServiceWithRetry(req []byte) ([]byte, error) {
	body, _, err := s.sendServiceWithRetryRaw(req)
	return body, err
}

// sendServiceWithRetryStatus is like sendServiceWithRetry but maps a
// non-OK status onto errTemplate (a pointer to a zero-value
// NegotiateError/LogonError, whose Status field is set and which is
// then returned as the error).
func (s *Session) sendServiceWithRetryStatus(req []byte, errTemplate error) ([]byte, error) {
	body, status, err := s.sendServiceWithRetryRaw(req)
	if err != nil {
		return nil, err
	}
	if status != statusOK {
		switch e := errTemplate.(type) {
		case *NegotiateError:
			e.Status = status
			return nil, e
		case *LogonError:
			e.Status = status
			return nil, e
		}
	}
	return body, nil
}

func (s *Session) sendServiceWithRetryRaw(req []byte) (body []byte, status byte, err error) {
	start := time.Now()
	if len(req) > 0 {
		defer func() {
			if s.metric() != nil {
				s.metric().ObserveServiceLatency(opcodeName(req[0]), time.Since(start))
			}
		}()
	}

	retries := s.cfg.Retries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		body, status, err = s.sendServiceRaw(req)
		if err == nil {
			return body, status, nil
		}
		if !isTimeout(err) {
			return nil, 0, err
		}
		if s.metric() != nil {
			s.metric().ServiceRetry()
		}
	}
	return nil, 0, err
}

func isTimeout(err error) bool {
	if err == ErrTimeout {
		return true
	}
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}

// sendServiceRaw performs one full attempt of spec.md section 4.2's
// reliability algorithm: split req into packets, exchange ACK/NAK per
// packet, then reassemble the multi-packet response. The returned
// status is the first byte of the reassembled response body.
func (s *Session) sendServiceRaw(req []byte) (body []byte, status byte, err error) {
	if s.state == StateClosed && len(req) > 0 && req[0] != opIdent {
		return nil, 0, ErrClosed
	}

	pktsize := s.pktsize
	if pktsize <= 0 {
		pktsize = s.cfg.ProposedPacketSize
	}
	packets := splitPackets(req, pktsize)

	deadline := time.Now().Add(s.cfg.ServiceTimeout)
	if err := s.ch.SetReadTimeout(s.cfg.RetryTimeout); err != nil {
		s.forceCloseLocked()
		return nil, 0, &IOError{err}
	}

	for _, pkt := range packets {
		if time.Now().After(deadline) {
			return nil, 0, ErrTimeout
		}
		if err := s.writePacketWithRetry(pkt, time.Until(deadline)); err != nil {
			return nil, 0, err
		}
	}

	all, err := s.readServiceResponse(deadline)
	if err != nil {
		return nil, 0, err
	}
	if len(all) == 0 {
		return nil, 0, &FramingError{ReasonTruncated}
	}
	return all[1:], all[0], nil
}

// writePacketWithRetry writes one request packet at the session's
// current toggle, retransmitting on a NAK or a missing ACK for at most
// cfg.Retries writes in all, and flips the toggle on success.
func (s *Session) writePacketWithRetry(payload []byte, budget time.Duration) error {
	retries := s.cfg.Retries
	if retries <= 0 {
		retries = 1
	}
	frame := encode(nil, payload, s.toggle, 0)

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if budget <= 0 {
			return ErrTimeout
		}
		if _, err := s.ch.Write(frame); err != nil {
			s.forceCloseLocked()
			return &IOError{err}
		}
		if s.metric() != nil {
			s.metric().PacketSent()
		}

		ack, err := s.readN(1)
		if err != nil {
			lastErr = err
			if s.metric() != nil {
				s.metric().Retransmit()
			}
			continue
		}
		switch ack[0] {
		case ackByte:
			s.toggle ^= 1
			return nil
		case nakByte:
			lastErr = ErrTimeout
			if s.metric() != nil {
				s.metric().Retransmit()
			}
			continue
		default:
			lastErr = &FramingError{ReasonMissingSTP}
		}
	}
	return lastErr
}

// readServiceResponse reads frames until seqRemaining reaches 0,
// concatenating payloads in receipt order (spec.md section 4.2 step 3
// and section 8 property 4).
func (s *Session) readServiceResponse(deadline time.Time) ([]byte, error) {
	var all []byte
	count := 0
	for {
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		frame, err := s.readFrame()
		if err != nil {
			return nil, err
		}
		count++
		if s.nbrpkts > 0 && count > s.nbrpkts {
			return nil, &FramingError{ReasonBadLength}
		}
		if s.metric() != nil {
			s.metric().PacketReceived()
		}
		all = append(all, frame.payload...)
		if frame.seqRemaining == 0 {
			return all, nil
		}
	}
}

// readFrame reads exactly one C12.18 packet: 6 header bytes, then
// length body bytes, then 2 CRC bytes, per spec.md section 4.1 -- it
// never scans for STP mid-stream once aligned.
func (s *Session) readFrame() (*decodedFrame, error) {
	hdr, err := s.readN(hdrLen)
	if err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(hdr[4:6]))
	rest, err := s.readN(length + crcLen)
	if err != nil {
		return nil, err
	}
	return decode(append(hdr, rest...))
}

// readN reads exactly n bytes from the channel, honoring the
// configured inter-character timeout on each underlying Read.
func (s *Session) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := s.ch.Read(buf[got:])
		got += m
		if err != nil {
			if got == n {
				break
			}
			if isTimeout(err) {
				return nil, ErrTimeout
			}
			s.forceCloseLocked()
			return nil, &IOError{err}
		}
		if m == 0 {
			return nil, ErrTimeout
		}
	}
	return buf, nil
}

// splitPackets divides req into chunks no larger than pktsize. A zero
// or negative pktsize is treated as "no limit" (used only pre-negotiate
// for short handshake messages).
func splitPackets(req []byte, pktsize int) [][]byte {
	if pktsize <= 0 || len(req) <= pktsize {
		return [][]byte{req}
	}
	var out [][]byte
	for len(req) > 0 {
		n := pktsize
		if n > len(req) {
			n = len(req)
		}
		out = append(out, req[:n])
		req = req[n:]
	}
	return out
}
