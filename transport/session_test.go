package transport

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"
)

// pipeChannel is a minimal test-only Channel over a net.Conn, mirroring
// package serial's real Loopback helper without importing it (keeping
// this internal test package free of a dependency on a sibling
// package's test-support code).
type pipeChannel struct{ net.Conn }

func (p pipeChannel) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return p.Conn.SetReadDeadline(time.Time{})
	}
	return p.Conn.SetReadDeadline(time.Now().Add(d))
}

func newLoopback() (pipeChannel, pipeChannel) {
	c1, c2 := net.Pipe()
	return pipeChannel{c1}, pipeChannel{c2}
}

func readRequestFrame(r io.Reader) (*decodedFrame, error) {
	hdr := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(hdr[4:6]))
	rest := make([]byte, length+crcLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	return decode(append(hdr, rest...))
}

// scriptedReply is one answer of this test's fake meter; answers are
// given to incoming requests in order, whatever their opcode.
type scriptedReply struct {
	nak     bool // reply NAK once before ACK+response
	payload []byte
}

// runScriptedMeter drives one side of a loopback pair as a minimal
// C12.18 responder, answering exactly len(script) requests in order.
func runScriptedMeter(t *testing.T, ch net.Conn, script []scriptedReply) {
	t.Helper()
	go func() {
		for _, step := range script {
			if _, err := readRequestFrame(ch); err != nil {
				return
			}
			if step.nak {
				if _, err := ch.Write([]byte{nakByte}); err != nil {
					return
				}
				if _, err := readRequestFrame(ch); err != nil {
					return
				}
			}
			if _, err := ch.Write([]byte{ackByte}); err != nil {
				return
			}
			resp := encode(nil, step.payload, 0, 0)
			if _, err := ch.Write(resp); err != nil {
				return
			}
		}
	}()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryTimeout = 200 * time.Millisecond
	cfg.ServiceTimeout = 1 * time.Second
	return cfg
}

func TestSessionFullHandshake(t *testing.T) {
	client, server := newLoopback()
	defer client.Close()
	defer server.Close()

	runScriptedMeter(t, server.Conn, []scriptedReply{
		{payload: []byte{statusOK, 0x00, 0x00, 0x01}},                   // IDENT
		{payload: []byte{statusOK, 0x02, 0x00, 0x02}},                   // NEGOTIATE: pktsize=512, nbrpkts=2
		{payload: []byte{statusOK}},                                    // LOGON
		{payload: []byte{statusOK}},                                    // SECURITY
		{payload: []byte{statusOK}},                                    // TERMINATE
	})

	s := NewSession(client, testConfig())

	id, err := s.Open()
	if err != nil {
		t.Fatal(err)
	}
	if id.Feature != 1 {
		t.Fatalf("feature = %d, want 1", id.Feature)
	}
	if s.State() != StateIdentified {
		t.Fatalf("state = %v, want Identified", s.State())
	}

	if err := s.Negotiate(512, 2); err != nil {
		t.Fatal(err)
	}
	if s.PacketSize() != 512 {
		t.Fatalf("pktsize = %d, want 512", s.PacketSize())
	}
	if s.State() != StateNegotiated {
		t.Fatalf("state = %v, want Negotiated", s.State())
	}

	if err := s.Logon("0000", 0); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("state = %v, want Authenticated", s.State())
	}

	ok, err := s.Security([]byte{0x01, 0x02})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("security should have succeeded")
	}
	if s.State() != StateLoggedOn {
		t.Fatalf("state = %v, want LoggedOn", s.State())
	}

	if err := s.Terminate(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want Closed", s.State())
	}
}

func TestSessionSecurityRejected(t *testing.T) {
	client, server := newLoopback()
	defer client.Close()
	defer server.Close()

	runScriptedMeter(t, server.Conn, []scriptedReply{
		{payload: []byte{statusOK, 0x00, 0x00, 0x01}},
		{payload: []byte{statusOK, 0x02, 0x00, 0x02}},
		{payload: []byte{statusOK}},
		{payload: []byte{statusISC}}, // SECURITY rejected
	})

	s := NewSession(client, testConfig())
	if _, err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.Negotiate(512, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Logon("0000", 0); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Security([]byte{0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("security should have been rejected")
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("state = %v, want Authenticated (unchanged)", s.State())
	}
}

func TestSessionNegotiateRejected(t *testing.T) {
	client, server := newLoopback()
	defer client.Close()
	defer server.Close()

	runScriptedMeter(t, server.Conn, []scriptedReply{
		{payload: []byte{statusOK, 0x00, 0x00, 0x01}},
		{payload: []byte{statusIAR, 0x00, 0x00, 0x00}},
	})

	s := NewSession(client, testConfig())
	if _, err := s.Open(); err != nil {
		t.Fatal(err)
	}
	err := s.Negotiate(512, 2)
	ne, ok := err.(*NegotiateError)
	if !ok {
		t.Fatalf("err = %v (%T), want *NegotiateError", err, err)
	}
	if ne.Status != statusIAR {
		t.Fatalf("status = %#x, want statusIAR", ne.Status)
	}
}

func TestSessionRetransmitOnNAK(t *testing.T) {
	client, server := newLoopback()
	defer client.Close()
	defer server.Close()

	runScriptedMeter(t, server.Conn, []scriptedReply{
		{nak: true, payload: []byte{statusOK, 0x00, 0x00, 0x01}},
	})

	s := NewSession(client, testConfig())
	if _, err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateIdentified {
		t.Fatalf("state = %v, want Identified", s.State())
	}
}

func TestSessionOpenUnresponsive(t *testing.T) {
	client, server := newLoopback()
	defer client.Close()
	defer server.Close()

	// A silent meter that reads every request and never answers: every
	// IDENT attempt times out, and Open must surface ErrUnresponsive once
	// the retry budget is exhausted rather than the bare ErrTimeout from
	// the last attempt. The drain keeps the unbuffered pipe's Write from
	// blocking.
	go io.Copy(io.Discard, server.Conn)

	cfg := testConfig()
	cfg.Retries = 1
	cfg.RetryTimeout = 50 * time.Millisecond
	cfg.ServiceTimeout = 100 * time.Millisecond

	s := NewSession(client, cfg)
	_, err := s.Open()
	if err != ErrUnresponsive {
		t.Fatalf("err = %v, want ErrUnresponsive", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want Closed", s.State())
	}
}

// TestSessionMultiPacketResponseReassembly exercises a response spread
// across three packets (spec.md section 8 property 4): seqRemaining
// counts down 2, 1, 0 and the reassembled body is the concatenation of
// all three payloads in receipt order.
func TestSessionMultiPacketResponseReassembly(t *testing.T) {
	client, server := newLoopback()
	defer client.Close()
	defer server.Close()

	go func() {
		if _, err := readRequestFrame(server.Conn); err != nil {
			return
		}
		if _, err := server.Conn.Write([]byte{ackByte}); err != nil {
			return
		}
		var resp []byte
		resp = encode(resp, []byte{statusOK, 0xAA}, 0, 2)
		resp = encode(resp, []byte{0xBB}, 0, 1)
		resp = encode(resp, []byte{0xCC, 0x01}, 0, 0)
		server.Conn.Write(resp)
	}()

	s := NewSession(client, testConfig())
	id, err := s.Open()
	if err != nil {
		t.Fatal(err)
	}
	if id.ProtocolVersion != 0xAA || id.Revision != 0xBB || id.Feature != 0xCC {
		t.Fatalf("id = %+v, want reassembled {0xAA 0xBB 0xCC}", id)
	}
}

// TestSessionToggleAlternates checks the toggle bit flips 0, 1, 0 across
// three consecutive requests on the same session (spec.md section 8
// property 3).
func TestSessionToggleAlternates(t *testing.T) {
	client, server := newLoopback()
	defer client.Close()
	defer server.Close()

	var gotToggles []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			frame, err := readRequestFrame(server.Conn)
			if err != nil {
				return
			}
			gotToggles = append(gotToggles, frame.toggle)
			if _, err := server.Conn.Write([]byte{ackByte}); err != nil {
				return
			}
			var payload []byte
			switch i {
			case 0:
				payload = []byte{statusOK, 0x00, 0x00, 0x01} // IDENT
			case 1:
				payload = []byte{statusOK, 0x02, 0x00, 0x02} // NEGOTIATE
			case 2:
				payload = []byte{statusOK} // LOGON
			}
			if _, err := server.Conn.Write(encode(nil, payload, 0, 0)); err != nil {
				return
			}
		}
	}()

	s := NewSession(client, testConfig())
	if _, err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.Negotiate(512, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Logon("0000", 0); err != nil {
		t.Fatal(err)
	}
	<-done

	want := []byte{0, 1, 0}
	if len(gotToggles) != len(want) {
		t.Fatalf("got %d requests, want %d", len(gotToggles), len(want))
	}
	for i, w := range want {
		if gotToggles[i] != w {
			t.Fatalf("toggle[%d] = %d, want %d", i, gotToggles[i], w)
		}
	}
}

func TestSessionForceCloseInvokesCacheInvalidator(t *testing.T) {
	client, server := newLoopback()
	defer client.Close()
	defer server.Close()

	s := NewSession(client, testConfig())
	invoked := false
	s.CacheInvalidator = func() { invoked = true }
	s.ForceClose()
	if !invoked {
		t.Fatal("ForceClose did not invoke CacheInvalidator")
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want Closed", s.State())
	}
}
