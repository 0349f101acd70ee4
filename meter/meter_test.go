package meter

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cascade-sec/optiprobe/serial"
	"github.com/cascade-sec/optiprobe/transport"
)

// Minimal wire scripting identical in approach to package tables' own
// test harness: this package, too, has no access to transport's
// unexported framing.
var crcTable = func() [256]uint16 {
	const poly = 0x8408
	var t [256]uint16
	for i := 0; i < 256; i++ {
		c := uint16(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = (c >> 1) ^ poly
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}()

func crc16(b []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, c := range b {
		crc = (crc >> 8) ^ crcTable[byte(crc)^c]
	}
	return crc ^ 0xFFFF
}

func encodeFrame(payload []byte) []byte {
	b := []byte{0xEE, 0x00, 0x00, 0x00, byte(len(payload) >> 8), byte(len(payload))}
	b = append(b, payload...)
	sum := crc16(b)
	return append(b, byte(sum), byte(sum>>8))
}

func readFrame(r io.Reader) error {
	hdr := make([]byte, 6)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return err
	}
	length := int(binary.BigEndian.Uint16(hdr[4:6]))
	_, err := io.ReadFull(r, make([]byte, length+2))
	return err
}

func runScriptedMeter(t *testing.T, ch net.Conn, responses [][]byte) {
	t.Helper()
	go func() {
		for _, payload := range responses {
			if err := readFrame(ch); err != nil {
				return
			}
			if _, err := ch.Write([]byte{0x06}); err != nil {
				return
			}
			if _, err := ch.Write(encodeFrame(payload)); err != nil {
				return
			}
		}
	}()
}

func TestMeterLoginAndLogout(t *testing.T) {
	a, b := serial.Loopback()
	defer a.Close()
	defer b.Close()

	runScriptedMeter(t, b, [][]byte{
		{0x00, 0x00, 0x00, 0x01}, // IDENT
		{0x00, 0x02, 0x00, 0x02}, // NEGOTIATE: pktsize 512, nbrpkts 2
		{0x00},                   // LOGON
		{0x00},                   // TERMINATE
	})

	cfg := transport.DefaultConfig()
	cfg.RetryTimeout = 200 * time.Millisecond
	cfg.ServiceTimeout = 1 * time.Second

	m := New(a, cfg)
	id, err := m.Login("0000", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if id.Feature != 1 {
		t.Fatalf("feature = %d, want 1", id.Feature)
	}
	if m.State() != transport.StateAuthenticated {
		t.Fatalf("state = %v, want Authenticated", m.State())
	}
	if err := m.Logout(); err != nil {
		t.Fatal(err)
	}
	if m.State() != transport.StateClosed {
		t.Fatalf("state = %v, want Closed", m.State())
	}
}

func fullReadResponse(data []byte) []byte {
	resp := []byte{0x00, byte(len(data) >> 8), byte(len(data))}
	resp = append(resp, data...)
	return append(resp, transport.DataChecksum(data))
}

func TestMeterForceCloseFlushesTableCache(t *testing.T) {
	a, b := serial.Loopback()
	defer a.Close()
	defer b.Close()

	// Two full reads of table 1, each requiring its own wire exchange:
	// the second one only happens if ForceClose actually flushed the
	// cache populated by the first, and only the wire answer carries 0xBB.
	runScriptedMeter(t, b, [][]byte{
		{0x00, 0x00, 0x00, 0x01}, // IDENT: leave Closed so ReadTable is allowed
		fullReadResponse([]byte{0xAA}),
		{0x00, 0x00, 0x00, 0x01}, // IDENT again after ForceClose
		fullReadResponse([]byte{0xBB}),
	})

	cfg := transport.DefaultConfig()
	cfg.RetryTimeout = 200 * time.Millisecond
	cfg.ServiceTimeout = 1 * time.Second
	m := New(a, cfg)

	if _, err := m.Open(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ReadTable(1); err != nil {
		t.Fatal(err)
	}
	m.ForceClose()
	if _, err := m.Open(); err != nil {
		t.Fatal(err)
	}
	data, err := m.ReadTable(1)
	if err != nil {
		t.Fatal("second read should hit the wire again after ForceClose:", err)
	}
	if string(data) != "\xbb" {
		t.Fatalf("second read = % x, want bb from the wire, not the cached aa", data)
	}
}
