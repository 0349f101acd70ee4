// Package tables implements the ANSI C12.19 table services (full and
// partial reads, full and partial writes, procedure invocation, and
// endian probing) on top of a transport.Session's raw SendService seam.
// It is grounded on how nwaples-tacplus's client.go layers
// authentication- and accounting-specific request/response framing over
// conn.go's generic doRequest, keeping the wire-body marshaling in this
// package and the retry/reassembly machinery in transport.
package tables

import (
	"encoding/binary"
	"errors"

	"github.com/cascade-sec/optiprobe/metrics"
	"github.com/cascade-sec/optiprobe/transport"
)

// Well-known table numbers referenced directly by this package.
const (
	table0 = 0 // general configuration, carries the endian bit
	table7 = 7 // procedure initiate
	table8 = 8 // procedure response
)

var errShortBody = errors.New("c12.19: response body too short")

// TableIO provides cache-aware table read/write services over a single
// transport.Session. It is embedded by meter.Meter, which also wires
// Session.CacheInvalidator to FlushCache.
type TableIO struct {
	sess    *transport.Session
	cache   *cache
	metrics *metrics.Collector
	seq     byte   // next procedure sequence number, see procedure.go
	endian  Endian // latched by ProbeEndian, see endian.go
}

// NewTableIO builds a TableIO bound to sess. collector may be nil.
func NewTableIO(sess *transport.Session, collector *metrics.Collector) *TableIO {
	return &TableIO{sess: sess, cache: newCache(), metrics: collector}
}

// SetCachePolicy enables or disables the table cache. Disabling it
// drops any cached entries immediately.
func (t *TableIO) SetCachePolicy(enabled bool) { t.cache.setPolicy(enabled) }

// CachePolicy reports whether the cache is currently enabled.
func (t *TableIO) CachePolicy() bool { return t.cache.policy() }

// FlushCache drops cached entries for the given tables, or the whole
// cache if nbrs is empty. It is also the function wired onto
// transport.Session.CacheInvalidator by package meter.
func (t *TableIO) FlushCache(nbrs ...int) {
	if len(nbrs) == 0 {
		t.cache.clear()
		return
	}
	for _, n := range nbrs {
		t.cache.invalidate(n)
	}
}

// ReadTable performs a full table read (opcode 0x30), serving the
// cache when the table is cacheable and already cached.
func (t *TableIO) ReadTable(tbl int) ([]byte, error) {
	if data, ok := t.cache.get(tbl); ok {
		t.markHit()
		return data, nil
	}
	t.markMiss()

	req := []byte{transport.OpFullRead}
	req = appendUint16(req, tbl)

	data, err := t.doRead(tbl, req)
	if err != nil {
		return nil, err
	}
	t.cache.put(tbl, data)
	return data, nil
}

// ReadTableOffset performs a partial read by byte offset (opcode
// 0x3F), bypassing the cache: partial reads are assumed to target
// tables whose contents change faster than a full-table cache entry
// would track.
func (t *TableIO) ReadTableOffset(tbl, offset, octets int) ([]byte, error) {
	if offset < 0 || offset > 0xFFFFFF || octets < 0 || octets > 0xFFFF {
		return nil, transport.ErrInvalidArgument
	}
	req := []byte{transport.OpOffsetRead}
	req = appendUint16(req, tbl)
	req = appendUint24(req, offset)
	req = appendUint16(req, octets)
	return t.doRead(tbl, req)
}

// ReadTableIndex performs a partial read by element index and count
// (opcode 0x38), the form used for array-shaped tables.
func (t *TableIO) ReadTableIndex(tbl, index, count int) ([]byte, error) {
	if index < 0 || index > 0xFFFF || count < 0 || count > 0xFF {
		return nil, transport.ErrInvalidArgument
	}
	req := []byte{transport.OpIndexRead}
	req = appendUint16(req, tbl)
	req = appendUint16(req, index)
	req = append(req, byte(count))
	return t.doRead(tbl, req)
}

func (t *TableIO) doRead(tbl int, req []byte) ([]byte, error) {
	body, status, err := t.sess.SendServiceStatus(req)
	if err != nil {
		return nil, err
	}
	if status != transport.StatusOK {
		return nil, &ReadTableError{Table: tbl, Code: codeFromStatus(status), Status: status}
	}
	rb := rbuf(body)
	count, err := rb.uint16()
	if err != nil {
		return nil, &ReadTableError{Table: tbl, Code: CodeGeneric, Status: status}
	}
	data, err := rb.bytes(count)
	if err != nil {
		return nil, &ReadTableError{Table: tbl, Code: CodeGeneric, Status: status}
	}
	chk, err := rb.byte()
	if err != nil {
		return nil, &ReadTableError{Table: tbl, Code: CodeGeneric, Status: status}
	}
	if chk != transport.DataChecksum(data) {
		return nil, &ReadTableError{Table: tbl, Code: CodeChecksum, Status: status}
	}
	return data, nil
}

// WriteTable performs a full table write (opcode 0x40). A successful
// write always invalidates the cached copy of tbl, and a write to
// table 7 (procedure initiate) also invalidates table 8 (procedure
// response), since the two are read/write halves of the same
// mailbox.
func (t *TableIO) WriteTable(tbl int, data []byte) error {
	req := []byte{transport.OpFullWrite}
	req = appendUint16(req, tbl)
	req = appendUint16(req, len(data))
	req = append(req, data...)
	req = append(req, transport.DataChecksum(data))
	return t.doWrite(tbl, req)
}

// WriteTableOffset performs a partial write by byte offset (opcode
// 0x4F).
func (t *TableIO) WriteTableOffset(tbl, offset int, data []byte) error {
	if offset < 0 || offset > 0xFFFFFF {
		return transport.ErrInvalidArgument
	}
	req := []byte{transport.OpOffsetWrite}
	req = appendUint16(req, tbl)
	req = appendUint24(req, offset)
	req = appendUint16(req, len(data))
	req = append(req, data...)
	req = append(req, transport.DataChecksum(data))
	return t.doWrite(tbl, req)
}

func (t *TableIO) doWrite(tbl int, req []byte) error {
	_, status, err := t.sess.SendServiceStatus(req)
	if err != nil {
		return err
	}
	if status != transport.StatusOK {
		return &WriteTableError{Table: tbl, Code: codeFromStatus(status), Status: status}
	}
	t.cache.invalidate(tbl)
	if tbl == table7 {
		t.cache.invalidate(table8)
	}
	return nil
}

func (t *TableIO) markHit() {
	if t.metrics != nil {
		t.metrics.CacheHit()
	}
}

func (t *TableIO) markMiss() {
	if t.metrics != nil {
		t.metrics.CacheMiss()
	}
}

// rbuf is tables' own forward-only response-body cursor, mirroring
// transport's unexported readBuf since the two packages intentionally
// do not share an internal type across the transport/table-service
// boundary.
type rbuf []byte

func (b *rbuf) byte() (byte, error) {
	if len(*b) < 1 {
		return 0, errShortBody
	}
	c := (*b)[0]
	*b = (*b)[1:]
	return c, nil
}

func (b *rbuf) uint16() (int, error) {
	if len(*b) < 2 {
		return 0, errShortBody
	}
	n := int(binary.BigEndian.Uint16(*b))
	*b = (*b)[2:]
	return n, nil
}

func (b *rbuf) bytes(n int) ([]byte, error) {
	if n < 0 || len(*b) < n {
		return nil, errShortBody
	}
	out := append([]byte(nil), (*b)[:n]...)
	*b = (*b)[n:]
	return out, nil
}

func appendUint16(b []byte, n int) []byte {
	return append(b, byte(n>>8), byte(n))
}

func appendUint24(b []byte, n int) []byte {
	return append(b, byte(n>>16), byte(n>>8), byte(n))
}

// appendUint16Endian appends a table-data field (as opposed to a
// C12.18 packet-service field, which is always big-endian) in the
// device's latched byte order. An unprobed endian defaults to big,
// matching the packet-service convention until ProbeEndian says
// otherwise.
func appendUint16Endian(b []byte, n int, e Endian) []byte {
	if e == EndianLittle {
		return append(b, byte(n), byte(n>>8))
	}
	return append(b, byte(n>>8), byte(n))
}
