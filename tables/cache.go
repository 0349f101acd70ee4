package tables

// defaultCacheable reports whether tbl is cacheable by default. General
// tables (0-2047) tend to be slow-changing configuration/identification
// data; manufacturer tables (2048 and above) are assumed volatile, since
// spec.md does not define their contents, and are never cached: there is
// no per-table opt-in. Table 8 (procedure results) is never cached: it is
// an exec-and-poll mailbox, not state.
func defaultCacheable(tbl int) bool {
	if tbl == table8 {
		return false
	}
	return tbl < 2048
}

// cache holds full-table reads keyed by table number, guarded by a
// single enable/disable policy switch (spec.md section 6 CACHETBLS
// option). It is not safe for concurrent use, matching Session's own
// single-threaded contract.
type cache struct {
	enabled bool
	tables  map[int][]byte
}

func newCache() *cache {
	return &cache{enabled: true, tables: make(map[int][]byte)}
}

func (c *cache) setPolicy(enabled bool) {
	c.enabled = enabled
	if !enabled {
		c.clear()
	}
}

func (c *cache) policy() bool { return c.enabled }

func (c *cache) get(tbl int) ([]byte, bool) {
	if !c.enabled || !defaultCacheable(tbl) {
		return nil, false
	}
	b, ok := c.tables[tbl]
	return b, ok
}

func (c *cache) put(tbl int, data []byte) {
	if !c.enabled || !defaultCacheable(tbl) {
		return
	}
	cp := append([]byte(nil), data...)
	c.tables[tbl] = cp
}

func (c *cache) invalidate(tbl int) {
	delete(c.tables, tbl)
}

func (c *cache) clear() {
	c.tables = make(map[int][]byte)
}
