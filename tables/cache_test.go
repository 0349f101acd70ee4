package tables

import "testing"

func TestCacheGetPutRoundTrip(t *testing.T) {
	c := newCache()
	if _, ok := c.get(1); ok {
		t.Fatal("empty cache should miss")
	}
	c.put(1, []byte{0xAA, 0xBB})
	data, ok := c.get(1)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if string(data) != "\xaa\xbb" {
		t.Fatalf("got %v", data)
	}
}

func TestCacheDisabledPolicySkipsStoreAndClears(t *testing.T) {
	c := newCache()
	c.put(1, []byte{0x01})
	c.setPolicy(false)
	if _, ok := c.get(1); ok {
		t.Fatal("disabling the cache should drop existing entries")
	}
	c.put(2, []byte{0x02})
	if _, ok := c.get(2); ok {
		t.Fatal("put should be a no-op while disabled")
	}
}

func TestCacheManufacturerTablesNotCacheable(t *testing.T) {
	c := newCache()
	c.put(2048, []byte{0x01})
	if _, ok := c.get(2048); ok {
		t.Fatal("manufacturer tables should not be cached by default")
	}
}

func TestCacheTable8NeverCacheable(t *testing.T) {
	c := newCache()
	c.put(table8, []byte{0x01})
	if _, ok := c.get(table8); ok {
		t.Fatal("table 8 should never be cached")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := newCache()
	c.put(1, []byte{0x01})
	c.invalidate(1)
	if _, ok := c.get(1); ok {
		t.Fatal("invalidate should drop the entry")
	}
}

func TestProcedureNames(t *testing.T) {
	if ProcedureName(6) != "Set Date/Time" {
		t.Fatalf("got %q", ProcedureName(6))
	}
	if ProcedureName(999) != "Unknown Procedure" {
		t.Fatalf("got %q", ProcedureName(999))
	}
}

func TestProcedureResultNames(t *testing.T) {
	if ProcedureResultName(0) != "Completed" {
		t.Fatalf("got %q", ProcedureResultName(0))
	}
	if ProcedureResultName(200) != "Unknown Result Code" {
		t.Fatalf("got %q", ProcedureResultName(200))
	}
}
