package nodeindex

import (
	"math"
	"path/filepath"
	"testing"
)

func TestPutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	fn, err := Create(path, 1000)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer fn.Close()

	fn.Put(42, 51.4817718, 7.2196903)
	fn.Put(999, -33.8568, 151.2153)

	lat, lon, ok := fn.Get(42)
	if !ok {
		t.Fatal("node 42 not found")
	}
	if math.Abs(lat-51.4817718) > 1e-7 || math.Abs(lon-7.2196903) > 1e-7 {
		t.Errorf("node 42 at (%v, %v)", lat, lon)
	}

	if _, _, ok := fn.Get(43); ok {
		t.Error("node 43 was never written")
	}
}

func TestOutOfRangeIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	fn, err := Create(path, 10)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer fn.Close()

	fn.Put(-1, 1, 1)
	fn.Put(10, 1, 1)
	if _, _, ok := fn.Get(-1); ok {
		t.Error("negative id must be absent")
	}
	if _, _, ok := fn.Get(10); ok {
		t.Error("id beyond the address space must be absent")
	}
}

func TestReopenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	fn, err := Create(path, 100)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	fn.Put(7, 48.137, 11.575)
	if err := fn.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := fn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ro, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ro.Close()

	lat, lon, ok := ro.Get(7)
	if !ok || math.Abs(lat-48.137) > 1e-7 || math.Abs(lon-11.575) > 1e-7 {
		t.Errorf("node 7 = (%v, %v, %v)", lat, lon, ok)
	}
	if err := ro.Sync(); err != nil {
		t.Errorf("Sync on a read-only index should be a no-op, got %v", err)
	}
}
