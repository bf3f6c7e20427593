package pipeline

import (
	"testing"

	"horse.fit/curator/internal/db"
)

func TestRecencyPoolMatch(t *testing.T) {
	t.Parallel()

	const fp = uint64(0xF0F0F0F0F0F0F0F0)
	pool := NewRecencyPool([]db.PoolEntry{
		poolRow(9, "wire-b", fp),
		poolRow(8, "wire-a", fp^0b111),
		poolRow(7, "wire-a", fp),
		{DocumentID: 6, Source: "wire-a", Fingerprint: " 17361641481138401520 "},
	})
	if pool.Size() != 4 || pool.Skipped() != 0 {
		t.Fatalf("unexpected pool size %d / skipped %d", pool.Size(), pool.Skipped())
	}

	if id, ok := pool.Match(100, "wire-a", fp, 0, nil); !ok || id != 8 {
		t.Fatalf("expected newest same-source match 8, got %d %v", id, ok)
	}
	strict := 0
	if id, ok := pool.Match(100, "wire-a", fp, 0, &strict); !ok || id != 7 {
		t.Fatalf("expected exact same-source match 7, got %d %v", id, ok)
	}
	if id, ok := pool.Match(7, "wire-c", fp, 0, &strict); !ok || id != 9 {
		t.Fatalf("expected global match 9, got %d %v", id, ok)
	}
	if _, ok := pool.Match(100, "wire-a", 0, 0, nil); ok {
		t.Fatalf("zero fingerprint must never match")
	}
}

func TestRecencyPoolSkipsSelf(t *testing.T) {
	t.Parallel()

	pool := NewRecencyPool([]db.PoolEntry{poolRow(5, "wire-a", 42)})
	if _, ok := pool.Match(5, "wire-a", 42, 0, nil); ok {
		t.Fatalf("a document must not match itself")
	}

	var empty *RecencyPool
	if _, ok := empty.Match(1, "wire-a", 42, 0, nil); ok || empty.Size() != 0 {
		t.Fatalf("nil pool must be empty")
	}
}
