package pipeline

import (
	"strconv"
	"strings"

	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/fingerprint"
)

type poolEntry struct {
	documentID  int64
	source      string
	fingerprint uint64
}

// RecencyPool is a read-only snapshot of recent fingerprints, newest first,
// partitioned by source.
type RecencyPool struct {
	bySource map[string][]poolEntry
	all      []poolEntry
	skipped  int
}

// NewRecencyPool parses stored fingerprints. Rows whose fingerprint is not a
// decimal uint64, or is zero, are skipped.
func NewRecencyPool(rows []db.PoolEntry) *RecencyPool {
	pool := &RecencyPool{
		bySource: make(map[string][]poolEntry),
		all:      make([]poolEntry, 0, len(rows)),
	}
	for _, row := range rows {
		value, err := strconv.ParseUint(strings.TrimSpace(row.Fingerprint), 10, 64)
		if err != nil || value == 0 {
			pool.skipped++
			continue
		}
		entry := poolEntry{documentID: row.DocumentID, source: row.Source, fingerprint: value}
		pool.bySource[row.Source] = append(pool.bySource[row.Source], entry)
		pool.all = append(pool.all, entry)
	}
	return pool
}

func (p *RecencyPool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.all)
}

func (p *RecencyPool) Skipped() int {
	if p == nil {
		return 0
	}
	return p.skipped
}

// Match returns the first pool document near fp, checking the document's
// own source before the rest of the pool. selfID is never matched.
func (p *RecencyPool) Match(selfID int64, source string, fp uint64, lengthHint int, explicit *int) (int64, bool) {
	if p == nil || fp == 0 {
		return 0, false
	}

	for _, entry := range p.bySource[source] {
		if entry.documentID == selfID {
			continue
		}
		if fingerprint.IsNearDuplicate(fp, entry.fingerprint, lengthHint, explicit) {
			return entry.documentID, true
		}
	}
	for _, entry := range p.all {
		if entry.source == source || entry.documentID == selfID {
			continue
		}
		if fingerprint.IsNearDuplicate(fp, entry.fingerprint, lengthHint, explicit) {
			return entry.documentID, true
		}
	}
	return 0, false
}
