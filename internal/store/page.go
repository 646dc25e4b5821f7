// Package store implements the on-demand paged coin store: disk layout,
// the LRU page cache, the per-denomination free-slot bitmap, page
// reservations, and the background flusher described in spec.md §4.A-E.
package store

import (
	"sync"
	"time"

	"github.com/raida-net/coinnode/internal/protocol"
)

// Page is a semantic container owning one denomination's page of coin
// records plus cache/reservation metadata. Every mutation of record
// bytes must happen while holding mu; callers obtained a *Page through
// Cache.Get and must call Cache.Release when done, never retaining the
// pointer past that call.
type Page struct {
	mu sync.Mutex

	Den    protocol.Denomination
	PageNo uint32

	data  []byte // RecordsPerPage * protocol.RecordSize bytes
	dirty bool

	reservedBy uint32
	reservedAt time.Time

	// LRU links and cache membership, mutated only under the owning
	// Cache's mutex. Never touch these outside Cache methods.
	prev, next *Page
	inCache    bool
}

// newPage allocates a page with zeroed metadata around an existing
// record buffer loaded from (or about to be written to) disk.
func newPage(den protocol.Denomination, pageNo uint32, data []byte) *Page {
	return &Page{Den: den, PageNo: pageNo, data: data}
}

// Lock acquires the page's mutex. Exported so callers that already hold
// a *Page reference outside the normal Cache.Get/Release path (e.g. the
// flusher snapshotting dirty pages) can serialize against writers.
func (p *Page) Lock() { p.mu.Lock() }

// Unlock releases the page's mutex.
func (p *Page) Unlock() { p.mu.Unlock() }

// Record returns the record at slot i. Caller must hold p's mutex.
func (p *Page) Record(i uint32, recordsPerPage uint32) protocol.Record {
	off := i * protocol.RecordSize
	return protocol.UnmarshalRecord(p.data[off : off+protocol.RecordSize])
}

// SetRecord writes the record at slot i and marks the page dirty. Caller
// must hold p's mutex.
func (p *Page) SetRecord(i uint32, r protocol.Record) {
	off := i * protocol.RecordSize
	r.Marshal(p.data[off : off+protocol.RecordSize])
	p.dirty = true
}

// Dirty reports the page's dirty flag. Caller must hold p's mutex, or
// call from the flusher's own snapshot goroutine only for reads that
// tolerate staleness.
func (p *Page) Dirty() bool { return p.dirty }

// Bytes returns the page's raw record bytes. Caller must hold p's mutex
// for the duration it inspects the slice; the slice must not be
// retained past Unlock.
func (p *Page) Bytes() []byte { return p.data }

// clearDirty marks the page clean. Caller must hold p's mutex.
func (p *Page) clearDirty() { p.dirty = false }
