package store

import (
	"math/bits"
	"sync"

	"github.com/raida-net/coinnode/internal/protocol"
)

// denBitmap is one bit per possible coin serial number for a single
// denomination: bit 0 = free, bit 1 = owned. Its mutex is acquired only
// to set/clear a single bit or to scan; it must never be held across
// disk I/O and must never be acquired while holding the cache mutex
// (spec.md §4.C, §5).
type denBitmap struct {
	mu    sync.Mutex
	words []uint64
}

func newDenBitmap(totalSNs uint32) *denBitmap {
	return &denBitmap{words: make([]uint64, (totalSNs+63)/64)}
}

func (b *denBitmap) set(sn uint32, owned bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, bit := sn/64, sn%64
	if owned {
		b.words[w] |= 1 << bit
	} else {
		b.words[w] &^= 1 << bit
	}
}

func (b *denBitmap) get(sn uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, bit := sn/64, sn%64
	return b.words[w]&(1<<bit) != 0
}

// availableSNs scans for up to maxN free (bit==0) serial numbers,
// starting at sn 0. The scan holds the bitmap mutex for its duration and
// returns its result by value.
func (b *denBitmap) availableSNs(maxN int) []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint32, 0, maxN)
	for w, word := range b.words {
		if len(out) >= maxN {
			break
		}
		if word == ^uint64(0) {
			continue // fully owned word, skip fast
		}
		free := ^word
		for free != 0 && len(out) < maxN {
			bit := bits.TrailingZeros64(free)
			sn := uint32(w)*64 + uint32(bit)
			out = append(out, sn)
			free &^= 1 << uint(bit)
		}
	}
	return out
}

// ownedCount returns the number of owned (bit==1) serial numbers, used
// by the audit command to count owned coins per denomination.
func (b *denBitmap) ownedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Bitmaps holds one denBitmap per denomination.
type Bitmaps struct {
	tables [protocol.DenCount]*denBitmap
}

// NewBitmaps allocates an empty bitmap set sized for totalSNs per
// denomination. Callers must run InitScan before serving requests.
func NewBitmaps(totalSNs uint32) *Bitmaps {
	bm := &Bitmaps{}
	for i := range bm.tables {
		bm.tables[i] = newDenBitmap(totalSNs)
	}
	return bm
}

func (bm *Bitmaps) table(den protocol.Denomination) *denBitmap {
	return bm.tables[den.Index()]
}

// Set updates the bit for (den, sn). Writers must call this within the
// page-mutex critical section that also changes the record's MFS field,
// per spec.md §5's eventual-consistency rule.
func (bm *Bitmaps) Set(den protocol.Denomination, sn uint32, owned bool) {
	bm.table(den).set(sn, owned)
}

// Get returns the current bit for (den, sn).
func (bm *Bitmaps) Get(den protocol.Denomination, sn uint32) bool {
	return bm.table(den).get(sn)
}

// AvailableSNs returns up to maxN free serial numbers for den.
func (bm *Bitmaps) AvailableSNs(den protocol.Denomination, maxN int) []uint32 {
	return bm.table(den).availableSNs(maxN)
}

// OwnedCount returns the number of owned coins in den.
func (bm *Bitmaps) OwnedCount(den protocol.Denomination) int {
	return bm.table(den).ownedCount()
}
