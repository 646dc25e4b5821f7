// Package ticket implements the fixed-size healing ticket pool
// described in spec.md §4.I: per-slot mutex, non-blocking allocation,
// opportunistic and periodic expiry.
package ticket

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raida-net/coinnode/internal/protocol"
)

// CoinRef names one coin a ticket attests to.
type CoinRef struct {
	Den protocol.Denomination
	SN  uint32
}

// Ticket records the coins authenticated for one get_ticket call and the
// peer claim bitmap used by fix()'s quorum vote.
type Ticket struct {
	mu sync.Mutex

	id        uuid.UUID
	createdAt time.Time
	coins     []CoinRef
	claims    [protocol.TotalPeers]bool
	live      bool
}

// ID returns the ticket's identifier.
func (t *Ticket) ID() uuid.UUID { return t.id }

// Coins returns a copy of the ticket's coin list. Caller must hold the
// ticket's lock (obtained via Pool.Get/Pool.Allocate) for consistency
// with concurrent claim updates.
func (t *Ticket) Coins() []CoinRef {
	return append([]CoinRef(nil), t.coins...)
}

// Lock/Unlock expose the per-slot mutex so callers can hold the ticket
// across a multi-step operation (check-claim-then-set).
func (t *Ticket) Lock()   { t.mu.Lock() }
func (t *Ticket) Unlock() { t.mu.Unlock() }

// expired reports whether t has outlived ttl as of now. Caller must hold
// t's lock.
func (t *Ticket) expired(ttl time.Duration, now time.Time) bool {
	return !t.live || now.Sub(t.createdAt) >= ttl
}

// ClaimedBy reports whether peer idx has already claimed t. Caller must
// hold t's lock.
func (t *Ticket) ClaimedBy(peerIdx int) bool { return t.claims[peerIdx] }

// SetClaimed marks peer idx as having claimed t. Caller must hold t's
// lock.
func (t *Ticket) SetClaimed(peerIdx int) { t.claims[peerIdx] = true }

// Pool is a fixed-size array of mutex-guarded ticket slots.
type Pool struct {
	ttl   time.Duration
	slots []*Ticket
}

// NewPool allocates size empty slots.
func NewPool(size int, ttl time.Duration) *Pool {
	p := &Pool{ttl: ttl, slots: make([]*Ticket, size)}
	for i := range p.slots {
		p.slots[i] = &Ticket{}
	}
	return p
}

// ErrExhausted is returned by Allocate when every slot is either live or
// momentarily locked by another goroutine's try.
var ErrExhausted = poolExhausted{}

type poolExhausted struct{}

func (poolExhausted) Error() string { return "ticket: pool exhausted" }

// Allocate walks the slots with a non-blocking try-lock and initializes
// the first acquired empty or expired slot. The returned ticket is
// locked; caller must Unlock it when done populating coins.
func (p *Pool) Allocate(coins []CoinRef) (*Ticket, error) {
	now := time.Now()
	for _, t := range p.slots {
		if !t.mu.TryLock() {
			continue
		}
		if t.live && !t.expired(p.ttl, now) {
			t.mu.Unlock()
			continue
		}
		id, err := uuid.NewRandom()
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.id = id
		t.createdAt = now
		t.coins = append([]CoinRef(nil), coins...)
		t.claims = [protocol.TotalPeers]bool{}
		t.live = true
		return t, nil
	}
	return nil, ErrExhausted
}

// Get scans for id and returns the matching ticket locked, or nil if no
// live ticket with that id exists.
func (p *Pool) Get(id uuid.UUID) *Ticket {
	now := time.Now()
	for _, t := range p.slots {
		t.mu.Lock()
		if t.live && t.id == id {
			if t.expired(p.ttl, now) {
				t.live = false
				t.mu.Unlock()
				return nil
			}
			return t
		}
		t.mu.Unlock()
	}
	return nil
}

// Release unlocks a ticket obtained from Allocate or Get.
func (p *Pool) Release(t *Ticket) { t.mu.Unlock() }

// Sweep expires every slot whose TTL has elapsed. Intended to run
// periodically alongside the background flusher.
func (p *Pool) Sweep() {
	now := time.Now()
	for _, t := range p.slots {
		t.mu.Lock()
		if t.live && t.expired(p.ttl, now) {
			t.live = false
		}
		t.mu.Unlock()
	}
}

// Utilization reports how many of the pool's slots currently hold a
// live, unexpired ticket, for the admin stats surface.
func (p *Pool) Utilization() (live, total int) {
	now := time.Now()
	for _, t := range p.slots {
		t.mu.Lock()
		if t.live && !t.expired(p.ttl, now) {
			live++
		}
		t.mu.Unlock()
	}
	return live, len(p.slots)
}
