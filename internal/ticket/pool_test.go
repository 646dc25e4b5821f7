package ticket

import (
	"testing"
	"time"

	"github.com/raida-net/coinnode/internal/protocol"
)

func TestAllocateAssignsDistinctIDs(t *testing.T) {
	p := NewPool(4, time.Minute)
	coins := []CoinRef{{Den: 2, SN: 1}}

	t1, err := p.Allocate(coins)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	id1 := t1.ID()
	p.Release(t1)

	t2, err := p.Allocate(coins)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	id2 := t2.ID()
	p.Release(t2)

	if id1 == id2 {
		t.Fatal("expected distinct ticket ids")
	}
}

func TestPoolExhaustedWhenAllSlotsLive(t *testing.T) {
	p := NewPool(2, time.Minute)
	coins := []CoinRef{{Den: 0, SN: 0}}

	t1, err := p.Allocate(coins)
	if err != nil {
		t.Fatalf("Allocate 1: %v", err)
	}
	t2, err := p.Allocate(coins)
	if err != nil {
		t.Fatalf("Allocate 2: %v", err)
	}
	defer p.Release(t1)
	defer p.Release(t2)

	if _, err := p.Allocate(coins); err != ErrExhausted {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
}

func TestGetReturnsTicketByID(t *testing.T) {
	p := NewPool(4, time.Minute)
	coins := []CoinRef{{Den: protocol.Denomination(1), SN: 42}}

	alloc, err := p.Allocate(coins)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	id := alloc.ID()
	p.Release(alloc)

	got := p.Get(id)
	if got == nil {
		t.Fatal("Get returned nil for live ticket")
	}
	defer p.Release(got)

	gotCoins := got.Coins()
	if len(gotCoins) != 1 || gotCoins[0].SN != 42 {
		t.Fatalf("unexpected coins: %+v", gotCoins)
	}
}

func TestTicketExpiresAfterTTL(t *testing.T) {
	p := NewPool(2, time.Millisecond)
	alloc, err := p.Allocate([]CoinRef{{Den: 0, SN: 1}})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	id := alloc.ID()
	p.Release(alloc)

	time.Sleep(5 * time.Millisecond)

	if got := p.Get(id); got != nil {
		p.Release(got)
		t.Fatal("expected expired ticket to be unreachable via Get")
	}
}

func TestSweepClearsExpiredSlots(t *testing.T) {
	p := NewPool(2, time.Millisecond)
	alloc, err := p.Allocate([]CoinRef{{Den: 0, SN: 1}})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	p.Release(alloc)

	time.Sleep(5 * time.Millisecond)
	p.Sweep()

	// Pool should now be able to allocate both slots fresh.
	if _, err := p.Allocate([]CoinRef{{Den: 0, SN: 1}}); err != nil {
		t.Fatalf("Allocate after sweep: %v", err)
	}
	if _, err := p.Allocate([]CoinRef{{Den: 0, SN: 2}}); err != nil {
		t.Fatalf("Allocate after sweep 2: %v", err)
	}
}

func TestClaimTracking(t *testing.T) {
	p := NewPool(1, time.Minute)
	tk, err := p.Allocate([]CoinRef{{Den: 0, SN: 1}})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer p.Release(tk)

	if tk.ClaimedBy(5) {
		t.Fatal("expected peer 5 unclaimed initially")
	}
	tk.SetClaimed(5)
	if !tk.ClaimedBy(5) {
		t.Fatal("expected peer 5 claimed after SetClaimed")
	}
	if tk.ClaimedBy(6) {
		t.Fatal("peer 6 should remain unclaimed")
	}
}
