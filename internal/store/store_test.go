package store

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/raida-net/coinnode/internal/protocol"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "store-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return Config{
		Root:           dir,
		RecordsPerPage: 16,
		TotalPages:     4,
		Seed:           []byte("test-seed"),
		MaxCachedPages: 2,
		ReserveTTL:     50 * time.Millisecond,
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(testConfig(t), log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenCreatesFilesAndInitScanMatchesMFS(t *testing.T) {
	s := openTestStore(t)
	den := protocol.Denomination(0)
	for sn := uint32(0); sn < s.Layout.RecordsPerPage; sn++ {
		rec, err := s.GetRecord(den, sn)
		if err != nil {
			t.Fatalf("GetRecord: %v", err)
		}
		if rec.Owned() {
			t.Fatalf("freshly created sn=%d should be free", sn)
		}
		if s.Bitmaps.Get(den, sn) {
			t.Fatalf("bitmap bit for fresh sn=%d should be 0", sn)
		}
	}
}

func TestSetRecordUpdatesBitmapAtomically(t *testing.T) {
	s := openTestStore(t)
	den := protocol.Denomination(1)
	rec := protocol.Record{MFS: 5}
	rec.AN[0] = 0xAB
	if err := s.SetRecord(den, 3, rec); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}
	got, err := s.GetRecord(den, 3)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.AN != rec.AN || got.MFS != rec.MFS {
		t.Fatalf("record mismatch: got %+v want %+v", got, rec)
	}
	if !s.Bitmaps.Get(den, 3) {
		t.Fatal("bitmap bit should be owned after SetRecord with MFS != 0")
	}
}

func TestCacheEvictsAndFlushesDirtyVictim(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxCachedPages = 1
	s, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	den := protocol.Denomination(2)

	rec := protocol.Record{MFS: 7}
	if err := s.SetRecord(den, 0, rec); err != nil { // page 0, dirtied
		t.Fatalf("SetRecord: %v", err)
	}
	if err := s.SetRecord(den, s.Layout.RecordsPerPage, rec); err != nil { // page 1, evicts page 0
		t.Fatalf("SetRecord: %v", err)
	}
	if s.Cache.Len() > cfg.MaxCachedPages {
		t.Fatalf("cache size %d exceeds MaxCachedPages %d", s.Cache.Len(), cfg.MaxCachedPages)
	}

	// Reload page 0 from disk directly; the evicted dirty page must have
	// been flushed before its memory was released.
	reloaded, err := s.Layout.loadFromDisk(den, 0)
	if err != nil {
		t.Fatalf("loadFromDisk: %v", err)
	}
	got := reloaded.Record(0, s.Layout.RecordsPerPage)
	if got.MFS != 7 {
		t.Fatalf("evicted dirty page was not flushed: MFS=%d", got.MFS)
	}
}

func TestFlushThenLoadRoundTrips(t *testing.T) {
	s := openTestStore(t)
	den := protocol.Denomination(-3)
	rec := protocol.Record{MFS: 12}
	rec.AN[5] = 0x42
	if err := s.SetRecord(den, 9, rec); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}
	p, err := s.Cache.Get(den, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	wantBytes := append([]byte(nil), p.Bytes()...)
	s.Cache.Release(p)
	if err := s.Cache.Flush(p); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded, err := s.Layout.loadFromDisk(den, 0)
	if err != nil {
		t.Fatalf("loadFromDisk: %v", err)
	}
	if string(reloaded.Bytes()) != string(wantBytes) {
		t.Fatal("flush-then-load bytes mismatch")
	}
}

func TestAvailableSNsOnlyReturnsFreeSlots(t *testing.T) {
	s := openTestStore(t)
	den := protocol.Denomination(4)
	owned := protocol.Record{MFS: 1}
	if err := s.SetRecord(den, 2, owned); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}
	sns := s.Bitmaps.AvailableSNs(den, 1000)
	for _, sn := range sns {
		if sn == 2 {
			t.Fatal("AvailableSNs returned an owned sn")
		}
	}
	total := int(s.Layout.RecordsPerPage * s.Layout.TotalPages)
	if len(sns) != total-1 {
		t.Fatalf("expected %d free sns, got %d", total-1, len(sns))
	}
}

func TestReservationExpiresAfterTTL(t *testing.T) {
	s := openTestStore(t)
	den := protocol.Denomination(0)
	if err := s.ReservePage(den, 0, 42); err != nil {
		t.Fatalf("ReservePage: %v", err)
	}
	ok, err := s.PageReservedBy(den, 0, 42)
	if err != nil {
		t.Fatalf("PageReservedBy: %v", err)
	}
	if !ok {
		t.Fatal("expected reservation to be live immediately")
	}
	time.Sleep(s.ReserveTTL * 2)
	ok, err = s.PageReservedBy(den, 0, 42)
	if err != nil {
		t.Fatalf("PageReservedBy: %v", err)
	}
	if ok {
		t.Fatal("expected reservation to have expired")
	}
}

func TestFlusherDrainsDirtyPagesOnStop(t *testing.T) {
	s := openTestStore(t)
	den := protocol.Denomination(0)
	rec := protocol.Record{MFS: 3}
	if err := s.SetRecord(den, 1, rec); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}
	f := NewFlusher(s.Cache, time.Hour, nil)
	f.Start()
	f.Stop()

	reloaded, err := s.Layout.loadFromDisk(den, 0)
	if err != nil {
		t.Fatalf("loadFromDisk: %v", err)
	}
	if got := reloaded.Record(1, s.Layout.RecordsPerPage); got.MFS != 3 {
		t.Fatalf("flusher did not drain dirty page on stop: MFS=%d", got.MFS)
	}
}
