package store

import (
	"log"
	"time"

	"github.com/raida-net/coinnode/internal/protocol"
)

// Store ties together the disk layout, page cache, and free-slot
// bitmaps into the single entry point handlers use to read and mutate
// coin records (spec.md §2 data flow: handlers reach disk state only
// through B/C/D).
type Store struct {
	Layout      Layout
	Cache       *Cache
	Bitmaps     *Bitmaps
	ReserveTTL  time.Duration
	logger      *log.Logger
	stats       *Stats
}

// Config bundles the parameters needed to open a Store.
type Config struct {
	Root           string
	RecordsPerPage uint32
	TotalPages     uint32
	Seed           []byte
	MaxCachedPages int
	ReserveTTL     time.Duration
}

// Open ensures every page file exists, builds the cache and bitmaps, and
// performs the bitmap init-scan (spec.md §4.C) before returning. Startup
// order matches spec.md §9: files must all exist before the scan runs.
func Open(cfg Config, logger *log.Logger) (*Store, error) {
	layout := Layout{Root: cfg.Root, RecordsPerPage: cfg.RecordsPerPage, TotalPages: cfg.TotalPages, Seed: cfg.Seed}
	if err := layout.EnsureFiles(logger); err != nil {
		return nil, err
	}
	stats := &Stats{}
	cache := NewCache(layout, cfg.MaxCachedPages, logger, stats)
	totalSNs := cfg.RecordsPerPage * cfg.TotalPages
	bitmaps := NewBitmaps(totalSNs)

	s := &Store{Layout: layout, Cache: cache, Bitmaps: bitmaps, ReserveTTL: cfg.ReserveTTL, logger: logger, stats: stats}
	if err := s.initScan(); err != nil {
		return nil, err
	}
	return s, nil
}

// initScan performs the single complete pass over every page of every
// denomination, setting bitmap bits from MFS values, via the cache (so
// newly loaded pages warm the cache during startup rather than bypassing
// it).
func (s *Store) initScan() error {
	for di := 0; di < protocol.DenCount; di++ {
		den := protocol.IndexToDenomination(di)
		for pageNo := uint32(0); pageNo < s.Layout.TotalPages; pageNo++ {
			p, err := s.Cache.Get(den, pageNo)
			if err != nil {
				return err
			}
			for slot := uint32(0); slot < s.Layout.RecordsPerPage; slot++ {
				rec := p.Record(slot, s.Layout.RecordsPerPage)
				sn := protocol.MakeSN(pageNo, slot, s.Layout.RecordsPerPage)
				s.Bitmaps.Set(den, uint32(sn), rec.Owned())
			}
			s.Cache.Release(p)
		}
	}
	return nil
}

// Stats returns the store's cache statistics, plus the cache's current
// size (not one of Stats' own counters since it isn't monotonic).
func (s *Store) Stats() Snapshot {
	snap := s.stats.Snapshot()
	snap.CachedPages = s.Cache.Len()
	return snap
}

// RecordsPerPage is a small convenience accessor used throughout
// handlers.
func (s *Store) RecordsPerPage() uint32 { return s.Layout.RecordsPerPage }

// GetRecord reads the record at (den, sn), taking and releasing the
// owning page's lock internally.
func (s *Store) GetRecord(den protocol.Denomination, sn uint32) (protocol.Record, error) {
	pageNo := sn / s.Layout.RecordsPerPage
	slot := sn % s.Layout.RecordsPerPage
	p, err := s.Cache.Get(den, pageNo)
	if err != nil {
		return protocol.Record{}, err
	}
	defer s.Cache.Release(p)
	return p.Record(slot, s.Layout.RecordsPerPage), nil
}

// SetRecord writes a new record at (den, sn) and updates the bitmap
// atomically from the caller's viewpoint: the bitmap write happens while
// the page mutex is still held, matching spec.md §5's rule that every
// writer take the bitmap mutex from within the page-mutex critical
// section.
func (s *Store) SetRecord(den protocol.Denomination, sn uint32, rec protocol.Record) error {
	pageNo := sn / s.Layout.RecordsPerPage
	slot := sn % s.Layout.RecordsPerPage
	p, err := s.Cache.Get(den, pageNo)
	if err != nil {
		return err
	}
	defer s.Cache.Release(p)
	p.SetRecord(slot, rec)
	s.Bitmaps.Set(den, sn, rec.Owned())
	return nil
}

// WithPage runs fn with the page owning sn locked, letting a handler
// perform a read-modify-write (e.g. reservation checks plus a record
// write) as one critical section without two separate cache lookups.
func (s *Store) WithPage(den protocol.Denomination, sn uint32, fn func(p *Page, slot uint32) error) error {
	pageNo := sn / s.Layout.RecordsPerPage
	slot := sn % s.Layout.RecordsPerPage
	p, err := s.Cache.Get(den, pageNo)
	if err != nil {
		return err
	}
	defer s.Cache.Release(p)
	return fn(p, slot)
}

// ReservePage reserves the page owning sn for sessionID.
func (s *Store) ReservePage(den protocol.Denomination, sn uint32, sessionID uint32) error {
	return s.WithPage(den, sn, func(p *Page, _ uint32) error {
		p.Reserve(sessionID, time.Now())
		return nil
	})
}

// PageReservedBy reports whether the page owning sn is currently
// reserved by sessionID (the AdminOverrideSession sentinel is not
// special-cased here; callers decide whether to exempt it).
func (s *Store) PageReservedBy(den protocol.Denomination, sn uint32, sessionID uint32) (bool, error) {
	var ok bool
	err := s.WithPage(den, sn, func(p *Page, _ uint32) error {
		ok = p.IsReservedBy(sessionID, s.ReserveTTL, time.Now())
		return nil
	})
	return ok, err
}
