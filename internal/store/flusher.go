package store

import (
	"log"
	"sync"
	"time"
)

// Flusher periodically snapshots and flushes dirty pages, modeled on the
// teacher's pager.Pager.Checkpoint: a short critical section that
// snapshots pointers under the cache mutex, followed by unlocked,
// per-page flush work (spec.md §4.E).
type Flusher struct {
	cache    *Cache
	interval time.Duration
	logger   *log.Logger

	stopOnce sync.Once
	done     chan struct{}
	finished chan struct{}
}

// NewFlusher creates a Flusher that is not yet running; call Start.
func NewFlusher(cache *Cache, interval time.Duration, logger *log.Logger) *Flusher {
	return &Flusher{
		cache:    cache,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start runs the flusher loop in its own goroutine until Stop is called.
func (f *Flusher) Start() {
	go f.loop()
}

func (f *Flusher) loop() {
	defer close(f.finished)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.done:
			f.flushOnce() // drain on exit
			return
		case <-ticker.C:
			f.flushOnce()
		}
	}
}

func (f *Flusher) flushOnce() {
	dirty := f.cache.DirtySnapshot()
	for _, p := range dirty {
		// A page may have been cleared and re-dirtied between the
		// snapshot and this flush; harmless, because flush is
		// idempotent (it always writes the page's current bytes).
		if err := f.cache.Flush(p); err != nil && f.logger != nil {
			f.logger.Printf("store: flusher: %v", err)
		}
	}
}

// Stop signals the flusher to exit and blocks until it has drained.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() { close(f.done) })
	<-f.finished
}
