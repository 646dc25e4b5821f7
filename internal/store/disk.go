package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/raida-net/coinnode/internal/protocol"
)

// Layout describes the fixed geometry of the page store: how many
// records fit in a page and how many pages exist per denomination.
// These are protocol constants (spec.md §3), supplied by configuration
// at startup and never changed afterward.
type Layout struct {
	Root           string
	RecordsPerPage uint32
	TotalPages     uint32
	Seed           []byte
}

// PageBytes returns the on-disk size of one page.
func (l Layout) PageBytes() int { return int(l.RecordsPerPage) * protocol.RecordSize }

// PagePath returns Data/<den>/<hi_byte_of_page_no>/<page_no>.bin under Root.
func (l Layout) PagePath(den protocol.Denomination, pageNo uint32) string {
	hi := (pageNo >> 24) & 0xFF
	return filepath.Join(l.Root, "Data", strconv.Itoa(int(den)), strconv.Itoa(int(hi)), strconv.Itoa(int(pageNo))+".bin")
}

// EnsureFiles creates every page file that does not yet exist, for every
// denomination in DenMin..DenMax and every page number 0..TotalPages-1,
// filled with deterministic default content (spec.md §4.A). Existing
// files are left untouched. This must run to completion before the
// bitmap init-scan (spec.md §4.C) and before any cache access.
func (l Layout) EnsureFiles(logger *log.Logger) error {
	for di := 0; di < protocol.DenCount; di++ {
		den := protocol.IndexToDenomination(di)
		for pageNo := uint32(0); pageNo < l.TotalPages; pageNo++ {
			path := l.PagePath(den, pageNo)
			if _, err := os.Stat(path); err == nil {
				continue
			} else if !os.IsNotExist(err) {
				return fmt.Errorf("store: stat %s: %w", path, err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("store: mkdir for %s: %w", path, err)
			}
			buf := make([]byte, l.PageBytes())
			for slot := uint32(0); slot < l.RecordsPerPage; slot++ {
				an := protocol.DefaultAN(l.Seed, den, pageNo, slot)
				rec := protocol.Record{AN: an, MFS: 0}
				off := slot * protocol.RecordSize
				rec.Marshal(buf[off : off+protocol.RecordSize])
			}
			if err := os.WriteFile(path, buf, 0o644); err != nil {
				return fmt.Errorf("store: write %s: %w", path, err)
			}
			if logger != nil {
				logger.Printf("store: created page file %s", path)
			}
		}
	}
	return nil
}

// loadFromDisk reads one page's full contents in a single read.
func (l Layout) loadFromDisk(den protocol.Denomination, pageNo uint32) (*Page, error) {
	path := l.PagePath(den, pageNo)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: load page den=%d page=%d: %w", den, pageNo, err)
	}
	if len(data) != l.PageBytes() {
		return nil, fmt.Errorf("store: page %s has size %d, want %d", path, len(data), l.PageBytes())
	}
	return newPage(den, pageNo, data), nil
}

// flushRetries bounds the number of write attempts flush makes before
// giving up and leaving the page dirty for a later retry.
const flushRetries = 3

// flushBackoff is the pause between retry attempts.
const flushBackoff = 100 * time.Millisecond

// flushToDisk writes a page's record bytes in one write, retrying
// transient I/O failures up to flushRetries times. Caller must hold the
// page's mutex; the write is atomic at the file level (complete write or
// no observable change) because the bytes go to a temporary file beside
// the page file, which is then renamed over it.
func (l Layout) flushToDisk(p *Page, logger *log.Logger) error {
	path := l.PagePath(p.Den, p.PageNo)
	tmp := path + ".tmp"
	var lastErr error
	for attempt := 1; attempt <= flushRetries; attempt++ {
		err := os.WriteFile(tmp, p.data, 0o644)
		if err == nil {
			err = os.Rename(tmp, path)
		}
		if err != nil {
			lastErr = err
			if logger != nil {
				logger.Printf("store: flush attempt %d/%d failed for %s: %v", attempt, flushRetries, path, err)
			}
			time.Sleep(flushBackoff)
			continue
		}
		p.clearDirty()
		return nil
	}
	if logger != nil {
		logger.Printf("store: FATAL flush of %s failed after %d attempts: %v; page remains dirty", path, flushRetries, lastErr)
	}
	return fmt.Errorf("store: flush %s failed after %d attempts: %w", path, flushRetries, lastErr)
}
