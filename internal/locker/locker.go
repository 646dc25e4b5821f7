// Package locker implements the in-memory locker and trade-locker
// indices described in spec.md §4.K: incrementally maintained
// key→coins maps updated only after the corresponding database change.
package locker

import (
	"sync"

	"github.com/raida-net/coinnode/internal/protocol"
)

// Key is a 16-byte locker AN used as an index key.
type Key [protocol.ANSize]byte

// Coin identifies one coin held by a locker.
type Coin struct {
	Den protocol.Denomination
	SN  uint32
}

// TradePrice decodes the coin-type and price fields a trade-locker AN
// encodes at fixed offsets.
type TradePrice struct {
	CoinType byte
	Price    uint32
}

// Index is the plain locker index: key → coins, mutated under a single
// mutex. Bulk operations avoid rebuilding the whole map.
type Index struct {
	mu      sync.RWMutex
	entries map[Key][]Coin
}

// NewIndex returns an empty locker index.
func NewIndex() *Index {
	return &Index{entries: make(map[Key][]Coin)}
}

// Add appends coins to key's entry, creating it if absent. Call only
// after the underlying database change has already been committed.
func (idx *Index) Add(key Key, coins ...Coin) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[key] = append(idx.entries[key], coins...)
}

// Remove deletes the listed coins from key's entry. If the entry becomes
// empty it is dropped from the map.
func (idx *Index) Remove(key Key, coins ...Coin) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(key, coins...)
}

func (idx *Index) removeLocked(key Key, coins ...Coin) {
	cur, ok := idx.entries[key]
	if !ok {
		return
	}
	kill := make(map[Coin]bool, len(coins))
	for _, c := range coins {
		kill[c] = true
	}
	out := cur[:0]
	for _, c := range cur {
		if !kill[c] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(idx.entries, key)
		return
	}
	idx.entries[key] = out
}

// Peek returns a copy of key's coin list, or nil if the key is absent.
func (idx *Index) Peek(key Key) []Coin {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	cur, ok := idx.entries[key]
	if !ok {
		return nil
	}
	return append([]Coin(nil), cur...)
}

// MatchPrefix linearly scans for a key whose leading len(prefix) bytes
// equal prefix, returning the first match. Used by the wire codec's
// locker-encryption key derivation (spec.md §4.F type 2).
func (idx *Index) MatchPrefix(prefix []byte) (Key, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for k := range idx.entries {
		if keyHasPrefix(k, prefix) {
			return k, true
		}
	}
	return Key{}, false
}

func keyHasPrefix(k Key, prefix []byte) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, b := range prefix {
		if k[i] != b {
			return false
		}
	}
	return true
}

// Delete drops key's entry entirely, returning its former coins.
func (idx *Index) Delete(key Key) []Coin {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cur := idx.entries[key]
	delete(idx.entries, key)
	return cur
}

// TradeIndex is the locker index plus a secondary coin_type → keys
// index for marketplace listing queries.
type TradeIndex struct {
	mu        sync.RWMutex
	entries   map[Key][]Coin
	byType    map[byte]map[Key]TradePrice
}

// NewTradeIndex returns an empty trade-locker index.
func NewTradeIndex() *TradeIndex {
	return &TradeIndex{
		entries: make(map[Key][]Coin),
		byType:  make(map[byte]map[Key]TradePrice),
	}
}

// PutForSale registers key as listed under price, adding it to the
// secondary coin_type index, and records its coins.
func (t *TradeIndex) PutForSale(key Key, price TradePrice, coins ...Coin) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = append(t.entries[key], coins...)
	bucket, ok := t.byType[price.CoinType]
	if !ok {
		bucket = make(map[Key]TradePrice)
		t.byType[price.CoinType] = bucket
	}
	bucket[key] = price
}

// ListForSale returns every key currently listed under coinType, with
// its asking price.
func (t *TradeIndex) ListForSale(coinType byte) map[Key]TradePrice {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bucket := t.byType[coinType]
	out := make(map[Key]TradePrice, len(bucket))
	for k, v := range bucket {
		out[k] = v
	}
	return out
}

// Peek returns a copy of key's coin list, or nil if absent.
func (t *TradeIndex) Peek(key Key) []Coin {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur, ok := t.entries[key]
	if !ok {
		return nil
	}
	return append([]Coin(nil), cur...)
}

// MatchPrefix linearly scans the trade index for a key whose leading
// bytes equal prefix.
func (t *TradeIndex) MatchPrefix(prefix []byte) (Key, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for k := range t.entries {
		if keyHasPrefix(k, prefix) {
			return k, true
		}
	}
	return Key{}, false
}

// Remove deletes key from both the primary and secondary indices.
func (t *TradeIndex) Remove(key Key) []Coin {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(key)
}

func (t *TradeIndex) removeLocked(key Key) []Coin {
	coins := t.entries[key]
	delete(t.entries, key)
	for coinType, bucket := range t.byType {
		if _, ok := bucket[key]; ok {
			delete(bucket, key)
			if len(bucket) == 0 {
				delete(t.byType, coinType)
			}
		}
	}
	return coins
}

// Buy transfers key's coins from the trade index to dst (a plain
// locker index keyed by the buyer-supplied locker key), maintaining the
// consistent lock order required by spec.md §4.K: trade-remove before
// locker-add.
func Buy(t *TradeIndex, dst *Index, tradeKey Key, destKey Key) []Coin {
	t.mu.Lock()
	coins := t.removeLocked(tradeKey)
	t.mu.Unlock()

	if len(coins) == 0 {
		return nil
	}

	dst.mu.Lock()
	dst.entries[destKey] = append(dst.entries[destKey], coins...)
	dst.mu.Unlock()

	return coins
}

// TradeSuffixPattern reports whether a locker AN's fixed suffix marks it
// as a trade locker: 0xeeee in bytes 14..15. A plain locker instead
// carries 0xffffffff in bytes 12..15.
func TradeSuffixPattern(an [protocol.ANSize]byte) bool {
	return an[14] == 0xee && an[15] == 0xee
}

// PlainLockerSuffixPattern reports whether a locker AN carries the
// plain-locker reserved suffix 0xffffffff in bytes 12..15.
func PlainLockerSuffixPattern(an [protocol.ANSize]byte) bool {
	return an[12] == 0xff && an[13] == 0xff && an[14] == 0xff && an[15] == 0xff
}

// DecodeTradePrice extracts the coin-type and price fields a trade AN
// encodes, per spec.md §3's locker-index AN layout.
func DecodeTradePrice(an [protocol.ANSize]byte) TradePrice {
	return TradePrice{
		CoinType: an[0],
		Price:    uint32(an[1])<<24 | uint32(an[2])<<16 | uint32(an[3])<<8 | uint32(an[4]),
	}
}
