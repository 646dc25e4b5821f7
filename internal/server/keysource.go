package server

import (
	"encoding/binary"
	"fmt"

	"github.com/raida-net/coinnode/internal/locker"
	"github.com/raida-net/coinnode/internal/protocol"
	"github.com/raida-net/coinnode/internal/store"
	"github.com/raida-net/coinnode/internal/wire"
)

// keySource implements wire.KeySource over the page store and locker
// indices, letting the wire package resolve request keys without
// depending on either package directly.
type keySource struct {
	store        *store.Store
	lockers      *locker.Index
	tradeLockers *locker.TradeIndex
}

var _ wire.KeySource = (*keySource)(nil)

func (k *keySource) CoinAN(den protocol.Denomination, sn uint32) ([protocol.ANSize]byte, error) {
	rec, err := k.store.GetRecord(den, sn)
	if err != nil {
		return [protocol.ANSize]byte{}, err
	}
	return rec.AN, nil
}

// LockerANByPrefix resolves a locker-encryption request's key from the
// 5-byte locator (den@17, sn@18..21): those bytes are the leading 5
// bytes of the 16-byte locker AN, a prefix search over the live locker
// indices. This is a deliberate simplification: the distilled
// specification describes the locator as identifying "the locker-index
// AN for prefix at bytes 17..21" without naming a lookup structure, so
// keySource linearly scans the small number of currently open lockers
// rather than maintaining a dedicated prefix index.
func (k *keySource) LockerANByPrefix(den protocol.Denomination, sn uint32) ([protocol.ANSize]byte, error) {
	prefix := make([]byte, 5)
	prefix[0] = byte(den)
	binary.BigEndian.PutUint32(prefix[1:], sn)

	if an, ok := k.lockers.MatchPrefix(prefix); ok {
		return an, nil
	}
	if an, ok := k.tradeLockers.MatchPrefix(prefix); ok {
		return an, nil
	}
	return [protocol.ANSize]byte{}, fmt.Errorf("server: no locker key matches prefix %x", prefix)
}
