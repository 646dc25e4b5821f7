package handler

import (
	"encoding/binary"

	"github.com/raida-net/coinnode/internal/locker"
	"github.com/raida-net/coinnode/internal/protocol"
)

func decodeLockerKey(b []byte) locker.Key {
	var k locker.Key
	copy(k[:], b[:protocol.ANSize])
	return k
}

// StoreSum XOR-accumulates each coin's stored AN, compares it to the
// caller's claimed sum, and on match overwrites every coin's AN with the
// locker key, updates MFS/bitmap, and incrementally adds the coins to
// the appropriate index. The locker key's reserved suffix pattern
// selects the plain or trade index.
func StoreSum(ctx *Ctx, payload []byte) Result {
	if len(payload) < 2+2*protocol.ANSize {
		return Result{Status: protocol.StatusPacketLength}
	}
	n := int(binary.BigEndian.Uint16(payload[:2]))
	const entrySize = 1 + 4 // den, sn
	base := 2
	if len(payload) < base+n*entrySize+2*protocol.ANSize {
		return Result{Status: protocol.StatusPacketLength}
	}
	coins := make([]struct {
		den protocol.Denomination
		sn  uint32
	}, n)
	for i := 0; i < n; i++ {
		off := base + i*entrySize
		coins[i].den = protocol.Denomination(int8(payload[off]))
		coins[i].sn = binary.BigEndian.Uint32(payload[off+1 : off+5])
	}
	sumOff := base + n*entrySize
	var claimedSum, lockerAN [protocol.ANSize]byte
	copy(claimedSum[:], payload[sumOff:sumOff+protocol.ANSize])
	copy(lockerAN[:], payload[sumOff+protocol.ANSize:sumOff+2*protocol.ANSize])

	if !locker.TradeSuffixPattern(lockerAN) && !locker.PlainLockerSuffixPattern(lockerAN) {
		return Result{Status: protocol.StatusInvalidPAN}
	}

	var xorAcc [protocol.ANSize]byte
	for _, c := range coins {
		rec, err := ctx.Store.GetRecord(c.den, c.sn)
		if err != nil {
			return Result{Status: protocol.StatusBadCoins}
		}
		for i := range xorAcc {
			xorAcc[i] ^= rec.AN[i]
		}
	}
	if xorAcc != claimedSum {
		return Result{Status: protocol.StatusAmountMismatch}
	}

	month := epochMonth()
	key := decodeLockerKey(lockerAN[:])
	lockerCoins := make([]locker.Coin, 0, len(coins))
	for _, c := range coins {
		if err := ctx.Store.SetRecord(c.den, c.sn, protocol.Record{AN: lockerAN, MFS: month}); err != nil {
			return Result{Status: protocol.StatusMemoryAlloc}
		}
		lockerCoins = append(lockerCoins, locker.Coin{Den: c.den, SN: c.sn})
	}
	if locker.TradeSuffixPattern(lockerAN) {
		ctx.TradeLockers.PutForSale(key, locker.DecodeTradePrice(lockerAN), lockerCoins...)
	} else {
		ctx.Lockers.Add(key, lockerCoins...)
	}
	return Result{Status: protocol.StatusAllPass}
}

// Remove removes a locker entirely from the plain locker index,
// returning its coins. The database has no separate "locker record"; the
// index is the only state removed here (spec.md §4.K).
func Remove(ctx *Ctx, payload []byte) Result {
	if len(payload) < protocol.ANSize {
		return Result{Status: protocol.StatusPacketLength}
	}
	key := decodeLockerKey(payload)
	coins := ctx.Lockers.Delete(key)
	if coins == nil {
		return Result{Status: protocol.StatusBadCoins}
	}
	body := encodeCoinRefs(coins)
	return Result{Status: protocol.StatusSuccess, Body: body}
}

// Peek returns a locker's coin list without mutating anything.
func Peek(ctx *Ctx, payload []byte) Result {
	if len(payload) < protocol.ANSize {
		return Result{Status: protocol.StatusPacketLength}
	}
	key := decodeLockerKey(payload)
	coins := ctx.Lockers.Peek(key)
	if coins == nil {
		return Result{Status: protocol.StatusBadCoins}
	}
	return Result{Status: protocol.StatusSuccess, Body: encodeCoinRefs(coins)}
}

// PutForSale lists an existing plain-locker bundle on the trade index.
// The database-first rule still applies: the locker's coins must
// already carry the trade-suffix AN (set by a prior store_sum) before
// this call links them into the marketplace's secondary index.
func PutForSale(ctx *Ctx, payload []byte) Result {
	if len(payload) < protocol.ANSize {
		return Result{Status: protocol.StatusPacketLength}
	}
	key := decodeLockerKey(payload)
	var an [protocol.ANSize]byte
	copy(an[:], payload[:protocol.ANSize])
	price := locker.DecodeTradePrice(an)

	coins := ctx.Lockers.Delete(key)
	if coins == nil {
		return Result{Status: protocol.StatusBadCoins}
	}
	ctx.TradeLockers.PutForSale(key, price, coins...)
	return Result{Status: protocol.StatusSuccess}
}

// ListLockersForSale returns every locker currently listed under a given
// coin type.
func ListLockersForSale(ctx *Ctx, payload []byte) Result {
	if len(payload) < 1 {
		return Result{Status: protocol.StatusPacketLength}
	}
	coinType := payload[0]
	listing := ctx.TradeLockers.ListForSale(coinType)

	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, uint16(len(listing)))
	for key, price := range listing {
		entry := make([]byte, protocol.ANSize+4)
		copy(entry, key[:])
		binary.BigEndian.PutUint32(entry[protocol.ANSize:], price.Price)
		body = append(body, entry...)
	}
	return Result{Status: protocol.StatusSuccess, Body: body}
}

// Buy transfers a trade locker's coins to the buyer's plain-locker key,
// maintaining the trade-remove-then-locker-add order spec.md §4.K
// requires, then (best-effort) settles payment through the external
// payment oracle.
func Buy(ctx *Ctx, payload []byte) Result {
	if len(payload) < 2*protocol.ANSize {
		return Result{Status: protocol.StatusPacketLength}
	}
	tradeKey := decodeLockerKey(payload[:protocol.ANSize])
	buyerKey := decodeLockerKey(payload[protocol.ANSize : 2*protocol.ANSize])

	coins := locker.Buy(ctx.TradeLockers, ctx.Lockers, tradeKey, buyerKey)
	if coins == nil {
		return Result{Status: protocol.StatusBadCoins}
	}

	if ctx.Oracle != nil {
		outcome, err := ctx.Oracle.Settle(PaymentRequest{})
		if err != nil || outcome != PaymentSuccess {
			// Payment settlement is best-effort and asynchronous in the
			// marketplace flow; coins have already moved, matching the
			// database-update-first rule.
			return Result{Status: protocol.StatusSuccess, Body: encodeCoinRefs(coins)}
		}
	}
	return Result{Status: protocol.StatusSuccess, Body: encodeCoinRefs(coins)}
}

// RemoveTradeLocker removes a trade-locker listing from both indices.
func RemoveTradeLocker(ctx *Ctx, payload []byte) Result {
	if len(payload) < protocol.ANSize {
		return Result{Status: protocol.StatusPacketLength}
	}
	key := decodeLockerKey(payload)
	coins := ctx.TradeLockers.Remove(key)
	if coins == nil {
		return Result{Status: protocol.StatusBadCoins}
	}
	return Result{Status: protocol.StatusSuccess, Body: encodeCoinRefs(coins)}
}

// PeekTradeLocker returns a trade locker's coin list without mutating it.
func PeekTradeLocker(ctx *Ctx, payload []byte) Result {
	if len(payload) < protocol.ANSize {
		return Result{Status: protocol.StatusPacketLength}
	}
	key := decodeLockerKey(payload)
	coins := ctx.TradeLockers.Peek(key)
	if coins == nil {
		return Result{Status: protocol.StatusBadCoins}
	}
	return Result{Status: protocol.StatusSuccess, Body: encodeCoinRefs(coins)}
}

// StoreMultipleSum applies StoreSum to each of several (coins, sum,
// locker_AN) groups packed back-to-back, each using StoreSum's own
// length-prefixed encoding.
func StoreMultipleSum(ctx *Ctx, payload []byte) Result {
	if len(payload) < 2 {
		return Result{Status: protocol.StatusPacketLength}
	}
	groupCount := int(binary.BigEndian.Uint16(payload[:2]))
	offset := 2
	results := make([]bool, 0, groupCount)
	for i := 0; i < groupCount; i++ {
		if offset+2 > len(payload) {
			return Result{Status: protocol.StatusPacketLength}
		}
		groupLen := int(binary.BigEndian.Uint16(payload[offset : offset+2]))
		offset += 2
		if offset+groupLen > len(payload) {
			return Result{Status: protocol.StatusPacketLength}
		}
		sub := StoreSum(ctx, payload[offset:offset+groupLen])
		results = append(results, sub.Status == protocol.StatusAllPass)
		offset += groupLen
	}
	return Result{Status: summarize(results), Body: packBits(results)}
}

func encodeCoinRefs(coins []locker.Coin) []byte {
	body := make([]byte, 2+5*len(coins))
	binary.BigEndian.PutUint16(body[:2], uint16(len(coins)))
	for i, c := range coins {
		off := 2 + i*5
		body[off] = byte(int8(c.Den))
		binary.BigEndian.PutUint32(body[off+1:off+5], c.SN)
	}
	return body
}
