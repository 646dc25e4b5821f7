package handler

import (
	"encoding/binary"

	"github.com/raida-net/coinnode/internal/protocol"
)

// GetAvailableChangeSNs scans the target denomination (one step below
// for BREAK, one step above for JOIN), reserving every visited page for
// the caller's session and collecting free slots up to
// ChangeMaxAvailableCoins.
func GetAvailableChangeSNs(ctx *Ctx, payload []byte) Result {
	if len(payload) < 4+1+1 {
		return Result{Status: protocol.StatusPacketLength}
	}
	session := binary.BigEndian.Uint32(payload[0:4])
	op := payload[4]
	den := protocol.Denomination(int8(payload[5]))

	var target protocol.Denomination
	switch op {
	case protocol.ChangeOpBreak:
		target = den - 1
	case protocol.ChangeOpJoin:
		target = den + 1
	default:
		return Result{Status: protocol.StatusInvalidSNOrDenomination}
	}
	if !target.Valid() {
		return Result{Status: protocol.StatusInvalidSNOrDenomination}
	}

	sns := ctx.Store.Bitmaps.AvailableSNs(target, protocol.ChangeMaxAvailableCoins)
	for _, sn := range sns {
		if err := ctx.Store.ReservePage(target, sn, session); err != nil {
			return Result{Status: protocol.StatusMemoryAlloc}
		}
	}

	body := make([]byte, 1+2+4*len(sns))
	body[0] = byte(int8(target))
	binary.BigEndian.PutUint16(body[1:3], uint16(len(sns)))
	for i, sn := range sns {
		off := 3 + i*4
		binary.BigEndian.PutUint32(body[off:off+4], sn)
	}
	return Result{Status: protocol.StatusSuccess, Body: body}
}

// changeTargetCount is the fixed 1:10 ratio spec.md §4.H/§8 ties break
// and join to.
const changeTargetCount = 10

// Break authenticates src, verifies that each of its ten targets (one
// denomination below src) is reserved by the caller's session, installs the
// caller's ANs on the targets, and destroys src.
func Break(ctx *Ctx, payload []byte) Result {
	const targetEntrySize = 4 + protocol.ANSize // sn, AN
	want := 4 + coinEntrySize + changeTargetCount*targetEntrySize
	if len(payload) < want {
		return Result{Status: protocol.StatusPacketLength}
	}
	session := binary.BigEndian.Uint32(payload[0:4])
	srcDen, srcSN, srcAN := decodeCoinEntry(payload[4 : 4+coinEntrySize])

	srcRec, err := ctx.Store.GetRecord(srcDen, srcSN)
	if err != nil || srcRec.AN != srcAN {
		return Result{Status: protocol.StatusAllFail}
	}

	targetDen := srcDen - 1
	if !targetDen.Valid() {
		return Result{Status: protocol.StatusInvalidSNOrDenomination}
	}

	targets := make([]struct {
		sn uint32
		an [protocol.ANSize]byte
	}, changeTargetCount)
	base := 4 + coinEntrySize
	for i := 0; i < changeTargetCount; i++ {
		off := base + i*targetEntrySize
		targets[i].sn = binary.BigEndian.Uint32(payload[off : off+4])
		copy(targets[i].an[:], payload[off+4:off+4+protocol.ANSize])
	}

	for _, t := range targets {
		reserved, rerr := ctx.Store.PageReservedBy(targetDen, t.sn, session)
		if rerr != nil || !reserved {
			return Result{Status: protocol.StatusPageNotReserved}
		}
	}

	month := epochMonth()
	for _, t := range targets {
		if err := ctx.Store.SetRecord(targetDen, t.sn, protocol.Record{AN: t.an, MFS: month}); err != nil {
			return Result{Status: protocol.StatusMemoryAlloc}
		}
	}

	scrambled, err := randomAN()
	if err != nil {
		return Result{Status: protocol.StatusMemoryAlloc}
	}
	if err := ctx.Store.SetRecord(srcDen, srcSN, protocol.Record{AN: scrambled, MFS: 0}); err != nil {
		return Result{Status: protocol.StatusMemoryAlloc}
	}
	return Result{Status: protocol.StatusSuccess}
}

// Join authenticates all ten lower-valued source coins, frees them, and
// installs the caller's AN on the session-reserved target.
func Join(ctx *Ctx, payload []byte) Result {
	const sourceEntrySize = coinEntrySize
	want := 4 + 1 + 4 + protocol.ANSize + changeTargetCount*sourceEntrySize
	if len(payload) < want {
		return Result{Status: protocol.StatusPacketLength}
	}
	session := binary.BigEndian.Uint32(payload[0:4])
	targetDen := protocol.Denomination(int8(payload[4]))
	targetSN := binary.BigEndian.Uint32(payload[5:9])
	var targetAN [protocol.ANSize]byte
	copy(targetAN[:], payload[9:9+protocol.ANSize])

	base := 9 + protocol.ANSize
	sources := make([]struct {
		den protocol.Denomination
		sn  uint32
		an  [protocol.ANSize]byte
	}, changeTargetCount)
	for i := 0; i < changeTargetCount; i++ {
		den, sn, an := decodeCoinEntry(payload[base+i*sourceEntrySize : base+(i+1)*sourceEntrySize])
		sources[i] = struct {
			den protocol.Denomination
			sn  uint32
			an  [protocol.ANSize]byte
		}{den, sn, an}
	}

	for _, s := range sources {
		rec, err := ctx.Store.GetRecord(s.den, s.sn)
		if err != nil || rec.AN != s.an {
			return Result{Status: protocol.StatusAllFail}
		}
	}

	reserved, rerr := ctx.Store.PageReservedBy(targetDen, targetSN, session)
	if rerr != nil || !reserved {
		return Result{Status: protocol.StatusPageNotReserved}
	}

	for _, s := range sources {
		if err := ctx.Store.SetRecord(s.den, s.sn, protocol.Record{MFS: 0}); err != nil {
			return Result{Status: protocol.StatusMemoryAlloc}
		}
	}

	month := epochMonth()
	if err := ctx.Store.SetRecord(targetDen, targetSN, protocol.Record{AN: targetAN, MFS: month}); err != nil {
		return Result{Status: protocol.StatusMemoryAlloc}
	}
	return Result{Status: protocol.StatusSuccess}
}
