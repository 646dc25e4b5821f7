package handler

import (
	"encoding/binary"

	"github.com/raida-net/coinnode/internal/protocol"
)

// PickupCoins creates the listed coins in this shard with a
// hash-derived AN; it destroys nothing and reads no external-shard
// quantity. Test-mode session id (TestModeSessionID) skips the actual
// mutation and reports only whether each denomination is valid.
func PickupCoins(ctx *Ctx, payload []byte) Result {
	if len(payload) < 4+2 {
		return Result{Status: protocol.StatusPacketLength}
	}
	session := binary.BigEndian.Uint32(payload[0:4])
	n := int(binary.BigEndian.Uint16(payload[4:6]))

	const entrySize = 1 + 4 // den, sn
	if len(payload) < 6+n*entrySize {
		return Result{Status: protocol.StatusPacketLength}
	}

	ok := make([]bool, n)
	month := epochMonth()
	for i := 0; i < n; i++ {
		off := 6 + i*entrySize
		den := protocol.Denomination(int8(payload[off]))
		sn := binary.BigEndian.Uint32(payload[off+1 : off+5])

		if session == protocol.TestModeSessionID {
			ok[i] = den.Valid()
			continue
		}
		snB := make([]byte, 4)
		binary.BigEndian.PutUint32(snB, sn)
		an := protocol.LegacyHash([]byte{ctx.NodeID}, []byte{byte(den)}, snB)
		if err := ctx.Store.SetRecord(den, sn, protocol.Record{AN: an, MFS: month}); err != nil {
			continue
		}
		ok[i] = true
	}
	return Result{Status: summarize(ok), Body: packBits(ok)}
}

// SwitchShardSumWithSNs destroys a set of coins in this shard (freeing
// them) and creates the same number of coins on another set of serial
// numbers; unequal counts are rejected with StatusCoinsNotDivisible.
// Records are written one at a time, so a write failure part way leaves
// the earlier writes in place. Test mode skips mutation.
func SwitchShardSumWithSNs(ctx *Ctx, payload []byte) Result {
	if len(payload) < 4+2+2 {
		return Result{Status: protocol.StatusPacketLength}
	}
	session := binary.BigEndian.Uint32(payload[0:4])
	destroyCount := int(binary.BigEndian.Uint16(payload[4:6]))
	createCount := int(binary.BigEndian.Uint16(payload[6:8]))
	if destroyCount != createCount {
		return Result{Status: protocol.StatusCoinsNotDivisible}
	}

	const entrySize = 1 + 4
	base := 8
	want := base + (destroyCount+createCount)*entrySize
	if len(payload) < want {
		return Result{Status: protocol.StatusPacketLength}
	}

	if session == protocol.TestModeSessionID {
		return Result{Status: protocol.StatusSuccess}
	}

	month := epochMonth()
	for i := 0; i < destroyCount; i++ {
		off := base + i*entrySize
		den := protocol.Denomination(int8(payload[off]))
		sn := binary.BigEndian.Uint32(payload[off+1 : off+5])
		if err := ctx.Store.SetRecord(den, sn, protocol.Record{MFS: 0}); err != nil {
			return Result{Status: protocol.StatusMemoryAlloc}
		}
	}
	for i := 0; i < createCount; i++ {
		off := base + (destroyCount+i)*entrySize
		den := protocol.Denomination(int8(payload[off]))
		sn := binary.BigEndian.Uint32(payload[off+1 : off+5])
		snB := make([]byte, 4)
		binary.BigEndian.PutUint32(snB, sn)
		an := protocol.LegacyHash([]byte{ctx.NodeID}, []byte{byte(den)}, snB)
		if err := ctx.Store.SetRecord(den, sn, protocol.Record{AN: an, MFS: month}); err != nil {
			return Result{Status: protocol.StatusMemoryAlloc}
		}
	}
	return Result{Status: protocol.StatusSuccess}
}
