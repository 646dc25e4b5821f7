package handler

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/raida-net/coinnode/internal/protocol"
)

// snRange is a compacted run of consecutive free serial numbers.
type snRange struct {
	start, end uint32 // inclusive
}

// compactRuns folds a sorted list of serial numbers into runs of
// consecutive values, as spec.md §4.H's get_available_sns requires.
func compactRuns(sns []uint32) []snRange {
	if len(sns) == 0 {
		return nil
	}
	var runs []snRange
	start, prev := sns[0], sns[0]
	for _, sn := range sns[1:] {
		if sn == prev+1 {
			prev = sn
			continue
		}
		runs = append(runs, snRange{start, prev})
		start, prev = sn, sn
	}
	runs = append(runs, snRange{start, prev})
	return runs
}

// GetAvailableSNs is admin-authenticated: for each requested
// denomination it scans for free slots, reserves each visited page for
// the caller's session, compacts the result into runs, and returns
// denomination-tagged blocks.
func GetAvailableSNs(ctx *Ctx, payload []byte) Result {
	if len(payload) < 4+protocol.AdminKeySize+2 {
		return Result{Status: protocol.StatusPacketLength}
	}
	session := binary.BigEndian.Uint32(payload[0:4])
	adminKey := payload[4 : 4+protocol.AdminKeySize]
	if !checkAdmin(ctx, adminKey) {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	denMask := binary.BigEndian.Uint16(payload[4+protocol.AdminKeySize : 4+protocol.AdminKeySize+2])

	var body []byte
	for di := 0; di < protocol.DenCount; di++ {
		if denMask&(1<<uint(di)) == 0 {
			continue
		}
		den := protocol.IndexToDenomination(di)
		sns := ctx.Store.Bitmaps.AvailableSNs(den, protocol.ExecutiveMaxAvailableCoins)
		for _, sn := range sns {
			if err := ctx.Store.ReservePage(den, sn, session); err != nil {
				return Result{Status: protocol.StatusMemoryAlloc}
			}
		}
		runs := compactRuns(sns)

		block := make([]byte, 1+2)
		block[0] = byte(int8(den))
		binary.BigEndian.PutUint16(block[1:3], uint16(len(runs)))
		for _, r := range runs {
			rb := make([]byte, 8)
			binary.BigEndian.PutUint32(rb[0:4], r.start)
			binary.BigEndian.PutUint32(rb[4:8], r.end)
			block = append(block, rb...)
		}
		body = append(body, block...)
	}
	return Result{Status: protocol.StatusSuccess, Body: body}
}

// CreateCoins requires each target page reserved by the caller's session
// (or AdminOverrideSession); it returns the previous AN to the caller and
// installs a hash-derived AN, choosing MD5-family or SHA-256-family
// hashing by the caller-declared protocol revision.
func CreateCoins(ctx *Ctx, payload []byte) Result {
	if len(payload) < 4+protocol.AdminKeySize+1+2 {
		return Result{Status: protocol.StatusPacketLength}
	}
	session := binary.BigEndian.Uint32(payload[0:4])
	adminKey := payload[4 : 4+protocol.AdminKeySize]
	if !checkAdmin(ctx, adminKey) {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	off := 4 + protocol.AdminKeySize
	modern := payload[off] != 0
	off++
	n := int(binary.BigEndian.Uint16(payload[off : off+2]))
	off += 2

	const entrySize = 1 + 4 // den, sn
	if len(payload) < off+n*entrySize {
		return Result{Status: protocol.StatusPacketLength}
	}

	month := epochMonth()
	prevANs := make([]byte, 0, n*protocol.ANSize)
	ok := make([]bool, n)
	for i := 0; i < n; i++ {
		eoff := off + i*entrySize
		den := protocol.Denomination(int8(payload[eoff]))
		sn := binary.BigEndian.Uint32(payload[eoff+1 : eoff+5])

		reserved, rerr := ctx.Store.PageReservedBy(den, sn, session)
		if rerr != nil {
			continue
		}
		if !reserved && session != protocol.AdminOverrideSession {
			continue
		}
		rec, gerr := ctx.Store.GetRecord(den, sn)
		if gerr != nil {
			continue
		}
		prevANs = append(prevANs, rec.AN[:]...)

		newAN := deriveCreateAN(ctx.NodeID, sn, adminKey, modern)
		if err := ctx.Store.SetRecord(den, sn, protocol.Record{AN: newAN, MFS: month}); err != nil {
			continue
		}
		ok[i] = true
	}
	return Result{Status: summarize(ok), Body: append(packBits(ok), prevANs...)}
}

// deriveCreateAN picks MD5-family hashing for the legacy protocol
// revision and SHA-256-family hashing for modern, per spec.md §4.H.
func deriveCreateAN(nodeID byte, sn uint32, adminKey []byte, modern bool) [protocol.ANSize]byte {
	snB := make([]byte, 4)
	binary.BigEndian.PutUint32(snB, sn)
	if !modern {
		return protocol.LegacyHash([]byte{nodeID}, snB, adminKey)
	}
	h := sha256.New()
	h.Write([]byte{nodeID})
	h.Write(snB)
	h.Write(adminKey)
	sum := h.Sum(nil)
	var out [protocol.ANSize]byte
	copy(out[:], sum[:protocol.ANSize])
	return out
}

// FreeCoins sets MFS = 0 on every requested coin without per-coin
// authentication, after verifying the admin key once.
func FreeCoins(ctx *Ctx, payload []byte) Result {
	return adminBulkClear(ctx, payload, false)
}

// DeleteCoins requires an AN match per coin before clearing it.
func DeleteCoins(ctx *Ctx, payload []byte) Result {
	return adminBulkClear(ctx, payload, true)
}

func adminBulkClear(ctx *Ctx, payload []byte, requireMatch bool) Result {
	if len(payload) < protocol.AdminKeySize+2 {
		return Result{Status: protocol.StatusPacketLength}
	}
	adminKey := payload[:protocol.AdminKeySize]
	if !checkAdmin(ctx, adminKey) {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	entrySize := coinEntrySize
	if !requireMatch {
		entrySize = 1 + 4 // den, sn only
	}
	n := int(binary.BigEndian.Uint16(payload[protocol.AdminKeySize : protocol.AdminKeySize+2]))
	base := protocol.AdminKeySize + 2
	if len(payload) < base+n*entrySize {
		return Result{Status: protocol.StatusPacketLength}
	}

	ok := make([]bool, n)
	for i := 0; i < n; i++ {
		e := payload[base+i*entrySize : base+(i+1)*entrySize]
		var den protocol.Denomination
		var sn uint32
		var an [protocol.ANSize]byte
		if requireMatch {
			den, sn, an = decodeCoinEntry(e)
		} else {
			den = protocol.Denomination(int8(e[0]))
			sn = binary.BigEndian.Uint32(e[1:5])
		}
		if requireMatch {
			rec, err := ctx.Store.GetRecord(den, sn)
			if err != nil || rec.AN != an {
				continue
			}
		}
		if err := ctx.Store.SetRecord(den, sn, protocol.Record{MFS: 0}); err != nil {
			continue
		}
		ok[i] = true
	}
	return Result{Status: summarize(ok), Body: packBits(ok)}
}

// GetAllSNs is admin-authenticated and bypasses the cache entirely,
// reading every page file for den directly and building a bit-per-sn
// ownership bitmap.
func GetAllSNs(ctx *Ctx, payload []byte) Result {
	if len(payload) < protocol.AdminKeySize+1 {
		return Result{Status: protocol.StatusPacketLength}
	}
	adminKey := payload[:protocol.AdminKeySize]
	if !checkAdmin(ctx, adminKey) {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	den := protocol.Denomination(int8(payload[protocol.AdminKeySize]))
	if !den.Valid() {
		return Result{Status: protocol.StatusInvalidSNOrDenomination}
	}

	layout := ctx.Store.Layout
	totalSNs := layout.RecordsPerPage * layout.TotalPages
	bitmap := make([]byte, (totalSNs+7)/8)

	for pageNo := uint32(0); pageNo < layout.TotalPages; pageNo++ {
		path := layout.PagePath(den, pageNo)
		data, err := os.ReadFile(path)
		if err != nil {
			return Result{Status: protocol.StatusFSIOError}
		}
		for slot := uint32(0); slot < layout.RecordsPerPage; slot++ {
			off := slot * protocol.RecordSize
			rec := protocol.UnmarshalRecord(data[off : off+protocol.RecordSize])
			if rec.Owned() {
				sn := pageNo*layout.RecordsPerPage + slot
				bitmap[sn/8] |= 1 << uint(7-sn%8)
			}
		}
	}
	return Result{Status: protocol.StatusSuccess, Body: bitmap}
}

// Stats reports the page cache's live counters.
func Stats(ctx *Ctx, payload []byte) Result {
	snap := ctx.Store.Stats()
	body := fmt.Sprintf("hits=%d misses=%d evictions=%d flushes=%d flush_failures=%d cached_pages=%d",
		snap.Hits, snap.Misses, snap.Evictions, snap.Flushes, snap.FlushFailures, snap.CachedPages)
	return Result{Status: protocol.StatusSuccess, Body: []byte(body)}
}

// Audit iterates the bitmap to sum owned-coin counts per denomination.
func Audit(ctx *Ctx, payload []byte) Result {
	body := make([]byte, protocol.DenCount*5)
	for di := 0; di < protocol.DenCount; di++ {
		den := protocol.IndexToDenomination(di)
		count := ctx.Store.Bitmaps.OwnedCount(den)
		off := di * 5
		body[off] = byte(int8(den))
		binary.BigEndian.PutUint32(body[off+1:off+5], uint32(count))
	}
	return Result{Status: protocol.StatusSuccess, Body: body}
}
