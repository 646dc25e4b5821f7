package handler

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/raida-net/coinnode/internal/protocol"
	"github.com/raida-net/coinnode/internal/store"
	"github.com/raida-net/coinnode/internal/ticket"
)

// NodeVersion is the informational version string echo/version report.
const NodeVersion = "coinnode/1"

// coinEntrySize is the wire size of one (den, sn, AN) triple used by
// detect, get_ticket, and find.
const coinEntrySize = 1 + 4 + protocol.ANSize

func decodeCoinEntry(b []byte) (protocol.Denomination, uint32, [protocol.ANSize]byte) {
	den := protocol.Denomination(int8(b[0]))
	sn := binary.BigEndian.Uint32(b[1:5])
	var an [protocol.ANSize]byte
	copy(an[:], b[5:5+protocol.ANSize])
	return den, sn, an
}

// decodeCoinList parses a count-prefixed (2-byte count) list of
// fixed-size entries.
func decodeCoinList(payload []byte, entrySize int) ([][]byte, bool) {
	if len(payload) < 2 {
		return nil, false
	}
	n := int(binary.BigEndian.Uint16(payload[:2]))
	want := 2 + n*entrySize
	if len(payload) < want {
		return nil, false
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		off := 2 + i*entrySize
		out[i] = payload[off : off+entrySize]
	}
	return out, true
}

// Echo replies with the same payload it received.
func Echo(ctx *Ctx, payload []byte) Result {
	return Result{Status: protocol.StatusNoError, Body: append([]byte(nil), payload...)}
}

// Version reports the node's version string.
func Version(ctx *Ctx, payload []byte) Result {
	return Result{Status: protocol.StatusNoError, Body: []byte(NodeVersion)}
}

// Detect compares the provided AN against each coin's stored AN without
// modifying anything.
func Detect(ctx *Ctx, payload []byte) Result {
	entries, ok := decodeCoinList(payload, coinEntrySize)
	if !ok {
		return Result{Status: protocol.StatusPacketLength}
	}
	results := make([]bool, len(entries))
	for i, e := range entries {
		den, sn, an := decodeCoinEntry(e)
		rec, err := ctx.Store.GetRecord(den, sn)
		if err != nil {
			results[i] = false
			continue
		}
		results[i] = rec.AN == an
	}
	return Result{Status: summarize(results), Body: packBits(results)}
}

// Pown authenticates each coin as Detect does; on a per-coin match it
// installs the caller's proposed AN, stamps MFS to the current
// epoch-month, and flips the bitmap bit to owned.
func Pown(ctx *Ctx, payload []byte) Result {
	const entrySize = coinEntrySize + protocol.ANSize // AN + new AN
	entries, ok := decodeCoinList(payload, entrySize)
	if !ok {
		return Result{Status: protocol.StatusPacketLength}
	}
	month := epochMonth()
	results := make([]bool, len(entries))
	for i, e := range entries {
		den, sn, an := decodeCoinEntry(e[:coinEntrySize])
		var newAN [protocol.ANSize]byte
		copy(newAN[:], e[coinEntrySize:coinEntrySize+protocol.ANSize])

		matched := false
		err := ctx.Store.WithPage(den, sn, func(p *store.Page, slot uint32) error {
			rpp := ctx.Store.RecordsPerPage()
			if p.Record(slot, rpp).AN != an {
				return nil
			}
			p.SetRecord(slot, protocol.Record{AN: newAN, MFS: month})
			ctx.Store.Bitmaps.Set(den, sn, true)
			matched = true
			return nil
		})
		results[i] = err == nil && matched
	}
	return Result{Status: summarize(results), Body: packBits(results)}
}

// GetTicket authenticates each coin; for any authentic coin it allocates
// a healing ticket (non-blocking try across the pool) and records the
// authentic coins in it, returning the per-coin bitmap plus the ticket
// id when the ticket is non-empty.
func GetTicket(ctx *Ctx, payload []byte) Result {
	entries, ok := decodeCoinList(payload, coinEntrySize)
	if !ok {
		return Result{Status: protocol.StatusPacketLength}
	}
	results := make([]bool, len(entries))
	var authentic []ticket.CoinRef
	for i, e := range entries {
		den, sn, an := decodeCoinEntry(e)
		rec, err := ctx.Store.GetRecord(den, sn)
		ok := err == nil && rec.AN == an
		results[i] = ok
		if ok {
			authentic = append(authentic, ticket.CoinRef{Den: den, SN: sn})
		}
	}
	body := packBits(results)
	if len(authentic) == 0 {
		return Result{Status: protocol.StatusAllFail, Body: body}
	}
	tk, err := ctx.Tickets.Allocate(authentic)
	if err != nil {
		return Result{Status: protocol.StatusTicketExhausted, Body: body}
	}
	id := tk.ID()
	ctx.Tickets.Release(tk)

	out := append(body, id[:]...)
	status := protocol.StatusAllPass
	if len(authentic) != len(entries) {
		status = protocol.StatusMixed
	}
	return Result{Status: status, Body: out}
}

// Find classifies each coin into one of three buckets: matches the
// current stored AN, matches the caller's proposed AN, or matches
// neither.
func Find(ctx *Ctx, payload []byte) Result {
	const entrySize = 1 + 4 + protocol.ANSize + protocol.ANSize // den, sn, AN, proposedAN
	entries, ok := decodeCoinList(payload, entrySize)
	if !ok {
		return Result{Status: protocol.StatusPacketLength}
	}
	out := make([]byte, len(entries))
	anCount, panCount := 0, 0
	for i, e := range entries {
		den := protocol.Denomination(int8(e[0]))
		sn := binary.BigEndian.Uint32(e[1:5])
		var an, pan [protocol.ANSize]byte
		copy(an[:], e[5:5+protocol.ANSize])
		copy(pan[:], e[5+protocol.ANSize:5+2*protocol.ANSize])

		rec, err := ctx.Store.GetRecord(den, sn)
		switch {
		case err == nil && rec.AN == an:
			out[i] = 0x1
			anCount++
		case err == nil && rec.AN == pan:
			out[i] = 0x2
			panCount++
		default:
			out[i] = 0x0
		}
	}
	status := protocol.StatusFindMixed
	switch {
	case anCount == len(entries):
		status = protocol.StatusFindAllAN
	case panCount == len(entries):
		status = protocol.StatusFindAllPAN
	case anCount == 0 && panCount == 0:
		status = protocol.StatusFindNeither
	}
	return Result{Status: status, Body: out}
}

// randomAN produces a CSPRNG-derived 16-byte value used to scramble a
// destroyed coin's AN (spec.md §4.H break()).
func randomAN() ([protocol.ANSize]byte, error) {
	var raw [protocol.ANSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return raw, err
	}
	return protocol.LegacyHash(raw[:]), nil
}
