package handler

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/raida-net/coinnode/internal/healing"
	"github.com/raida-net/coinnode/internal/protocol"
)

// ValidateTicket marks peerID's claim on the named ticket and returns
// its coin list, failing on a double-claim.
func ValidateTicket(ctx *Ctx, payload []byte) Result {
	if len(payload) < 1+16 {
		return Result{Status: protocol.StatusPacketLength}
	}
	peerID := int(payload[0])
	id, err := uuid.FromBytes(payload[1:17])
	if err != nil {
		return Result{Status: protocol.StatusBadCoins}
	}

	tk := ctx.Tickets.Get(id)
	if tk == nil {
		return Result{Status: protocol.StatusTicketNotFound}
	}
	defer ctx.Tickets.Release(tk)

	if peerID < 0 || peerID >= protocol.TotalPeers {
		return Result{Status: protocol.StatusBadCoins}
	}
	if tk.ClaimedBy(peerID) {
		return Result{Status: protocol.StatusTicketClaimedAlready}
	}
	tk.SetClaimed(peerID)

	coins := tk.Coins()
	body := make([]byte, 2+5*len(coins))
	binary.BigEndian.PutUint16(body[:2], uint16(len(coins)))
	for i, c := range coins {
		off := 2 + i*5
		body[off] = byte(int8(c.Den))
		binary.BigEndian.PutUint32(body[off+1:off+5], c.SN)
	}
	return Result{Status: protocol.StatusSuccess, Body: body}
}

// fixEntrySize is the wire size of one requested coin in a Fix payload.
const fixEntrySize = 1 + 4

// Fix fans VALIDATE_TICKET out to all configured peers, tallies votes
// per (den, sn), and for every requested coin reaching quorum, derives a
// new AN from the repair hash and installs it.
func Fix(ctx *Ctx, payload []byte) Result {
	if len(payload) < 1+16+2 {
		return Result{Status: protocol.StatusPacketLength}
	}
	proposedGroup := payload[0]
	var ticketID [16]byte
	copy(ticketID[:], payload[1:17])

	n := int(binary.BigEndian.Uint16(payload[17:19]))
	want := 19 + n*fixEntrySize
	if len(payload) < want {
		return Result{Status: protocol.StatusPacketLength}
	}
	requested := make([]healing.CoinVote, n)
	for i := 0; i < n; i++ {
		off := 19 + i*fixEntrySize
		requested[i] = healing.CoinVote{
			Den: protocol.Denomination(int8(payload[off])),
			SN:  binary.BigEndian.Uint32(payload[off+1 : off+5]),
		}
	}
	if len(requested) == 0 {
		return Result{Status: protocol.StatusPacketLength}
	}

	// The first requested coin keys the peer exchange: this node already
	// holds its record, so it can build the wire request without any
	// shared secret beyond the AN a non-diverged peer also holds.
	keyCoin := requested[0]
	keyRec, err := ctx.Store.GetRecord(keyCoin.Den, keyCoin.SN)
	if err != nil {
		return Result{Status: protocol.StatusCoinNotFound}
	}
	req := healing.Request{
		TicketID:   ticketID,
		KeyDen:     keyCoin.Den,
		KeySN:      keyCoin.SN,
		KeyAN:      keyRec.AN,
		SelfNodeID: ctx.NodeID,
		CoinID:     ctx.CoinID,
	}

	results := healing.Poll(context.Background(), ctx.Dialer, ctx.Peers, req, ctx.PeerTimeout)
	votes := healing.Tally(results)
	winners := healing.Winners(votes, requested)

	fixed := make([]bool, n)
	winnerSet := make(map[healing.CoinVote]bool, len(winners))
	for _, w := range winners {
		winnerSet[w] = true
	}
	month := epochMonth()
	for i, c := range requested {
		if !winnerSet[healing.CoinVote{Den: c.Den, SN: c.SN}] {
			continue
		}
		denB := [1]byte{byte(c.Den)}
		snB := make([]byte, 4)
		binary.BigEndian.PutUint32(snB, c.SN)
		newAN := protocol.LegacyHash([]byte{ctx.NodeID}, denB[:], snB, []byte{proposedGroup})
		if err := ctx.Store.SetRecord(c.Den, c.SN, protocol.Record{AN: newAN, MFS: month}); err == nil {
			fixed[i] = true
		}
	}
	return Result{Status: summarize(fixed), Body: packBits(fixed)}
}
