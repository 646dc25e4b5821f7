package server

import (
	"context"
	"log"
	"net"
	"os"
	"testing"
	"time"

	"github.com/raida-net/coinnode/internal/dispatch"
	"github.com/raida-net/coinnode/internal/healing"
	"github.com/raida-net/coinnode/internal/protocol"
	"github.com/raida-net/coinnode/internal/ticket"
)

// TestHealingClientInteropsWithServeOne proves a healing.Poll request
// built by this package's own client can be answered by this package's
// own ServeOne server: the two must agree on header framing, encryption,
// and payload shape, since a real peer in the network runs this same
// binary.
func TestHealingClientInteropsWithServeOne(t *testing.T) {
	const peerNodeID, requesterNodeID, coinID = byte(4), byte(9), byte(7)
	den, sn := protocol.Denomination(1), uint32(0)
	keyAN := [protocol.ANSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	peerCtx := newTestHandlerCtx(t)
	peerCtx.NodeID = peerNodeID
	if err := peerCtx.Store.SetRecord(den, sn, protocol.Record{AN: keyAN, MFS: 5}); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	tk, err := peerCtx.Tickets.Allocate([]ticket.CoinRef{{Den: den, SN: sn}})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	ticketID := [16]byte(tk.ID())
	peerCtx.Tickets.Release(tk)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = ServeOne(conn, dispatch.New(), peerCtx, peerNodeID, coinID, log.New(os.Stderr, "", 0))
	}()

	var peers [protocol.TotalPeers]healing.PeerAddr
	peers[peerNodeID] = healing.PeerAddr(ln.Addr().String())

	req := healing.Request{
		TicketID:   ticketID,
		KeyDen:     den,
		KeySN:      sn,
		KeyAN:      keyAN,
		SelfNodeID: requesterNodeID,
		CoinID:     coinID,
	}
	results := healing.Poll(context.Background(), healing.NetDialer{Timeout: time.Second}, peers, req, time.Second)

	r := results[peerNodeID]
	if r.Err != nil {
		t.Fatalf("Poll: peer %d returned error: %v", peerNodeID, r.Err)
	}
	if len(r.Coins) != 1 || r.Coins[0] != (healing.CoinVote{Den: den, SN: sn}) {
		t.Fatalf("Poll: peer %d coins = %v, want [{%d %d}]", peerNodeID, r.Coins, den, sn)
	}
}
