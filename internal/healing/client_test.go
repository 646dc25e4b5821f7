package healing

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/raida-net/coinnode/internal/protocol"
	"github.com/raida-net/coinnode/internal/wire"
)

// tcpDialer dials real loopback listeners started by the test.
type tcpDialer struct{}

func (tcpDialer) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// startFakePeer runs a single-shot listener that parses one real
// wire-framed VALIDATE_TICKET request and replies with the given coin
// votes, framed the same way ServeOne would.
func startFakePeer(t *testing.T, key [protocol.ANSize]byte, coins []CoinVote) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()

		header := make([]byte, wire.LegacyHeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		h, err := wire.ParseHeader(header)
		if err != nil {
			return
		}
		body := make([]byte, h.BodySize)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		if _, err := wire.DecryptBody(h, body, key[:]); err != nil {
			return
		}

		respBody := make([]byte, 2+5*len(coins))
		binary.BigEndian.PutUint16(respBody[:2], uint16(len(coins)))
		for i, c := range coins {
			off := 2 + i*5
			respBody[off] = byte(int8(c.Den))
			binary.BigEndian.PutUint32(respBody[off+1:off+5], c.SN)
		}
		respBody = append(respBody, wire.BodyTrailerByte0, wire.BodyTrailerByte1)
		if err := wire.CryptBody(respBody, key[:], h.Nonce); err != nil {
			return
		}

		resp := wire.Response{Status: protocol.StatusSuccess, BodySize: uint16(len(respBody))}
		conn.Write(resp.Marshal(true))
		conn.Write(respBody)
	}()
	return ln.Addr().String()
}

func TestPollTalliesVotesFromRespondingPeers(t *testing.T) {
	var peers [protocol.TotalPeers]PeerAddr
	wantCoin := CoinVote{Den: 2, SN: 77}
	key := [protocol.ANSize]byte{1, 2, 3}

	for i := 0; i < 3; i++ {
		addr := startFakePeer(t, key, []CoinVote{wantCoin})
		peers[i] = PeerAddr(addr)
	}
	// Remaining peers left unconfigured; they contribute zero votes.

	req := Request{TicketID: [16]byte{1, 2, 3}, KeyDen: 0, KeySN: 1, KeyAN: key, SelfNodeID: 9, CoinID: 7}
	ctx := context.Background()
	results := Poll(ctx, tcpDialer{}, peers, req, time.Second)

	votes := Tally(results)
	if votes[wantCoin] != 3 {
		t.Fatalf("votes[wantCoin] = %d, want 3", votes[wantCoin])
	}

	winners := Winners(votes, []CoinVote{wantCoin})
	if len(winners) != 0 {
		t.Fatalf("3 votes should be below quorum %d, got winners %v", protocol.QuorumThreshold, winners)
	}
}

func TestPollReachesQuorum(t *testing.T) {
	var peers [protocol.TotalPeers]PeerAddr
	wantCoin := CoinVote{Den: -1, SN: 500}
	key := [protocol.ANSize]byte{9}

	for i := 0; i < protocol.QuorumThreshold; i++ {
		addr := startFakePeer(t, key, []CoinVote{wantCoin})
		peers[i] = PeerAddr(addr)
	}

	req := Request{TicketID: [16]byte{9}, KeyDen: -1, KeySN: 500, KeyAN: key, SelfNodeID: 0, CoinID: 7}
	ctx := context.Background()
	results := Poll(ctx, tcpDialer{}, peers, req, time.Second)
	votes := Tally(results)
	winners := Winners(votes, []CoinVote{wantCoin})

	if len(winners) != 1 {
		t.Fatalf("expected coin to reach quorum, got winners %v (votes=%d)", winners, votes[wantCoin])
	}
}

func TestPollUnconfiguredPeersContributeNoVotes(t *testing.T) {
	var peers [protocol.TotalPeers]PeerAddr // all unconfigured

	req := Request{SelfNodeID: 1}
	ctx := context.Background()
	results := Poll(ctx, tcpDialer{}, peers, req, 200*time.Millisecond)

	for _, r := range results {
		if r.Err == nil {
			t.Fatalf("expected error for unconfigured peer %d", r.PeerIndex)
		}
	}
	votes := Tally(results)
	if len(votes) != 0 {
		t.Fatalf("expected no votes, got %v", votes)
	}
}
