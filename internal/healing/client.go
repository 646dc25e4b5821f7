// Package healing implements the distributed fix() quorum protocol from
// spec.md §4.J: a 25-way parallel fan-out of VALIDATE_TICKET RPCs with
// per-peer timeout, followed by vote tallying.
package healing

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"time"

	"github.com/raida-net/coinnode/internal/protocol"
	"github.com/raida-net/coinnode/internal/wire"
)

// PeerAddr is the dial address for one of the 25 network peers. A zero
// value (empty string) marks an unconfigured peer, which always
// contributes zero votes.
type PeerAddr string

// Dialer opens connections to peers; split out as an interface so tests
// can substitute an in-memory transport.
type Dialer interface {
	DialContext(ctx context.Context, addr string) (net.Conn, error)
}

// NetDialer dials real TCP connections.
type NetDialer struct {
	Timeout time.Duration
}

func (d NetDialer) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "tcp", addr)
}

// CoinVote is one coin a peer claims to hold a ticket for.
type CoinVote struct {
	Den protocol.Denomination
	SN  uint32
}

// PeerResult is one peer's VALIDATE_TICKET response.
type PeerResult struct {
	PeerIndex int
	Coins     []CoinVote
	Err       error
}

// Request bundles what a VALIDATE_TICKET fan-out needs: the ticket being
// polled, the node's own identity, and the coin that keys the exchange.
// KeyDen/KeySN/KeyAN name one of the ticket's own coins — the initiating
// node already holds its record, so it can build a legacy EncLegacyCoin
// request without any shared secret beyond what the wire protocol
// already defines. A peer that has not diverged on that coin decrypts
// the request with the same AN.
type Request struct {
	TicketID   [16]byte
	KeyDen     protocol.Denomination
	KeySN      uint32
	KeyAN      [protocol.ANSize]byte
	SelfNodeID byte
	CoinID     byte
}

// Poll fans out a VALIDATE_TICKET request to every configured peer in
// parallel, using a per-task timeout, and returns one result per peer
// (failures and timeouts contribute an Err, not a panic). Peer index i
// doubles as peer i's own NodeID, matching how cmd/raidanode loads the
// peer list from config.
func Poll(ctx context.Context, d Dialer, peers [protocol.TotalPeers]PeerAddr, req Request, perPeerTimeout time.Duration) []PeerResult {
	results := make([]PeerResult, protocol.TotalPeers)
	done := make(chan PeerResult, protocol.TotalPeers)

	for i, addr := range peers {
		go func(idx int, addr PeerAddr) {
			if addr == "" {
				done <- PeerResult{PeerIndex: idx, Err: fmt.Errorf("healing: peer %d unconfigured", idx)}
				return
			}
			pctx, cancel := context.WithTimeout(ctx, perPeerTimeout)
			defer cancel()
			coins, err := validateTicket(pctx, d, string(addr), byte(idx), req)
			done <- PeerResult{PeerIndex: idx, Coins: coins, Err: err}
		}(i, addr)
	}

	for range peers {
		r := <-done
		results[r.PeerIndex] = r
	}
	return results
}

// validateTicket opens a connection to a peer node and issues a real
// wire-framed VALIDATE_TICKET request — the same legacy header-and-body
// framing any other client of this software uses (internal/server's
// ServeOne is the only entry point a peer exposes) — so that two nodes
// running this binary can actually heal each other.
func validateTicket(ctx context.Context, d Dialer, addr string, peerNodeID byte, req Request) ([]CoinVote, error) {
	conn, err := d.DialContext(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("healing: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	key := req.KeyAN[:]
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("healing: generating nonce: %w", err)
	}

	payload := make([]byte, 1+16)
	payload[0] = req.SelfNodeID
	copy(payload[1:], req.TicketID[:])

	body := make([]byte, wire.ChallengeSize+len(payload)+2)
	if _, err := rand.Read(body[:12]); err != nil {
		return nil, fmt.Errorf("healing: generating challenge: %w", err)
	}
	binary.BigEndian.PutUint32(body[12:16], crc32.ChecksumIEEE(body[:12]))
	copy(body[wire.ChallengeSize:], payload)
	body[len(body)-2] = wire.BodyTrailerByte0
	body[len(body)-1] = wire.BodyTrailerByte1

	header := make([]byte, wire.LegacyHeaderSize)
	header[0] = 1 // routing ok
	header[2] = peerNodeID
	header[3] = req.CoinID
	header[4] = protocol.GroupHealing
	header[5] = protocol.CmdValidateTicket
	copy(header[8:20], nonce)
	header[16] = byte(wire.EncLegacyCoin)
	header[17] = byte(int8(req.KeyDen))
	binary.BigEndian.PutUint32(header[18:22], req.KeySN)
	binary.BigEndian.PutUint16(header[22:24], uint16(len(body)))

	// The peer reads the nonce as header bytes 8..19, which the encryption
	// type and locator bytes above overlap; encrypt with exactly those bytes.
	copy(nonce, header[8:20])
	if err := wire.CryptBody(body, key, nonce); err != nil {
		return nil, fmt.Errorf("healing: encrypting request: %w", err)
	}

	if _, err := conn.Write(header); err != nil {
		return nil, fmt.Errorf("healing: write header to %s: %w", addr, err)
	}
	if _, err := conn.Write(body); err != nil {
		return nil, fmt.Errorf("healing: write body to %s: %w", addr, err)
	}

	respHeader := make([]byte, wire.LegacyHeaderSize)
	if _, err := readFull(conn, respHeader); err != nil {
		return nil, fmt.Errorf("healing: read response header from %s: %w", addr, err)
	}
	status := protocol.Status(respHeader[1])
	if status != protocol.StatusSuccess {
		return nil, fmt.Errorf("healing: peer %s rejected ticket: status 0x%02x", addr, status)
	}
	bodySize := binary.BigEndian.Uint16(respHeader[4:6])

	respBody := make([]byte, bodySize)
	if _, err := readFull(conn, respBody); err != nil {
		return nil, fmt.Errorf("healing: read response body from %s: %w", addr, err)
	}
	if err := wire.CryptBody(respBody, key, nonce); err != nil {
		return nil, fmt.Errorf("healing: decrypting response from %s: %w", addr, err)
	}
	if len(respBody) < 2 || respBody[len(respBody)-2] != wire.BodyTrailerByte0 || respBody[len(respBody)-1] != wire.BodyTrailerByte1 {
		return nil, fmt.Errorf("healing: missing trailer in response from %s", addr)
	}
	payloadOut := respBody[:len(respBody)-2]

	if len(payloadOut) < 2 {
		return nil, fmt.Errorf("healing: short coin list from %s", addr)
	}
	count := binary.BigEndian.Uint16(payloadOut[:2])
	if count > protocol.MaxCoinsPerTicket {
		return nil, fmt.Errorf("healing: peer %s reported implausible coin count %d", addr, count)
	}
	if len(payloadOut) < 2+5*int(count) {
		return nil, fmt.Errorf("healing: truncated coin list from %s", addr)
	}

	coins := make([]CoinVote, 0, count)
	for i := uint16(0); i < count; i++ {
		off := 2 + int(i)*5
		coins = append(coins, CoinVote{
			Den: protocol.Denomination(int8(payloadOut[off])),
			SN:  binary.BigEndian.Uint32(payloadOut[off+1 : off+5]),
		})
	}
	return coins, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n, err := io.ReadFull(conn, buf)
	return n, err
}

// Tally counts, per (den, sn), how many distinct peers voted for it
// across results, ignoring failed/timed-out peers entirely.
func Tally(results []PeerResult) map[CoinVote]int {
	votes := make(map[CoinVote]int)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, c := range r.Coins {
			votes[c]++
		}
	}
	return votes
}

// Winners returns the subset of requested coins whose vote count meets
// protocol.QuorumThreshold.
func Winners(votes map[CoinVote]int, requested []CoinVote) []CoinVote {
	var out []CoinVote
	for _, c := range requested {
		if votes[c] >= protocol.QuorumThreshold {
			out = append(out, c)
		}
	}
	return out
}
