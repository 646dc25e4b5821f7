// Package handler implements the command handler families described in
// spec.md §4.H: authentication, healing, change, executive, locker,
// shard, and filesystem operations. Every handler receives a decrypted
// payload (trailer and legacy challenge already stripped by the wire
// package) and returns a status code plus an optional response body.
package handler

import (
	"log"
	"time"

	"github.com/raida-net/coinnode/internal/healing"
	"github.com/raida-net/coinnode/internal/locker"
	"github.com/raida-net/coinnode/internal/protocol"
	"github.com/raida-net/coinnode/internal/store"
	"github.com/raida-net/coinnode/internal/ticket"
)

// RateLimiter is the external collaborator named in spec.md §6; the
// interface lives here alongside the other named external collaborators.
// Neither the server nor any handler in this module calls it.
type RateLimiter interface {
	Allow(ip string) bool
}

// PaymentOracle is the marketplace buy command's external collaborator
// (spec.md §6): it settles a trade and reports one of Success, Waiting,
// or an error.
type PaymentOracle interface {
	Settle(req PaymentRequest) (PaymentOutcome, error)
}

// PaymentRequest carries the fields spec.md §6 names for a payment
// oracle request.
type PaymentRequest struct {
	CurrencyType byte
	Receipt      []byte
	ServerKey    [32]byte
	Price        uint32
	SellerAddr   string
	TxID         string
}

// PaymentOutcome is the oracle's settlement verdict.
type PaymentOutcome int

const (
	PaymentSuccess PaymentOutcome = iota
	PaymentWaiting
)

// NoopPaymentOracle always reports PaymentWaiting; it is the default
// wired when no real oracle is configured, matching the out-of-scope
// collaborator note in spec.md §1.
type NoopPaymentOracle struct{}

func (NoopPaymentOracle) Settle(PaymentRequest) (PaymentOutcome, error) {
	return PaymentWaiting, nil
}

// AllowAllRateLimiter is the default no-op rate limiter.
type AllowAllRateLimiter struct{}

func (AllowAllRateLimiter) Allow(string) bool { return true }

// Ctx bundles every piece of shared state a handler may need: the coin
// store, the ticket pool, the locker indices, peer topology for
// healing, and the external collaborators.
type Ctx struct {
	Store        *store.Store
	Tickets      *ticket.Pool
	Lockers      *locker.Index
	TradeLockers *locker.TradeIndex

	NodeID   byte
	CoinID   byte
	AdminKey [protocol.AdminKeySize]byte
	Peers    [protocol.TotalPeers]healing.PeerAddr
	Dialer   healing.Dialer

	PeerTimeout time.Duration

	Oracle PaymentOracle

	FSRoot string

	Logger *log.Logger
}

// Result is what every handler returns: the status to place in the
// response header and the bytes (if any) to place in the response body.
type Result struct {
	Status protocol.Status
	Body   []byte
}

// Func is the signature every dispatch table entry implements.
type Func func(ctx *Ctx, payload []byte) Result

// checkAdmin reports whether key matches ctx's configured admin key.
func checkAdmin(ctx *Ctx, key []byte) bool {
	if len(key) != protocol.AdminKeySize {
		return false
	}
	for i := range ctx.AdminKey {
		if ctx.AdminKey[i] != key[i] {
			return false
		}
	}
	return true
}

// epochMonth returns the current months-from-start value used for MFS
// stamping: months elapsed since the protocol epoch (2000-01-01 UTC).
func epochMonth() byte {
	epoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	months := (now.Year()-epoch.Year())*12 + int(now.Month()) - int(epoch.Month())
	if months < 1 {
		months = 1
	}
	if months > 255 {
		months = 255
	}
	return byte(months)
}
