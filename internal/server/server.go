// Package server implements the TCP accept loop and the bounded worker
// pool that turn raw connections into wire-protocol request/response
// exchanges, per spec.md §2's data flow and §5's scheduling model.
package server

import (
	"log"
	"net"
	"runtime"
	"time"

	"github.com/raida-net/coinnode/internal/dispatch"
	"github.com/raida-net/coinnode/internal/handler"
)

// Config bundles the parameters a Server needs beyond the shared
// handler context.
type Config struct {
	ListenAddr string
	NodeID     byte
	CoinID     byte
	MaxWorkers int // 0 selects runtime.NumCPU()
}

// Server owns the listener and the bounded pool of connection workers.
// Per spec.md §5, "per-connection request handling runs to completion
// on a single worker"; the pool bounds concurrent connections rather
// than concurrent requests, since each connection is handled serially.
type Server struct {
	cfg       Config
	table     dispatch.Table
	ctx       *handler.Ctx
	logger    *log.Logger
	semaphore chan struct{}
	done      chan struct{}
}

// New builds a Server ready to Serve.
func New(cfg Config, ctx *handler.Ctx, logger *log.Logger) *Server {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	return &Server{
		cfg:       cfg,
		table:     dispatch.New(),
		ctx:       ctx,
		logger:    logger,
		semaphore: make(chan struct{}, cfg.MaxWorkers),
		done:      make(chan struct{}),
	}
}

// Serve accepts connections until Shutdown is called or the listener
// fails. Each accepted connection is handled by a fresh goroutine gated
// by the worker semaphore, so Serve itself never blocks on saturation.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

// Shutdown asks Serve's accept loop to treat the next Accept error as a
// clean stop. In-flight connections are left to complete on their own,
// matching spec.md §5's shutdown semantics ("in-flight requests
// complete").
func (s *Server) Shutdown() {
	close(s.done)
}

func (s *Server) handleConn(conn net.Conn) {
	s.semaphore <- struct{}{}
	defer func() { <-s.semaphore }()
	defer conn.Close()

	for {
		select {
		case <-s.done:
			return
		default:
		}
		if err := s.handleOneRequest(conn); err != nil {
			return
		}
	}
}

// keySource lives in keysource.go and response building in pipeline.go; handleConn
// stays a thin dispatcher loop so the per-request pipeline can be unit
// tested without a real net.Conn.
func (s *Server) handleOneRequest(conn net.Conn) error {
	return ServeOne(conn, s.table, s.ctx, s.cfg.NodeID, s.cfg.CoinID, s.logger)
}

// DialerTimeout is the default dial timeout used when none is
// configured for the healing client's peer transport.
const DialerTimeout = 5 * time.Second

// RequestReadTimeout bounds how long ServeOne waits for a single
// request's header and body before giving up on the connection, so a
// peer speaking an incompatible or stalled framing cannot pin a worker
// slot forever.
const RequestReadTimeout = 30 * time.Second
