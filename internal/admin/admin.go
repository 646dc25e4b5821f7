// Package admin exposes a small HTTP surface for operational visibility
// — liveness and point-in-time stats — entirely separate from the
// binary wire protocol in internal/wire and internal/dispatch. Routed
// with github.com/labstack/echo/v4, the same role the teacher's
// cmd/server HTTP listener plays alongside its gRPC listener.
package admin

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/raida-net/coinnode/internal/handler"
	"github.com/raida-net/coinnode/internal/protocol"
	"github.com/raida-net/coinnode/internal/store"
)

// Server wraps the echo instance and the live handler context it reports
// on. It never touches the coin-authentication path.
type Server struct {
	echo      *echo.Echo
	ctx       *handler.Ctx
	startedAt time.Time
}

// New builds the admin HTTP surface. ctx must outlive the Server.
func New(ctx *handler.Ctx) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, ctx: ctx, startedAt: time.Now()}
	e.GET("/healthz", s.handleHealthz)
	e.GET("/stats", s.handleStats)
	return s
}

// Start blocks serving addr until the listener fails or Shutdown is
// called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes the HTTP listener and any open connections
// immediately; in-flight requests are not waited for.
func (s *Server) Shutdown() error {
	return s.echo.Close()
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

type statsResponse struct {
	OK            bool                `json:"ok"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Cache         store.Snapshot      `json:"cache"`
	Denominations []denominationStats `json:"denominations"`
	TicketPool    ticketPoolStats     `json:"ticket_pool"`
}

type denominationStats struct {
	Denomination int8 `json:"denomination"`
	Owned        int  `json:"owned"`
}

type ticketPoolStats struct {
	Live  int `json:"live"`
	Total int `json:"total"`
}

func (s *Server) handleStats(c echo.Context) error {
	resp := statsResponse{
		OK:            true,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Cache:         s.ctx.Store.Stats(),
	}
	for d := protocol.DenMin; d <= protocol.DenMax; d++ {
		resp.Denominations = append(resp.Denominations, denominationStats{
			Denomination: int8(d),
			Owned:        s.ctx.Store.Bitmaps.OwnedCount(d),
		})
	}
	if s.ctx.Tickets != nil {
		live, total := s.ctx.Tickets.Utilization()
		resp.TicketPool = ticketPoolStats{Live: live, Total: total}
	}
	return c.JSON(http.StatusOK, resp)
}
