package admin

import (
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/raida-net/coinnode/internal/handler"
	"github.com/raida-net/coinnode/internal/locker"
	"github.com/raida-net/coinnode/internal/store"
	"github.com/raida-net/coinnode/internal/ticket"
)

func newTestCtx(t *testing.T) *handler.Ctx {
	t.Helper()
	cfg := store.Config{
		Root:           t.TempDir(),
		RecordsPerPage: 4,
		TotalPages:     1,
		Seed:           []byte("admin-test-seed"),
		MaxCachedPages: 8,
		ReserveTTL:     time.Minute,
	}
	s, err := store.Open(cfg, log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return &handler.Ctx{
		Store:        s,
		Tickets:      ticket.NewPool(3, time.Minute),
		Lockers:      locker.NewIndex(),
		TradeLockers: locker.NewTradeIndex(),
	}
}

func TestHealthzReportsOK(t *testing.T) {
	srv := New(newTestCtx(t))
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("body[ok] = %v, want true", body["ok"])
	}
}

func TestStatsReportsDenominationsAndTicketPool(t *testing.T) {
	ctx := newTestCtx(t)
	ctx.Store.Bitmaps.Set(0, 1, true)

	srv := New(ctx)
	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.TicketPool.Total != 3 {
		t.Fatalf("ticket pool total = %d, want 3", resp.TicketPool.Total)
	}

	found := false
	for _, d := range resp.Denominations {
		if d.Denomination == 0 && d.Owned == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("denomination 0 owned count not reported: %+v", resp.Denominations)
	}
}
