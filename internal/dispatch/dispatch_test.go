package dispatch

import (
	"testing"

	"github.com/raida-net/coinnode/internal/handler"
	"github.com/raida-net/coinnode/internal/protocol"
)

func TestLookupFindsRegisteredHandler(t *testing.T) {
	table := New()
	if fn := table.Lookup(protocol.GroupAuth, protocol.CmdEcho); fn == nil {
		t.Fatal("expected echo handler registered")
	}
}

func TestLookupMissingCommandReturnsNil(t *testing.T) {
	table := New()
	if fn := table.Lookup(protocol.GroupAuth, 200); fn != nil {
		t.Fatal("expected nil for out-of-range command")
	}
}

func TestDispatchOutOfRangeGroupYieldsInvalidCommand(t *testing.T) {
	table := New()
	out := Dispatch(table, nil, protocol.MaxGroup+5, 0, nil)
	if out.Result.Status != protocol.StatusInvalidCommand {
		t.Fatalf("status = %v, want InvalidCommand", out.Result.Status)
	}
}

func TestDispatchMissingHandlerYieldsInvalidCommand(t *testing.T) {
	table := New()
	out := Dispatch(table, nil, protocol.GroupKeyExchange, 0, nil)
	if out.Result.Status != protocol.StatusInvalidCommand {
		t.Fatalf("status = %v, want InvalidCommand", out.Result.Status)
	}
}

func TestDispatchCallsEcho(t *testing.T) {
	table := New()
	ctx := &handler.Ctx{}
	payload := []byte("ping")
	out := Dispatch(table, ctx, protocol.GroupAuth, protocol.CmdEcho, payload)
	if out.Result.Status != protocol.StatusNoError {
		t.Fatalf("status = %v, want NoError", out.Result.Status)
	}
	if string(out.Result.Body) != "ping" {
		t.Fatalf("body = %q, want %q", out.Result.Body, "ping")
	}
}
