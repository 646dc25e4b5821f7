// Package dispatch implements the static two-level (group, command)
// dispatch table described in spec.md §4.G.
package dispatch

import (
	"time"

	"github.com/raida-net/coinnode/internal/handler"
	"github.com/raida-net/coinnode/internal/protocol"
)

// Table is a static (group, command) → handler map, indexed by group
// first and command second. A nil entry means "no handler registered".
type Table [protocol.MaxGroup + 1][]handler.Func

// New builds the full command table wired to every handler family.
func New() Table {
	var t Table

	t[protocol.GroupAuth] = make([]handler.Func, 6)
	t[protocol.GroupAuth][protocol.CmdEcho] = handler.Echo
	t[protocol.GroupAuth][protocol.CmdVersion] = handler.Version
	t[protocol.GroupAuth][protocol.CmdDetect] = handler.Detect
	t[protocol.GroupAuth][protocol.CmdPown] = handler.Pown
	t[protocol.GroupAuth][protocol.CmdGetTicket] = handler.GetTicket
	t[protocol.GroupAuth][protocol.CmdFind] = handler.Find

	t[protocol.GroupHealing] = make([]handler.Func, 2)
	t[protocol.GroupHealing][protocol.CmdValidateTicket] = handler.ValidateTicket
	t[protocol.GroupHealing][protocol.CmdFix] = handler.Fix

	t[protocol.GroupExecutive] = make([]handler.Func, 7)
	t[protocol.GroupExecutive][protocol.CmdGetAvailableSNs] = handler.GetAvailableSNs
	t[protocol.GroupExecutive][protocol.CmdCreateCoins] = handler.CreateCoins
	t[protocol.GroupExecutive][protocol.CmdFreeCoins] = handler.FreeCoins
	t[protocol.GroupExecutive][protocol.CmdDeleteCoins] = handler.DeleteCoins
	t[protocol.GroupExecutive][protocol.CmdGetAllSNs] = handler.GetAllSNs
	t[protocol.GroupExecutive][protocol.CmdStats] = handler.Stats
	t[protocol.GroupExecutive][protocol.CmdAudit] = handler.Audit

	t[protocol.GroupChange] = make([]handler.Func, 3)
	t[protocol.GroupChange][protocol.CmdGetAvailableChangeSNs] = handler.GetAvailableChangeSNs
	t[protocol.GroupChange][protocol.CmdBreak] = handler.Break
	t[protocol.GroupChange][protocol.CmdJoin] = handler.Join

	t[protocol.GroupLocker] = make([]handler.Func, 9)
	t[protocol.GroupLocker][protocol.CmdStoreSum] = handler.StoreSum
	t[protocol.GroupLocker][protocol.CmdStoreMultipleSum] = handler.StoreMultipleSum
	t[protocol.GroupLocker][protocol.CmdRemove] = handler.Remove
	t[protocol.GroupLocker][protocol.CmdPeek] = handler.Peek
	t[protocol.GroupLocker][protocol.CmdPutForSale] = handler.PutForSale
	t[protocol.GroupLocker][protocol.CmdListLockersForSale] = handler.ListLockersForSale
	t[protocol.GroupLocker][protocol.CmdBuy] = handler.Buy
	t[protocol.GroupLocker][protocol.CmdRemoveTradeLocker] = handler.RemoveTradeLocker
	t[protocol.GroupLocker][protocol.CmdPeekTradeLocker] = handler.PeekTradeLocker

	t[protocol.GroupShard] = make([]handler.Func, 2)
	t[protocol.GroupShard][protocol.CmdPickupCoins] = handler.PickupCoins
	t[protocol.GroupShard][protocol.CmdSwitchShardSumWithSNs] = handler.SwitchShardSumWithSNs

	t[protocol.GroupFilesystem] = make([]handler.Func, 3)
	t[protocol.GroupFilesystem][protocol.CmdGetObject] = handler.GetObject
	t[protocol.GroupFilesystem][protocol.CmdPutObject] = handler.PutObject
	t[protocol.GroupFilesystem][protocol.CmdRmObject] = handler.RmObject

	return t
}

// Lookup returns the handler registered for (group, command), or nil if
// none exists.
func (t Table) Lookup(group, command byte) handler.Func {
	if int(group) >= len(t) {
		return nil
	}
	row := t[group]
	if int(command) >= len(row) {
		return nil
	}
	return row[command]
}

// Outcome is what Dispatch returns: the handler's result plus the
// elapsed execution time, matching spec.md §4.G's "record elapsed time"
// requirement.
type Outcome struct {
	Result  handler.Result
	Elapsed time.Duration
}

// Dispatch verifies group/command bounds, calls the matching handler,
// and records elapsed time. An out-of-range group or missing handler
// yields StatusInvalidCommand with zero elapsed time charged to the
// handler.
func Dispatch(t Table, ctx *handler.Ctx, group, command byte, payload []byte) Outcome {
	if group > protocol.MaxGroup {
		return Outcome{Result: handler.Result{Status: protocol.StatusInvalidCommand}}
	}
	fn := t.Lookup(group, command)
	if fn == nil {
		return Outcome{Result: handler.Result{Status: protocol.StatusInvalidCommand}}
	}
	start := time.Now()
	res := fn(ctx, payload)
	return Outcome{Result: res, Elapsed: time.Since(start)}
}
