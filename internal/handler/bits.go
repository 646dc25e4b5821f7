package handler

import "github.com/raida-net/coinnode/internal/protocol"

// packBits packs n booleans into ceil(n/8) bytes, MSB-first within each
// byte, matching the "per-coin bitmap" result shape spec.md §4.H
// describes for detect/pown/get_ticket.
func packBits(results []bool) []byte {
	out := make([]byte, (len(results)+7)/8)
	for i, ok := range results {
		if ok {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// summarize picks the per-batch status byte spec.md §7 defines: ALL_PASS
// if every result is true, ALL_FAIL if every result is false, MIXED
// otherwise. An empty batch is reported as ALL_FAIL.
func summarize(results []bool) protocol.Status {
	if len(results) == 0 {
		return protocol.StatusAllFail
	}
	allTrue, allFalse := true, true
	for _, ok := range results {
		if ok {
			allFalse = false
		} else {
			allTrue = false
		}
	}
	switch {
	case allTrue:
		return protocol.StatusAllPass
	case allFalse:
		return protocol.StatusAllFail
	default:
		return protocol.StatusMixed
	}
}
