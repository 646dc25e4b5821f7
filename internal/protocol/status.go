package protocol

// Status is the one-byte command_status carried in every response header.
// Numeric values are fixed by the wire protocol and must never change.
type Status uint8

const (
	StatusNoError Status = 0x00

	// Per-batch outcomes: body carries one bit per requested item.
	StatusAllPass Status = 0xF1
	StatusAllFail Status = 0xF2
	StatusMixed   Status = 0xF3

	StatusSuccess Status = 0xFA

	// find() three-way classification outcomes.
	StatusFindAllAN  Status = 0xA1
	StatusFindAllPAN Status = 0xA2
	StatusFindNeither Status = 0xA3
	StatusFindMixed  Status = 0xA4
)

// Protocol-framing failures.
const (
	StatusInvalidRouting    Status = 0x01
	StatusInvalidSplit      Status = 0x02
	StatusInvalidNode       Status = 0x03
	StatusInvalidCoinID     Status = 0x04
	StatusInvalidCommand    Status = 0x05
	StatusInvalidShard      Status = 0x06
	StatusInvalidEncryption Status = 0x07
	StatusPacketLength      Status = 0x08
	StatusUnexpectedEOF     Status = 0x09
	StatusInvalidCRC        Status = 0x0A
)

// Cryptography failures.
const (
	StatusCoinNotFound   Status = 0x10
	StatusHWUnavailable  Status = 0x11
)

// Resource failures.
const (
	StatusMemoryAlloc     Status = 0x20
	StatusTicketExhausted Status = 0x21
)

// Authorization failures.
const (
	StatusAdminAuthFail  Status = 0x30
	StatusPageNotReserved Status = 0x31
	StatusRateLimited    Status = 0x32
)

// Semantic failures.
const (
	StatusInvalidSNOrDenomination Status = 0x40
	StatusInvalidPAN              Status = 0x41
	StatusAmountMismatch          Status = 0x42
	StatusBadCoins                Status = 0x43
	StatusCoinsNotDivisible       Status = 0x44
	StatusWrongRAIDA              Status = 0x45
	StatusTicketClaimedAlready    Status = 0x46
	StatusTicketNotFound          Status = 0x47
)

// Filesystem failures. Sandbox escape is deliberately reported as
// StatusAdminAuthFail (spec.md §7: "sandbox-escape is reported as
// admin-auth") so a caller cannot distinguish "wrong key" from "path
// outside the sandbox" by status code alone.
const (
	StatusFSNotExist Status = 0x50
	StatusFSIOError  Status = 0x51
)

// Internal/unexpected failure, never produced by a well-formed handler.
const StatusUnexpected Status = 0xFF
