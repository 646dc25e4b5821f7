// Package protocol defines the wire-level constants, group/command ids,
// status codes, and the coin record layout shared by every other package
// in this module.
package protocol

// Denomination is a signed small integer selecting a value class.
// Valid range is DenMin..DenMax (fifteen values); DenOffset converts a
// denomination to a zero-based array index.
type Denomination int8

const (
	DenMin    Denomination = -8
	DenMax    Denomination = 6
	DenOffset              = 8
	DenCount               = int(DenMax-DenMin) + 1
)

// Index returns the zero-based array index for a denomination.
func (d Denomination) Index() int { return int(d) + DenOffset }

// IndexToDenomination is the inverse of Denomination.Index.
func IndexToDenomination(i int) Denomination { return Denomination(i - DenOffset) }

// Valid reports whether d is one of the fifteen defined denominations.
func (d Denomination) Valid() bool { return d >= DenMin && d <= DenMax }

// Record layout.
const (
	ANSize     = 16 // authentication number, bytes
	MFSSize    = 1  // months-from-start, bytes
	RecordSize = ANSize + MFSSize
)

// Protocol-level limits.
const (
	MaxGroup    = 14
	TotalPeers  = 25
	MaxNodeID   = TotalPeers - 1
	AdminKeySize = 16
)

// QuorumThreshold is the minimum number of matching peer votes required
// for fix() to accept a healing repair: ceil(TotalPeers/2)+1.
const QuorumThreshold = (TotalPeers+1)/2 + 1

// Command groups (wire ids), per spec.md §6.
const (
	GroupStatus      = 0
	GroupAuth        = 1
	GroupHealing     = 2
	GroupExecutive   = 3
	GroupKeyExchange = 4
	GroupLocker      = 8
	GroupChange      = 9
	GroupShard       = 10
	GroupCrossover   = 11
	GroupRPC         = 12
	GroupFilesystem  = 13
	GroupIntegrity   = 14
)

// Auth group commands.
const (
	CmdEcho = iota
	CmdVersion
	CmdDetect
	CmdPown
	CmdGetTicket
	CmdFind
)

// Healing group commands.
const (
	CmdValidateTicket = iota
	CmdFix
)

// Executive group commands.
const (
	CmdGetAvailableSNs = iota
	CmdCreateCoins
	CmdFreeCoins
	CmdDeleteCoins
	CmdGetAllSNs
	CmdStats
	CmdAudit
)

// Change group commands.
const (
	CmdGetAvailableChangeSNs = iota
	CmdBreak
	CmdJoin
)

// Locker group commands.
const (
	CmdStoreSum = iota
	CmdStoreMultipleSum
	CmdRemove
	CmdPeek
	CmdPutForSale
	CmdListLockersForSale
	CmdBuy
	CmdRemoveTradeLocker
	CmdPeekTradeLocker
)

// Shard group commands.
const (
	CmdPickupCoins = iota
	CmdSwitchShardSumWithSNs
)

// Filesystem group commands.
const (
	CmdGetObject = iota
	CmdPutObject
	CmdRmObject
)

// Change/break-join operation selector (get_available_change_sns.op).
const (
	ChangeOpBreak = 1
	ChangeOpJoin  = 2
)

// Per-handler MAX_AVAILABLE_COINS constants. spec.md leaves these
// independent on purpose: change, executive, and shard each got a
// different figure in the documents the spec was distilled from, and the
// spec's Open Question says not to unify them.
const (
	ChangeMaxAvailableCoins    = 64
	ExecutiveMaxAvailableCoins = 1024
	ShardMaxAvailableCoins     = 1029
)

const MaxCoinsPerTicket = 64

// AdminOverrideSession is the sentinel session id that exempts
// administrative write paths from the reservation-ownership check.
const AdminOverrideSession uint32 = 0xFFFFFFFF

// TestModeSessionID causes shard handlers to skip mutation entirely.
const TestModeSessionID uint32 = 0

// Trailer bytes that terminate every request/response body.
var BodyTrailer = [2]byte{0x3e, 0x3e}
