package wire

import (
	"errors"

	"github.com/raida-net/coinnode/internal/protocol"
)

// Framing and crypto errors, mapped to response status codes by Status.
// These are the only errors ParseHeader/DecryptBody produce; a non-nil
// error here means the handler must never run (spec.md §8: "no handler
// is invoked").
var (
	ErrInvalidRouting    = errors.New("wire: invalid routing byte")
	ErrInvalidSplit      = errors.New("wire: invalid split byte")
	ErrInvalidNode       = errors.New("wire: wrong node id")
	ErrInvalidCoinID     = errors.New("wire: wrong coin id")
	ErrInvalidCommand    = errors.New("wire: unknown group or command")
	ErrInvalidShard      = errors.New("wire: shard (denomination) out of range")
	ErrInvalidEncryption = errors.New("wire: unknown or unsupported encryption type")
	ErrPacketLength      = errors.New("wire: packet too short or body-size invalid")
	ErrUnexpectedEOF     = errors.New("wire: unexpected end of stream")
	ErrInvalidCRC        = errors.New("wire: challenge CRC mismatch")
	ErrCoinNotFound      = errors.New("wire: key-derivation coin not found")
	ErrHWUnavailable     = errors.New("wire: hardware AES required for this key size but unavailable")
)

// Status maps a wire-layer error to the response status byte it
// produces. Unrecognized errors map to StatusUnexpected.
func Status(err error) protocol.Status {
	switch {
	case errors.Is(err, ErrInvalidRouting):
		return protocol.StatusInvalidRouting
	case errors.Is(err, ErrInvalidSplit):
		return protocol.StatusInvalidSplit
	case errors.Is(err, ErrInvalidNode):
		return protocol.StatusInvalidNode
	case errors.Is(err, ErrInvalidCoinID):
		return protocol.StatusInvalidCoinID
	case errors.Is(err, ErrInvalidCommand):
		return protocol.StatusInvalidCommand
	case errors.Is(err, ErrInvalidShard):
		return protocol.StatusInvalidShard
	case errors.Is(err, ErrInvalidEncryption):
		return protocol.StatusInvalidEncryption
	case errors.Is(err, ErrPacketLength):
		return protocol.StatusPacketLength
	case errors.Is(err, ErrUnexpectedEOF):
		return protocol.StatusUnexpectedEOF
	case errors.Is(err, ErrInvalidCRC):
		return protocol.StatusInvalidCRC
	case errors.Is(err, ErrCoinNotFound):
		return protocol.StatusCoinNotFound
	case errors.Is(err, ErrHWUnavailable):
		return protocol.StatusHWUnavailable
	default:
		return protocol.StatusUnexpected
	}
}
