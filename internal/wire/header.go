// Package wire implements the binary request/response framing, header
// parsing for both protocol revisions, and AES-CTR decrypt/encrypt
// described in spec.md §4.F and §6.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/raida-net/coinnode/internal/protocol"
)

// EncType is the one-byte encryption-type tag at offset 16 of every
// header, which determines both the header variant (legacy 32-byte vs
// modern 48-byte) and the key-derivation scheme.
type EncType byte

const (
	EncLegacyCoin   EncType = 1 // 16-byte raw coin AN
	EncLegacyLocker EncType = 2 // 16-byte raw locker-index AN
	encLegacy3      EncType = 3 // reserved legacy variant, same framing as 1/2
	EncModernCoin   EncType = 4 // 32-byte SHA-256(AN)
	EncModernPair   EncType = 5 // 32-byte SHA-256(AN1||AN2)
)

func (e EncType) IsLegacy() bool { return e >= EncLegacyCoin && e <= encLegacy3 }
func (e EncType) IsModern() bool { return e == EncModernCoin || e == EncModernPair }
func (e EncType) Valid() bool    { return e.IsLegacy() || e.IsModern() }

const (
	LegacyHeaderSize = 32
	ModernHeaderSize = 48

	offRouting = 0
	offSplit   = 1
	offNode    = 2
	offCoin    = 3
	offGroup   = 4
	offCommand = 5
	// bytes 6-7 reserved

	legacyNonceOff = 8
	legacyNonceLen = 12 // bytes 8..19

	offEncType = 16 // embedded within the legacy nonce span

	offLocator1Den = 17
	offLocator1SN  = 18 // 4 bytes, 18..21

	offBodySize = 22 // 2 bytes big-endian, both variants

	// Modern-only: second key locator overlaps the first 5 bytes of the
	// 24-byte modern nonce, a historical wire-format quirk the legacy
	// header already exhibits with its own locator/nonce overlap.
	offLocator2Den = 24
	offLocator2SN  = 25 // 4 bytes, 25..28

	modernNonceOff = 24
	modernNonceLen = 24 // bytes 24..47

	routingOK = 1
)

// Header is the parsed form of a request header, variant-independent.
type Header struct {
	Routing byte
	Split   byte
	NodeID  byte
	CoinID  byte
	Group   byte
	Command byte
	EncType EncType
	Nonce   []byte // 12 bytes (legacy) or 24 bytes (modern)

	Locator1Den protocol.Denomination
	Locator1SN  uint32
	HasLocator2 bool
	Locator2Den protocol.Denomination
	Locator2SN  uint32

	BodySize uint16

	// HeaderLen is the number of header bytes this variant occupies.
	HeaderLen int
}

// ParseHeader reads the encryption-type byte at offset 16 to determine
// the header variant, then parses the full header. buf must contain at
// least LegacyHeaderSize bytes; if the encryption type indicates a
// modern header, buf must contain at least ModernHeaderSize bytes.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < LegacyHeaderSize {
		return Header{}, ErrPacketLength
	}
	enc := EncType(buf[offEncType])
	if !enc.Valid() {
		return Header{}, ErrInvalidEncryption
	}

	size := LegacyHeaderSize
	if enc.IsModern() {
		size = ModernHeaderSize
	}
	if len(buf) < size {
		return Header{}, ErrPacketLength
	}

	h := Header{
		Routing:   buf[offRouting],
		Split:     buf[offSplit],
		NodeID:    buf[offNode],
		CoinID:    buf[offCoin],
		Group:     buf[offGroup],
		Command:   buf[offCommand],
		EncType:   enc,
		Locator1Den: protocol.Denomination(int8(buf[offLocator1Den])),
		Locator1SN:  binary.BigEndian.Uint32(buf[offLocator1SN : offLocator1SN+4]),
		BodySize:    binary.BigEndian.Uint16(buf[offBodySize : offBodySize+2]),
		HeaderLen:   size,
	}

	if enc.IsLegacy() {
		h.Nonce = append([]byte(nil), buf[legacyNonceOff:legacyNonceOff+legacyNonceLen]...)
	} else {
		h.Nonce = append([]byte(nil), buf[modernNonceOff:modernNonceOff+modernNonceLen]...)
		if enc == EncModernPair {
			h.HasLocator2 = true
			h.Locator2Den = protocol.Denomination(int8(buf[offLocator2Den]))
			h.Locator2SN = binary.BigEndian.Uint32(buf[offLocator2SN : offLocator2SN+4])
		}
	}

	return h, nil
}

// Validate checks header fields against the current node's identity and
// the dispatch table's bounds, per spec.md §4.F's rejection list.
func (h Header) Validate(nodeID, coinID byte, maxGroup byte) error {
	if h.Routing != routingOK {
		return ErrInvalidRouting
	}
	if h.Split != 0 {
		return ErrInvalidSplit
	}
	if h.NodeID != nodeID {
		return ErrInvalidNode
	}
	if h.CoinID != coinID {
		return ErrInvalidCoinID
	}
	if h.Group > maxGroup {
		return fmt.Errorf("wire: %w: group %d", ErrInvalidCommand, h.Group)
	}
	if !h.Locator1Den.Valid() {
		return ErrInvalidShard
	}
	if h.BodySize < 2 {
		return ErrPacketLength
	}
	return nil
}
