package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/sys/cpu"

	"github.com/raida-net/coinnode/internal/protocol"
)

// KeySource resolves the coin-derived key material a request's header
// points at. Implementations are backed by the page store and the
// locker indices; wire itself never touches them directly.
type KeySource interface {
	CoinAN(den protocol.Denomination, sn uint32) ([protocol.ANSize]byte, error)
	LockerANByPrefix(den protocol.Denomination, sn uint32) ([protocol.ANSize]byte, error)
}

// hasHardwareAES reports whether this CPU has AES instructions. The
// 32-byte (AES-256) key path is defined to hard-fail without them
// (spec.md §4.F); the 16-byte path is always permitted since legacy
// deployments predate the hardware-AES requirement.
func hasHardwareAES() bool {
	return cpu.X86.HasAES || cpu.ARM64.HasAES || cpu.ARM.HasAES
}

// DeriveKey resolves the AES key for a parsed header via ks, following
// the table in spec.md §4.F.
func DeriveKey(h Header, ks KeySource) ([]byte, error) {
	switch h.EncType {
	case EncLegacyCoin:
		an, err := ks.CoinAN(h.Locator1Den, h.Locator1SN)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", ErrCoinNotFound)
		}
		return an[:], nil

	case EncLegacyLocker:
		an, err := ks.LockerANByPrefix(h.Locator1Den, h.Locator1SN)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", ErrCoinNotFound)
		}
		return an[:], nil

	case EncModernCoin:
		if !hasHardwareAES() {
			return nil, ErrHWUnavailable
		}
		an, err := ks.CoinAN(h.Locator1Den, h.Locator1SN)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", ErrCoinNotFound)
		}
		sum := sha256.Sum256(an[:])
		return sum[:], nil

	case EncModernPair:
		if !hasHardwareAES() {
			return nil, ErrHWUnavailable
		}
		an1, err := ks.CoinAN(h.Locator1Den, h.Locator1SN)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", ErrCoinNotFound)
		}
		an2, err := ks.CoinAN(h.Locator2Den, h.Locator2SN)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", ErrCoinNotFound)
		}
		buf := make([]byte, 0, protocol.ANSize*2)
		buf = append(buf, an1[:]...)
		buf = append(buf, an2[:]...)
		sum := sha256.Sum256(buf)
		return sum[:], nil

	default:
		return nil, ErrInvalidEncryption
	}
}

// deriveCTRIV converts a variable-length nonce into the 16-byte IV
// crypto/cipher.NewCTR requires: nonces shorter than a block are
// zero-extended (the common 96-bit-nonce-plus-32-bit-counter CTR
// convention), longer nonces are truncated to their leading 16 bytes.
func deriveCTRIV(nonce []byte) [aes.BlockSize]byte {
	var iv [aes.BlockSize]byte
	n := copy(iv[:], nonce)
	_ = n
	return iv
}

// NewStream builds the AES-CTR keystream for key+nonce.
func NewStream(key, nonce []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("wire: aes.NewCipher: %w", err)
	}
	iv := deriveCTRIV(nonce)
	return cipher.NewCTR(block, iv[:]), nil
}

// CryptBody XORs the AES-CTR keystream for key+nonce across buf in
// place. AES-CTR is its own inverse, so the same call both decrypts a
// request body and encrypts a response body.
func CryptBody(buf, key, nonce []byte) error {
	stream, err := NewStream(key, nonce)
	if err != nil {
		return err
	}
	stream.XORKeyStream(buf, buf)
	return nil
}

// ChallengeSize is the legacy-only 16-byte challenge prefixed to request
// bodies: 12 arbitrary bytes followed by their CRC32.
const ChallengeSize = 16

// PayloadOffset returns how many body bytes to skip before the
// handler-visible payload begins: the 16-byte challenge for legacy
// requests, nothing for modern ones.
func (h Header) PayloadOffset() int {
	if h.EncType.IsLegacy() {
		return ChallengeSize
	}
	return 0
}
