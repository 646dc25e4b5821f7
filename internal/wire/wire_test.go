package wire

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/raida-net/coinnode/internal/protocol"
)

type fakeKeySource struct {
	an [protocol.ANSize]byte
}

func (f fakeKeySource) CoinAN(den protocol.Denomination, sn uint32) ([protocol.ANSize]byte, error) {
	return f.an, nil
}

func (f fakeKeySource) LockerANByPrefix(den protocol.Denomination, sn uint32) ([protocol.ANSize]byte, error) {
	return f.an, nil
}

func buildLegacyRequest(t *testing.T, encType EncType, den protocol.Denomination, sn uint32, payload []byte) []byte {
	t.Helper()
	body := make([]byte, ChallengeSize+len(payload)+2)
	copy(body[12:16], []byte{0, 0, 0, 0}) // placeholder, fixed below
	challenge := body[:12]
	for i := range challenge {
		challenge[i] = byte(i + 1)
	}
	crc := crc32.ChecksumIEEE(challenge)
	binary.BigEndian.PutUint32(body[12:16], crc)
	copy(body[ChallengeSize:], payload)
	body[len(body)-2] = BodyTrailerByte0
	body[len(body)-1] = BodyTrailerByte1

	buf := make([]byte, LegacyHeaderSize)
	buf[offRouting] = routingOK
	buf[offNode] = 3
	buf[offCoin] = 7
	buf[offGroup] = protocol.GroupAuth
	buf[offCommand] = protocol.CmdDetect
	buf[offEncType] = byte(encType)
	buf[offLocator1Den] = byte(int8(den))
	binary.BigEndian.PutUint32(buf[offLocator1SN:offLocator1SN+4], sn)
	binary.BigEndian.PutUint16(buf[offBodySize:offBodySize+2], uint16(len(body)))

	return append(buf, body...)
}

func TestParseHeaderLegacyRoundTrip(t *testing.T) {
	raw := buildLegacyRequest(t, EncLegacyCoin, 2, 99, []byte("hello"))
	h, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.HeaderLen != LegacyHeaderSize {
		t.Fatalf("HeaderLen = %d, want %d", h.HeaderLen, LegacyHeaderSize)
	}
	if h.Locator1Den != 2 || h.Locator1SN != 99 {
		t.Fatalf("locator mismatch: den=%d sn=%d", h.Locator1Den, h.Locator1SN)
	}
	if err := h.Validate(3, 7, protocol.MaxGroup); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseHeaderUnknownEncryptionType(t *testing.T) {
	raw := buildLegacyRequest(t, EncLegacyCoin, 0, 0, nil)
	raw[offEncType] = 9
	_, err := ParseHeader(raw)
	if err != ErrInvalidEncryption {
		t.Fatalf("got %v, want ErrInvalidEncryption", err)
	}
}

func TestDecryptBodyRejectsCorruptChallengeCRC(t *testing.T) {
	ks := fakeKeySource{}
	raw := buildLegacyRequest(t, EncLegacyCoin, 0, 0, []byte("payload"))
	h, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	key, err := DeriveKey(h, ks)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	body := append([]byte(nil), raw[h.HeaderLen:]...)
	if err := CryptBody(body, key, h.Nonce); err != nil {
		t.Fatalf("CryptBody (encrypt fixture): %v", err)
	}
	// Corrupt one challenge byte before the node ever sees it.
	body[0] ^= 0xFF

	_, err = DecryptBody(h, body, key)
	if err != ErrInvalidCRC {
		t.Fatalf("got %v, want ErrInvalidCRC", err)
	}
}

func TestCryptBodyRoundTrip(t *testing.T) {
	key128 := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	plain := []byte("hello world, this is plaintext!")

	cipherText := append([]byte(nil), plain...)
	if err := CryptBody(cipherText, key128, nonce); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(cipherText) == string(plain) {
		t.Fatal("ciphertext should differ from plaintext")
	}

	decoded := append([]byte(nil), cipherText...)
	if err := CryptBody(decoded, key128, nonce); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(decoded) != string(plain) {
		t.Fatalf("round trip mismatch: got %q want %q", decoded, plain)
	}
}

func TestCryptBodyRoundTrip256(t *testing.T) {
	key256 := make([]byte, 32)
	for i := range key256 {
		key256[i] = byte(i)
	}
	nonce := make([]byte, 24)
	for i := range nonce {
		nonce[i] = byte(i * 3)
	}
	plain := []byte("another plaintext message for AES-256-CTR")

	cipherText := append([]byte(nil), plain...)
	if err := CryptBody(cipherText, key256, nonce); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	decoded := append([]byte(nil), cipherText...)
	if err := CryptBody(decoded, key256, nonce); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(decoded) != string(plain) {
		t.Fatalf("round trip mismatch: got %q want %q", decoded, plain)
	}
}
