package wire

import (
	"encoding/binary"
	"hash/crc32"
)

// DecryptBody decrypts buf in place with key/nonce, then validates the
// trailer and, for legacy requests, the embedded challenge CRC. buf must
// be exactly the request body (header already stripped). Returns the
// 12-byte arbitrary challenge prefix for legacy requests (nil for
// modern) so the response encoder can echo it.
func DecryptBody(h Header, buf []byte, key []byte) (challenge []byte, err error) {
	if len(buf) < 2 {
		return nil, ErrPacketLength
	}
	if err := CryptBody(buf, key, h.Nonce); err != nil {
		return nil, err
	}

	if len(buf) < 2 || buf[len(buf)-2] != BodyTrailerByte0 || buf[len(buf)-1] != BodyTrailerByte1 {
		return nil, ErrUnexpectedEOF
	}

	if h.EncType.IsLegacy() {
		if len(buf) < ChallengeSize {
			return nil, ErrPacketLength
		}
		raw := buf[:12]
		wantCRC := binary.BigEndian.Uint32(buf[12:16])
		gotCRC := crc32.ChecksumIEEE(raw)
		if gotCRC != wantCRC {
			return nil, ErrInvalidCRC
		}
		return append([]byte(nil), raw...), nil
	}
	return nil, nil
}

// Trailer bytes, named rather than left as magic numbers.
const (
	BodyTrailerByte0 = 0x3e
	BodyTrailerByte1 = 0x3e
)

// Payload returns the handler-visible slice of a decrypted body: skips
// the 16-byte challenge for legacy, nothing for modern, and always
// excludes the 2-byte trailer.
func Payload(h Header, buf []byte) []byte {
	start := h.PayloadOffset()
	end := len(buf) - 2
	if start > end {
		return nil
	}
	return buf[start:end]
}
