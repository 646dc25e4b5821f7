package protocol

import (
	"crypto/md5"
	"encoding/binary"
)

// Record is the 17-byte packed coin record: a 16-byte authentication
// number followed by a 1-byte months-from-start field. MFS == 0 means
// the coin is free; any other value means it is owned.
type Record struct {
	AN  [ANSize]byte
	MFS byte
}

// Owned reports whether the record currently represents an owned coin.
func (r Record) Owned() bool { return r.MFS != 0 }

// Marshal writes the record into the first RecordSize bytes of buf.
func (r Record) Marshal(buf []byte) {
	if len(buf) < RecordSize {
		panic("protocol: buffer too small for Record")
	}
	copy(buf[:ANSize], r.AN[:])
	buf[ANSize] = r.MFS
}

// UnmarshalRecord reads a Record from the first RecordSize bytes of buf.
func UnmarshalRecord(buf []byte) Record {
	var r Record
	copy(r.AN[:], buf[:ANSize])
	r.MFS = buf[ANSize]
	return r
}

// SN is a record's serial number: page_no * recordsPerPage + slot_index,
// addressed on the wire as an unsigned 32-bit integer.
type SN uint32

// PageNo returns the page number owning sn, given the configured number
// of records per page.
func (sn SN) PageNo(recordsPerPage uint32) uint32 { return uint32(sn) / recordsPerPage }

// SlotIndex returns the in-page slot index of sn.
func (sn SN) SlotIndex(recordsPerPage uint32) uint32 { return uint32(sn) % recordsPerPage }

// MakeSN composes a serial number from a page number and slot index.
func MakeSN(pageNo, slotIndex, recordsPerPage uint32) SN {
	return SN(pageNo*recordsPerPage + slotIndex)
}

// LegacyHash is the compatibility-critical digest used to derive default
// authentication numbers at store initialization and to derive healing
// repair ANs. It must byte-for-byte match the legacy coin systems this
// node interoperates with: MD5 of the concatenated input, truncated to
// ANSize bytes.
func LegacyHash(parts ...[]byte) [ANSize]byte {
	h := md5.New()
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	var out [ANSize]byte
	copy(out[:], sum[:ANSize])
	return out
}

// DefaultAN derives the deterministic default AN written for every slot
// when a page file is first created: digest of (seed, den, page_no, slot).
func DefaultAN(seed []byte, den Denomination, pageNo, slot uint32) [ANSize]byte {
	var denb [1]byte
	denb[0] = byte(den)
	var pageb, slotb [4]byte
	binary.BigEndian.PutUint32(pageb[:], pageNo)
	binary.BigEndian.PutUint32(slotb[:], slot)
	return LegacyHash(seed, denb[:], pageb[:], slotb[:])
}
