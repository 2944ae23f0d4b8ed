package store

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Meta page layout. Two slots live in the first page of the file; the valid
// slot with the highest txid is current and every update goes to the other
// one, so a torn meta write always leaves the previous state readable.
//
//	magic "ERDB" (4) | format u16 | reserved u16 | txid u64 | capacity u64 |
//	used u64 | version u32 | reserved u32 | last seq u64 | live keys u64 |
//	live bytes u64 | xxhash64 of the preceding bytes
const (
	metaPageSize  = 4096
	metaSlotSize  = 512
	metaMagic     = "ERDB"
	metaFormat    = uint16(1)
	metaBodySize  = 64
	metaTotalSize = metaBodySize + 8
)

// Meta is the durable state of the store.
type Meta struct {
	TxID      uint64
	Capacity  uint64
	Used      uint64
	Version   uint32
	LastSeq   uint64
	LiveKeys  uint64
	LiveBytes uint64
}

// DeadBytes is the part of Used held by overwritten values and tombstones.
func (m Meta) DeadBytes() uint64 {
	live := m.LiveBytes + m.LiveKeys*recordHeaderSize
	if live >= m.Used {
		return 0
	}
	return m.Used - live
}

func slotOffset(txid uint64) int {
	return int(txid%2) * metaSlotSize
}

func (m *Meta) encode(dst []byte) {
	clear(dst[:metaTotalSize])
	copy(dst[0:4], metaMagic)
	binary.LittleEndian.PutUint16(dst[4:6], metaFormat)
	binary.LittleEndian.PutUint64(dst[8:16], m.TxID)
	binary.LittleEndian.PutUint64(dst[16:24], m.Capacity)
	binary.LittleEndian.PutUint64(dst[24:32], m.Used)
	binary.LittleEndian.PutUint32(dst[32:36], m.Version)
	binary.LittleEndian.PutUint64(dst[40:48], m.LastSeq)
	binary.LittleEndian.PutUint64(dst[48:56], m.LiveKeys)
	binary.LittleEndian.PutUint64(dst[56:64], m.LiveBytes)
	binary.LittleEndian.PutUint64(dst[64:72], xxhash.Sum64(dst[:metaBodySize]))
}

// decodeMeta parses a slot. ok is false when the slot does not validate;
// formatOK is false when it validates but was written by another format.
func decodeMeta(src []byte) (m Meta, ok, formatOK bool) {
	if string(src[0:4]) != metaMagic {
		return Meta{}, false, false
	}
	if binary.LittleEndian.Uint64(src[64:72]) != xxhash.Sum64(src[:metaBodySize]) {
		return Meta{}, false, false
	}
	if binary.LittleEndian.Uint16(src[4:6]) != metaFormat {
		return Meta{}, true, false
	}

	m = Meta{
		TxID:      binary.LittleEndian.Uint64(src[8:16]),
		Capacity:  binary.LittleEndian.Uint64(src[16:24]),
		Used:      binary.LittleEndian.Uint64(src[24:32]),
		Version:   binary.LittleEndian.Uint32(src[32:36]),
		LastSeq:   binary.LittleEndian.Uint64(src[40:48]),
		LiveKeys:  binary.LittleEndian.Uint64(src[48:56]),
		LiveBytes: binary.LittleEndian.Uint64(src[56:64]),
	}
	return m, true, true
}

// pickMeta returns the current meta from a meta page.
func pickMeta(page []byte) (Meta, error) {
	var (
		best     Meta
		found    bool
		mismatch bool
	)
	for _, off := range []int{0, metaSlotSize} {
		m, ok, formatOK := decodeMeta(page[off : off+metaTotalSize])
		if !ok {
			continue
		}
		if !formatOK {
			mismatch = true
			continue
		}
		if !found || m.TxID > best.TxID {
			best, found = m, true
		}
	}

	switch {
	case found:
		return best, nil
	case mismatch:
		return Meta{}, ErrVersionMismatch
	default:
		return Meta{}, ErrCorrupted
	}
}
