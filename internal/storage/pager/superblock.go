package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Format header — Page 0
// ───────────────────────────────────────────────────────────────────────────
//
// Layout (fits in one page, default 8 KiB), adapted from the teacher's
// superblock: dropped CatalogRoot (no catalog in this component's scope)
// and FreeListRoot (replaced by the spec's own meta-page chain, whose
// head is a caller-supplied constructor parameter, not store state).
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       32    Common PageHeader (Type=FormatHeader, ID=0)
//  32      8     Magic            [8]byte "PLISTFMT"
//  40      4     FormatVersion    uint32 LE
//  44      4     PageSize         uint32 LE
//  48      8     PageCount        uint64 LE
//  56      8     CheckpointLSN    uint64 LE
//  64      4     NextSlot         uint32 LE (next raw page slot to allocate)
//  68      ...   Reserved (zero-filled)

const (
	FormatMagic          = "PLISTFMT"
	CurrentFormatVersion = uint32(1)

	fhMagicOff         = PageHeaderSize
	fhFormatVersionOff = fhMagicOff + 8
	fhPageSizeOff      = fhFormatVersionOff + 4
	fhPageCountOff     = fhPageSizeOff + 4
	fhCheckpointLSNOff = fhPageCountOff + 8
	fhNextSlotOff      = fhCheckpointLSNOff + 8
)

// FormatHeader holds the parsed contents of page 0.
type FormatHeader struct {
	FormatVersion uint32
	PageSize      uint32
	PageCount     uint64
	CheckpointLSN LSN
	NextSlot      uint32
}

// MarshalFormatHeader serializes a FormatHeader into a full page buffer.
func MarshalFormatHeader(h *FormatHeader, pageSize int) []byte {
	buf := NewPage(pageSize, PageTypeFormatHeader, NewPageID(0, KindIndex, 0))

	copy(buf[fhMagicOff:fhMagicOff+8], FormatMagic)
	binary.LittleEndian.PutUint32(buf[fhFormatVersionOff:], h.FormatVersion)
	binary.LittleEndian.PutUint32(buf[fhPageSizeOff:], h.PageSize)
	binary.LittleEndian.PutUint64(buf[fhPageCountOff:], h.PageCount)
	binary.LittleEndian.PutUint64(buf[fhCheckpointLSNOff:], uint64(h.CheckpointLSN))
	binary.LittleEndian.PutUint32(buf[fhNextSlotOff:], h.NextSlot)

	SetPageCRC(buf)
	return buf
}

// UnmarshalFormatHeader decodes page 0 from buf.
func UnmarshalFormatHeader(buf []byte) (*FormatHeader, error) {
	if len(buf) < MinPageSize {
		return nil, fmt.Errorf("format header too small: %d bytes", len(buf))
	}
	if err := VerifyPageCRC(buf); err != nil {
		return nil, fmt.Errorf("format header CRC: %w", err)
	}
	magic := string(buf[fhMagicOff : fhMagicOff+8])
	if magic != FormatMagic {
		return nil, fmt.Errorf("bad magic %q, expected %q", magic, FormatMagic)
	}
	h := &FormatHeader{
		FormatVersion: binary.LittleEndian.Uint32(buf[fhFormatVersionOff:]),
		PageSize:      binary.LittleEndian.Uint32(buf[fhPageSizeOff:]),
		PageCount:     binary.LittleEndian.Uint64(buf[fhPageCountOff:]),
		CheckpointLSN: LSN(binary.LittleEndian.Uint64(buf[fhCheckpointLSNOff:])),
		NextSlot:      binary.LittleEndian.Uint32(buf[fhNextSlotOff:]),
	}
	if h.FormatVersion != CurrentFormatVersion {
		return nil, fmt.Errorf("unsupported format version %d (this build supports %d)",
			h.FormatVersion, CurrentFormatVersion)
	}
	if h.PageSize < MinPageSize || h.PageSize > MaxPageSize {
		return nil, fmt.Errorf("page size %d out of range [%d..%d]", h.PageSize, MinPageSize, MaxPageSize)
	}
	if h.PageSize&(h.PageSize-1) != 0 {
		return nil, fmt.Errorf("page size %d is not a power of two", h.PageSize)
	}
	return h, nil
}

// NewFormatHeader creates a default FormatHeader for a new store. Slot 0
// is reserved for the header itself, so allocation starts at slot 1.
func NewFormatHeader(pageSize uint32) *FormatHeader {
	return &FormatHeader{
		FormatVersion: CurrentFormatVersion,
		PageSize:      pageSize,
		PageCount:     1,
		CheckpointLSN: 0,
		NextSlot:      1,
	}
}
