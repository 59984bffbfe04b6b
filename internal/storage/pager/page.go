// Package pager implements the striped, doubly-linked, on-disk page list
// used to track free/partially-filled data pages and free index pages for
// a page-based storage engine, plus the page-memory and WAL machinery it
// runs on.
//
// The storage format consists of a main database file with fixed-size
// pages (default 8 KiB) and a sequential WAL file. The first page is a
// format header; subsequent pages are typed (list-node, list-meta, or the
// engine's own data pages). Every page carries a header with type,
// page-ID, LSN, and CRC32 checksum. Crash recovery replays committed WAL
// deltas from the last checkpoint LSN.
package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ───────────────────────────────────────────────────────────────────────────
// Constants
// ───────────────────────────────────────────────────────────────────────────

const (
	// DefaultPageSize is the default page size in bytes (8 KiB).
	DefaultPageSize = 8192

	// MinPageSize is the minimum allowed page size (4 KiB).
	MinPageSize = 4096

	// MaxPageSize is the maximum allowed page size (64 KiB).
	MaxPageSize = 65536

	// PageHeaderSize is the size of the common page header in bytes.
	// Layout:
	//   [0]    PageType   (1 byte)
	//   [1]    Flags      (1 byte)
	//   [2:4]  Reserved   (2 bytes)
	//   [4:12] PageID     (8 bytes, uint64 LE, tagged — see PageID)
	//   [12:20] LSN       (8 bytes, uint64 LE)
	//   [20:24] CRC32     (4 bytes, uint32 LE)
	//   [24:32] Reserved  (8 bytes)
	PageHeaderSize = 32

	// InvalidPageID represents a null/invalid page pointer.
	InvalidPageID PageID = 0
)

// ───────────────────────────────────────────────────────────────────────────
// Page types
// ───────────────────────────────────────────────────────────────────────────

// PageType identifies the kind of data stored in a page.
type PageType uint8

const (
	PageTypeFormatHeader PageType = 0x01
	PageTypeListNode     PageType = 0x02
	PageTypeListMeta     PageType = 0x03
	PageTypeData         PageType = 0x04
)

// String returns a human-readable label for the page type.
func (pt PageType) String() string {
	switch pt {
	case PageTypeFormatHeader:
		return "FormatHeader"
	case PageTypeListNode:
		return "ListNode"
	case PageTypeListMeta:
		return "ListMeta"
	case PageTypeData:
		return "Data"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(pt))
	}
}

// ───────────────────────────────────────────────────────────────────────────
// PageID — tagged 64-bit identifier with a rotation counter
// ───────────────────────────────────────────────────────────────────────────
//
// Bit layout (LSB to MSB):
//   bit 0        PageKind (0 = DATA, 1 = INDEX)
//   bits 1..31   slot        — the raw page slot number
//   bits 32..63  generation  — rotation counter, bumped by Rotate
//
// Rotating a page id (on recycle) bumps the generation, which is how a
// weak reference reading the old generation is invalidated: any holder of
// the pre-rotation id will find that PageMemory.Page(id) / the page's
// embedded header no longer agrees once it re-reads the live id.

// PageKind distinguishes data pages from index (list-node/list-meta) pages.
type PageKind uint8

const (
	KindData  PageKind = 0
	KindIndex PageKind = 1
)

// PageID is a 64-bit tagged page identifier carrying a type flag and a
// rotation (generation) counter.
type PageID uint64

const (
	pageIDKindBits  = 1
	pageIDKindMask  = (uint64(1) << pageIDKindBits) - 1
	pageIDSlotBits  = 31
	pageIDSlotMask  = (uint64(1) << pageIDSlotBits) - 1
	pageIDSlotShift = pageIDKindBits
	pageIDGenShift  = pageIDKindBits + pageIDSlotBits
)

// NewPageID builds a tagged page id from a slot number, kind, and
// generation (rotation count).
func NewPageID(slot uint32, kind PageKind, generation uint32) PageID {
	return PageID(uint64(generation)<<pageIDGenShift |
		(uint64(slot)&pageIDSlotMask)<<pageIDSlotShift |
		(uint64(kind) & pageIDKindMask))
}

// Slot returns the raw slot number encoded in the id.
func (id PageID) Slot() uint32 {
	return uint32((uint64(id) >> pageIDSlotShift) & pageIDSlotMask)
}

// Kind returns DATA or INDEX.
func (id PageID) Kind() PageKind {
	return PageKind(uint64(id) & pageIDKindMask)
}

// Generation returns the rotation counter.
func (id PageID) Generation() uint32 {
	return uint32(uint64(id) >> pageIDGenShift)
}

// IsData reports whether the id is tagged DATA.
func (id PageID) IsData() bool { return id.Kind() == KindData }

// IsIndex reports whether the id is tagged INDEX.
func (id PageID) IsIndex() bool { return id.Kind() == KindIndex }

// Retype returns a new id over the same slot and generation but with the
// kind flag replaced. Used when a page already in hand changes role
// in-place (e.g. a reuse-bucket split retypes an incoming empty data page
// into an INDEX node) — unlike Rotate, this does not invalidate weak
// references, since no recycle is taking place.
func (id PageID) Retype(newKind PageKind) PageID {
	return NewPageID(id.Slot(), newKind, id.Generation())
}

// Rotate returns a new id over the same slot and kind with the generation
// bumped by one. Rotation is what the spec calls "recycle": any weak
// reference holding the pre-rotation id is invalidated because it no
// longer matches the page's live embedded id. Rotation never changes a
// page's role — a node page recycled this way stays a node page. Giving a
// recycled page a new role is a separate, explicit Retype at the point
// where that role change actually happens.
func (id PageID) Rotate() PageID {
	return NewPageID(id.Slot(), id.Kind(), id.Generation()+1)
}

// String renders the id for diagnostics.
func (id PageID) String() string {
	return fmt.Sprintf("%c%d.%d", kindLetter(id.Kind()), id.Slot(), id.Generation())
}

func kindLetter(k PageKind) byte {
	if k == KindIndex {
		return 'I'
	}
	return 'D'
}

// ───────────────────────────────────────────────────────────────────────────
// Core types
// ───────────────────────────────────────────────────────────────────────────

// LSN is a monotonically increasing Log Sequence Number.
type LSN uint64

// ───────────────────────────────────────────────────────────────────────────
// Page header
// ───────────────────────────────────────────────────────────────────────────

// PageHeader is the 32-byte header present at the start of every page.
type PageHeader struct {
	Type     PageType // 1 byte
	Flags    uint8    // 1 byte
	Reserved uint16   // 2 bytes
	ID       PageID   // 8 bytes
	LSN      LSN      // 8 bytes
	CRC      uint32   // 4 bytes — CRC32 of the entire page (with CRC field zeroed)
	Pad      [8]byte  // reserved for future use
}

// MarshalHeader writes a PageHeader into the first PageHeaderSize bytes of buf.
func MarshalHeader(h *PageHeader, buf []byte) {
	if len(buf) < PageHeaderSize {
		panic("buffer too small for PageHeader")
	}
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(h.ID))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.LSN))
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC)
	copy(buf[24:32], h.Pad[:])
}

// UnmarshalHeader reads a PageHeader from the first PageHeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) PageHeader {
	var h PageHeader
	h.Type = PageType(buf[0])
	h.Flags = buf[1]
	h.Reserved = binary.LittleEndian.Uint16(buf[2:4])
	h.ID = PageID(binary.LittleEndian.Uint64(buf[4:12]))
	h.LSN = LSN(binary.LittleEndian.Uint64(buf[12:20]))
	h.CRC = binary.LittleEndian.Uint32(buf[20:24])
	copy(h.Pad[:], buf[24:32])
	return h
}

// HeaderID reads just the page id out of a buffer, without building a
// full PageHeader. Used on the hot path to re-validate a latched page's
// embedded id against the id we selected it by.
func HeaderID(buf []byte) PageID {
	return PageID(binary.LittleEndian.Uint64(buf[4:12]))
}

// SetHeaderID overwrites just the page id field of an already-marshaled
// page buffer — used by Recycle to rotate a page's id in place.
func SetHeaderID(buf []byte, id PageID) {
	binary.LittleEndian.PutUint64(buf[4:12], uint64(id))
}

// ───────────────────────────────────────────────────────────────────────────
// CRC helpers
// ───────────────────────────────────────────────────────────────────────────

// crcTable is the CRC32 (Castagnoli) table used throughout.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full page, treating the CRC
// field (bytes 20..24) as zero during computation.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:20])          // header up to CRC field
	h.Write([]byte{0, 0, 0, 0}) // zeroed CRC placeholder
	h.Write(page[24:])          // rest of page
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	c := ComputePageCRC(page)
	binary.LittleEndian.PutUint32(page[20:24], c)
}

// VerifyPageCRC checks the CRC32 checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.LittleEndian.Uint32(page[20:24])
	computed := ComputePageCRC(page)
	if stored != computed {
		pid := PageID(binary.LittleEndian.Uint64(page[4:12]))
		return fmt.Errorf("CRC mismatch on page %s: stored=%08x computed=%08x", pid, stored, computed)
	}
	return nil
}

// ───────────────────────────────────────────────────────────────────────────
// Page helper
// ───────────────────────────────────────────────────────────────────────────

// NewPage allocates a zeroed page buffer at the given size and writes its header.
func NewPage(pageSize int, pt PageType, id PageID) []byte {
	buf := make([]byte, pageSize)
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return buf
}
