package pager

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// List-meta pages (spec §3, §4.6)
// ───────────────────────────────────────────────────────────────────────────
//
// A meta page carries nextMetaPageId plus a packed sequence of
// (bucket, tailId) entries. The set of entries across the whole meta-page
// chain is exactly the set of stripe tails at save time. Grounded on the
// same chain-of-pages idiom as node.go/the deleted freelist.go, with a
// fixed-width entry instead of a bare id.
//
// Layout:
//   [0:32]   Common PageHeader (Type=ListMeta, ID as passed in; not retyped)
//   [32:40]  NextMetaPageId (uint64 LE) — 0 = end of chain
//   [40:44]  Count          (uint32 LE)
//   [44:44+12*Count]        Entries: bucket (uint32 LE) + tailId (uint64 LE)

const (
	metaNextOff  = PageHeaderSize    // 32
	metaCountOff = metaNextOff + 8   // 40
	metaDataOff  = metaCountOff + 4  // 44
	metaEntryLen = 4 + 8             // bucket + tailId
)

// MetaEntry is one (bucket, tailId) pair recorded on a meta page.
type MetaEntry struct {
	Bucket int
	TailID PageID
}

// MetaCapacity returns how many (bucket, tailId) entries fit on one meta page.
func MetaCapacity(pageSize int) int {
	return (pageSize - metaDataOff) / metaEntryLen
}

// Meta wraps a page buffer as a list-meta page.
type Meta struct {
	buf      []byte
	pageSize int
}

// WrapMeta wraps an existing list-meta buffer.
func WrapMeta(buf []byte) *Meta {
	return &Meta{buf: buf, pageSize: len(buf)}
}

// InitNewMetaPage initializes buf as a fresh, empty head-of-chain meta page.
func InitNewMetaPage(buf []byte, id PageID) *Meta {
	m := &Meta{buf: buf, pageSize: len(buf)}
	h := &PageHeader{Type: PageTypeListMeta, ID: id}
	MarshalHeader(h, buf)
	m.SetNextMetaPageID(InvalidPageID)
	m.setCount(0)
	return m
}

// ID returns the meta page's embedded page id.
func (m *Meta) ID() PageID { return HeaderID(m.buf) }

// NextMetaPageID returns the next page in the meta-page chain, or 0 at the end.
func (m *Meta) NextMetaPageID() PageID {
	return PageID(binary.LittleEndian.Uint64(m.buf[metaNextOff:]))
}

// SetNextMetaPageID links this meta page to the next one in the chain.
func (m *Meta) SetNextMetaPageID(id PageID) {
	binary.LittleEndian.PutUint64(m.buf[metaNextOff:], uint64(id))
}

func (m *Meta) getCount() int {
	return int(binary.LittleEndian.Uint32(m.buf[metaCountOff:]))
}

func (m *Meta) setCount(c int) {
	binary.LittleEndian.PutUint32(m.buf[metaCountOff:], uint32(c))
}

// GetCount returns the number of entries currently packed onto this page.
func (m *Meta) GetCount() int { return m.getCount() }

func (m *Meta) entryOff(i int) int { return metaDataOff + i*metaEntryLen }

// EntryAt reads the entry at slot i.
func (m *Meta) EntryAt(i int) MetaEntry {
	off := m.entryOff(i)
	return MetaEntry{
		Bucket: int(binary.LittleEndian.Uint32(m.buf[off:])),
		TailID: PageID(binary.LittleEndian.Uint64(m.buf[off+4:])),
	}
}

func (m *Meta) setEntryAt(i int, e MetaEntry) {
	off := m.entryOff(i)
	binary.LittleEndian.PutUint32(m.buf[off:], uint32(e.Bucket))
	binary.LittleEndian.PutUint64(m.buf[off+4:], uint64(e.TailID))
}

// AddEntry appends one (bucket, tailId) entry. Returns false if the page
// is already at capacity.
func (m *Meta) AddEntry(e MetaEntry) bool {
	c := m.getCount()
	if c >= MetaCapacity(m.pageSize) {
		return false
	}
	m.setEntryAt(c, e)
	m.setCount(c + 1)
	return true
}

// Reset zeroes the entry count without touching the chain link, as spec
// §3 requires for surplus meta pages left over after a save ("zeroed
// (count reset) but retained").
func (m *Meta) Reset() { m.setCount(0) }

// Entries returns every entry currently packed onto this page.
func (m *Meta) Entries() []MetaEntry {
	c := m.getCount()
	out := make([]MetaEntry, c)
	for i := 0; i < c; i++ {
		out[i] = m.EntryAt(i)
	}
	return out
}

// Bytes returns the underlying page buffer.
func (m *Meta) Bytes() []byte { return m.buf }
