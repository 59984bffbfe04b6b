package pager

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Data-page free-list pointer
// ───────────────────────────────────────────────────────────────────────────
//
// The engine's own data pages are opaque to this component except for one
// reserved field: a back-pointer to the list-node page that currently
// tracks this data page as free/partially-filled. This mirrors the
// teacher's FreeListPage entries pointing back at tracked pages, inverted
// so the data page itself carries the pointer (spec §3's DataPageFreeListID
// accessor pair) — letting a mutator find which node to remove a page from
// without a reverse index.
//
// Layout reuses the common 32-byte PageHeader's trailing Pad bytes: the
// first 8 bytes of Pad hold the free-list page-id (0 if untracked).

const dataPageFreeListOff = 24 // within PageHeader.Pad, i.e. buf[24:32]

// DataPageFreeListID reads the free-list back-pointer out of a data page
// buffer. Returns InvalidPageID if the page is not currently tracked by
// any node.
func DataPageFreeListID(buf []byte) PageID {
	return PageID(binary.LittleEndian.Uint64(buf[dataPageFreeListOff:]))
}

// SetDataPageFreeListID overwrites a data page's free-list back-pointer.
func SetDataPageFreeListID(buf []byte, id PageID) {
	binary.LittleEndian.PutUint64(buf[dataPageFreeListOff:], uint64(id))
}

// InitDataPage initializes buf as a fresh data page with no free-list
// tracking yet.
func InitDataPage(buf []byte, id PageID) {
	h := &PageHeader{Type: PageTypeData, ID: id}
	MarshalHeader(h, buf)
	SetDataPageFreeListID(buf, InvalidPageID)
}
