package pager

import (
	"encoding/binary"
)

// ───────────────────────────────────────────────────────────────────────────
// List-node pages (spec §3, §4.1's node-page-layout ancestor: freelist.go)
// ───────────────────────────────────────────────────────────────────────────
//
// A node page is the skeleton of a stripe: previousId/nextId links plus a
// capped array of page-ids. This is a direct generalization of the
// teacher's FreeListPage (a singly-linked chain of pages each holding a
// capped array of free ids) into a doubly-linked, order-preserving node:
//
// Layout:
//   [0:32]   Common PageHeader (Type=ListNode, always tagged INDEX)
//   [32:40]  PreviousID   (uint64 LE) — 0 = head of stripe
//   [40:48]  NextID       (uint64 LE) — 0 = tail of stripe
//   [48:52]  Count        (uint32 LE) — number of PageID entries
//   [52:52+8*Count]       PageID entries (uint64 LE each)
//
// Capacity per page: (PageSize - 52) / 8 entries.

const (
	nodePreviousOff = PageHeaderSize      // 32
	nodeNextOff     = nodePreviousOff + 8 // 40
	nodeCountOff    = nodeNextOff + 8     // 48
	nodeDataOff     = nodeCountOff + 4    // 52
	nodeEntryLen    = 8                   // uint64 PageID
)

// NodeCapacity returns how many page-ids fit in one list-node page.
func NodeCapacity(pageSize int) int {
	return (pageSize - nodeDataOff) / nodeEntryLen
}

// Node wraps a page buffer as a list-node page.
type Node struct {
	buf      []byte
	pageSize int
}

// WrapNode wraps an existing list-node buffer.
func WrapNode(buf []byte) *Node {
	return &Node{buf: buf, pageSize: len(buf)}
}

// InitNewPage initializes buf as a fresh, empty list-node page with the
// given id and previous link. The node page type is always INDEX (spec
// §3: "The node page type is always INDEX").
func InitNewPage(buf []byte, id PageID, previousID PageID) *Node {
	n := &Node{buf: buf, pageSize: len(buf)}
	n.init(id, previousID)
	return n
}

func (n *Node) init(id PageID, previousID PageID) {
	h := &PageHeader{Type: PageTypeListNode, ID: id}
	MarshalHeader(h, n.buf)
	n.setPreviousID(previousID)
	n.setNextID(InvalidPageID)
	n.setCount(0)
}

// ID returns the node's current embedded page id.
func (n *Node) ID() PageID { return HeaderID(n.buf) }

// PreviousID returns the previous node in the stripe, or 0 if this is the head.
func (n *Node) PreviousID() PageID {
	return PageID(binary.LittleEndian.Uint64(n.buf[nodePreviousOff:]))
}

func (n *Node) setPreviousID(id PageID) {
	binary.LittleEndian.PutUint64(n.buf[nodePreviousOff:], uint64(id))
}

// NextID returns the next node in the stripe, or 0 if this is the tail.
func (n *Node) NextID() PageID {
	return PageID(binary.LittleEndian.Uint64(n.buf[nodeNextOff:]))
}

func (n *Node) setNextID(id PageID) {
	binary.LittleEndian.PutUint64(n.buf[nodeNextOff:], uint64(id))
}

// getCount returns the number of page-ids currently stored.
func (n *Node) getCount() int {
	return int(binary.LittleEndian.Uint32(n.buf[nodeCountOff:]))
}

func (n *Node) setCount(c int) {
	binary.LittleEndian.PutUint32(n.buf[nodeCountOff:], uint32(c))
}

// GetCount is the exported form of getCount (spec §3: getCount).
func (n *Node) GetCount() int { return n.getCount() }

func (n *Node) entryAt(i int) PageID {
	off := nodeDataOff + i*nodeEntryLen
	return PageID(binary.LittleEndian.Uint64(n.buf[off:]))
}

func (n *Node) setEntryAt(i int, id PageID) {
	off := nodeDataOff + i*nodeEntryLen
	binary.LittleEndian.PutUint64(n.buf[off:], uint64(id))
}

// isEmpty reports whether the node currently holds no page-ids.
func (n *Node) isEmpty() bool { return n.getCount() == 0 }

// IsEmpty is the exported form of isEmpty (spec §3: isEmpty).
func (n *Node) IsEmpty() bool { return n.isEmpty() }

// addPage appends id to the node's payload. Returns the slot index it was
// written to, or -1 if the node is already at capacity.
func (n *Node) addPage(id PageID) int {
	c := n.getCount()
	if c >= NodeCapacity(n.pageSize) {
		return -1
	}
	n.setEntryAt(c, id)
	n.setCount(c + 1)
	return c
}

// removePage removes the first occurrence of id from the payload,
// compacting the remaining entries. Returns false if id was not present.
func (n *Node) removePage(id PageID) bool {
	c := n.getCount()
	for i := 0; i < c; i++ {
		if n.entryAt(i) == id {
			for j := i; j < c-1; j++ {
				n.setEntryAt(j, n.entryAt(j+1))
			}
			n.setCount(c - 1)
			return true
		}
	}
	return false
}

// takeAnyPage removes and returns the last entry in the payload, or 0 if
// the node is empty.
func (n *Node) takeAnyPage() PageID {
	c := n.getCount()
	if c == 0 {
		return InvalidPageID
	}
	id := n.entryAt(c - 1)
	n.setCount(c - 1)
	return id
}

// AllEntries returns all page-ids currently stored, in slot order.
func (n *Node) AllEntries() []PageID {
	c := n.getCount()
	ids := make([]PageID, c)
	for i := 0; i < c; i++ {
		ids[i] = n.entryAt(i)
	}
	return ids
}

// Bytes returns the underlying page buffer.
func (n *Node) Bytes() []byte { return n.buf }
