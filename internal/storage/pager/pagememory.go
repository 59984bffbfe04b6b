package pager

// ───────────────────────────────────────────────────────────────────────────
// Page memory — the abstraction the core consumes (spec §6)
// ───────────────────────────────────────────────────────────────────────────
//
// PagesList never owns pages; it holds page-ids (weak references) and
// borrows pages transiently under latch (spec §9 design note). PageMemory
// is the owner. *Pager (pager.go) is this module's concrete implementation,
// built for tests and standalone use; any other implementation satisfying
// this interface can be substituted.

// PageHandle is a transient, latchable view onto one page. Every
// getForWrite/getForRead may block; tryGetForWrite never blocks (spec §5).
type PageHandle interface {
	// ID returns the id the page-memory layer currently files this page
	// under (updated by Rotate). It can differ from the id embedded in the
	// page header, e.g. after a caller retypes a freshly allocated id; the
	// core detects a concurrent recycle by re-reading HeaderID(buf) after
	// latching, not through this method.
	ID() PageID

	// GetForRead acquires a blocking read latch and returns the page buffer.
	GetForRead() ([]byte, error)
	// GetForWrite acquires a blocking write latch and returns the page buffer.
	GetForWrite() ([]byte, error)
	// TryGetForWrite attempts a non-blocking write latch. ok is false if
	// the latch was already held.
	TryGetForWrite() (buf []byte, ok bool)

	// ReleaseRead releases a previously acquired read latch.
	ReleaseRead()
	// ReleaseWrite releases a previously acquired write latch. dirty
	// marks the page for eventual flush.
	ReleaseWrite(dirty bool)

	// Rotate rewrites this page's embedded id to newID and rekeys it
	// within the page-memory layer's lookup structures, implementing the
	// "recycle" mechanism (spec §3: "rotating a page id invalidates any
	// weak reference reading the old generation"). Must be called while
	// still holding the write latch acquired by GetForWrite/TryGetForWrite.
	Rotate(newID PageID)

	// Close unpins the handle. Must be called exactly once per Page() call.
	Close() error

	// FullPageWalRecordPolicy tells the page-memory layer whether the
	// next write release of this page must log a full-page WAL snapshot
	// (true) or can rely on the caller's own delta records (false). The
	// core passes false where it has just initialized a node or data page
	// and logs a structural delta for it, and true where it rewrites a
	// meta page. *Pager seeds freshly allocated frames with true. The
	// pages-list core never needs to read this back — it is advisory state
	// consumed by the page-memory layer itself.
	FullPageWalRecordPolicy(full bool)
}

// PageMemory allocates, retires, and hands out latchable handles to pages.
type PageMemory interface {
	// AllocatePage allocates a page id, preferring to pop one from
	// reuseBag (if non-nil and non-empty) over extending the store.
	AllocatePage(reuseBag ReuseBag) (PageID, error)
	// AllocatePageNoReuse always allocates fresh page space, bypassing
	// any reuse bag. Used where popping a bag entry would be unsafe —
	// notably when the reuse bucket itself needs a new node page
	// (spec §4.2: "we must not allocate a fresh node page here: allocation
	// would re-enter the reuse list and deadlock").
	AllocatePageNoReuse() (PageID, error)
	// Page returns a handle to the page identified by id. The handle is
	// pinned until Close is called.
	Page(id PageID) (PageHandle, error)
}

// ───────────────────────────────────────────────────────────────────────────
// Reuse bag (spec §9 design note: "singleton reuse bag")
// ───────────────────────────────────────────────────────────────────────────

// ReuseBag is a small mutable collection of empty page-ids the caller
// wants adopted into the reuse bucket (put's "bag" mode, spec §4.2) or
// handed to PageMemory.AllocatePage as an allocation hint.
type ReuseBag interface {
	// Poll removes and returns one id, or (0, false) if the bag is empty.
	Poll() (PageID, bool)
	// Empty reports whether the bag has been fully drained.
	Empty() bool
}

// SliceBag is a ReuseBag backed by a plain slice, draining from the end.
type SliceBag struct {
	ids []PageID
}

// NewSliceBag wraps ids as a drainable ReuseBag. The slice is taken by
// reference semantics are not required by callers — it is consumed in
// place.
func NewSliceBag(ids []PageID) *SliceBag {
	return &SliceBag{ids: ids}
}

func (b *SliceBag) Poll() (PageID, bool) {
	if len(b.ids) == 0 {
		return InvalidPageID, false
	}
	id := b.ids[len(b.ids)-1]
	b.ids = b.ids[:len(b.ids)-1]
	return id, true
}

func (b *SliceBag) Empty() bool { return len(b.ids) == 0 }

// SingletonBag is a one-shot bag holding at most one id — a tagged value,
// not a reusable collection, matching the design note on the
// remove-protocol's "deposit the recycled id as a singleton bag" step.
type SingletonBag struct {
	id   PageID
	used bool
}

// NewSingletonBag wraps a single page id as a one-shot ReuseBag.
func NewSingletonBag(id PageID) *SingletonBag {
	return &SingletonBag{id: id}
}

func (b *SingletonBag) Poll() (PageID, bool) {
	if b.used || b.id == InvalidPageID {
		return InvalidPageID, false
	}
	b.used = true
	return b.id, true
}

func (b *SingletonBag) Empty() bool { return b.used || b.id == InvalidPageID }
