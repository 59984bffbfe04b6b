package pager

import "math/rand/v2"

// ───────────────────────────────────────────────────────────────────────────
// PagesList core (spec §1, §2, §4.1)
// ───────────────────────────────────────────────────────────────────────────
//
// PagesList is the striped, doubly-linked, on-disk page list. It never
// owns pages — it holds page-ids and borrows pages transiently under
// latch (spec §9 design note: "the core holds only page-ids... and
// borrows pages transiently"). Page ownership, latching, and durability
// all live in the injected PageMemory and WAL.

// Config bundles a PagesList's constructor-time parameters (spec §6:
// "surface as explicit constructor parameters with documented defaults").
type Config struct {
	// Name labels this core for diagnostics only (log lines, corruption
	// errors) — never consulted by any operation's logic. Useful once a
	// process runs more than one PagesList (one per cache/bucket group)
	// and needs to tell their log output apart.
	Name string
	// Buckets is the number of fill-fraction buckets the caller maintains.
	Buckets int
	// MetaPageID is the head of the meta-page chain (spec §3, §4.6).
	MetaPageID PageID
	// TryLockAttempts caps non-blocking latch attempts before stripe
	// growth or a blocking fallback (default DefaultTryLockAttempts).
	TryLockAttempts int
	// MaxStripesPerBucket caps stripes per bucket (default
	// DefaultMaxStripesPerBucket()).
	MaxStripesPerBucket int
	// Caps supplies the bucket accessors (spec §9: capability injection
	// in place of subclassing).
	Caps BucketCapabilities
}

// PagesList is the core described by the spec: put / takeEmptyPage /
// removeDataPage / saveMetadata / init, built atop an abstract PageMemory,
// a WAL sink, and the supplied BucketCapabilities.
type PagesList struct {
	name    string
	pm      PageMemory
	wal     *WAL
	cacheID uint32

	caps                BucketCapabilities
	buckets             int
	metaPageID          PageID
	tryLockAttempts     int
	maxStripesPerBucket int

	reuseBucket int // -1 if none configured
}

// NewPagesList constructs a PagesList over pm (page memory), wal (may be
// nil — spec §6: "a record is emitted only when wal != null"), and cfg.
func NewPagesList(pm PageMemory, wal *WAL, cacheID uint32, cfg Config) *PagesList {
	tla := cfg.TryLockAttempts
	if tla <= 0 {
		tla = DefaultTryLockAttempts
	}
	msb := cfg.MaxStripesPerBucket
	if msb <= 0 {
		msb = DefaultMaxStripesPerBucket()
	}

	pl := &PagesList{
		name:                cfg.Name,
		pm:                  pm,
		wal:                 wal,
		cacheID:             cacheID,
		caps:                cfg.Caps,
		buckets:             cfg.Buckets,
		metaPageID:          cfg.MetaPageID,
		tryLockAttempts:     tla,
		maxStripesPerBucket: msb,
		reuseBucket:         -1,
	}
	if cfg.Caps.IsReuseBucket != nil {
		for b := 0; b < cfg.Buckets; b++ {
			if cfg.Caps.IsReuseBucket(b) {
				pl.reuseBucket = b
				break
			}
		}
	}
	return pl
}

// ───────────────────────────────────────────────────────────────────────────
// WAL logging helpers
// ───────────────────────────────────────────────────────────────────────────

func (pl *PagesList) logInitNewPage(pageID PageID, ioType, ioVersion uint8, newPageID PageID) {
	if pl.wal == nil {
		return
	}
	pl.wal.Append(&DeltaRecord{
		Type:      DeltaInitNewPage,
		CacheID:   pl.cacheID,
		PageID:    pageID,
		IOType:    ioType,
		IOVersion: ioVersion,
		NewPageID: newPageID,
	})
}

func (pl *PagesList) logPagesListInitNewPage(pageID, previousID, addDataPageID PageID) {
	if pl.wal == nil {
		return
	}
	pl.wal.Append(&DeltaRecord{
		Type:          DeltaPagesListInitNewPage,
		CacheID:       pl.cacheID,
		PageID:        pageID,
		PreviousID:    previousID,
		AddDataPageID: addDataPageID,
	})
}

func (pl *PagesList) logAddPage(nodeID, addedID PageID) {
	if pl.wal == nil {
		return
	}
	pl.wal.Append(&DeltaRecord{Type: DeltaPagesListAddPage, CacheID: pl.cacheID, NodePageID: nodeID, AddedID: addedID})
}

func (pl *PagesList) logRemovePage(nodeID, removedID PageID) {
	if pl.wal == nil {
		return
	}
	pl.wal.Append(&DeltaRecord{Type: DeltaPagesListRemovePage, CacheID: pl.cacheID, NodePageID: nodeID, RemovedID: removedID})
}

func (pl *PagesList) logSetNext(pageID, nextID PageID) {
	if pl.wal == nil {
		return
	}
	pl.wal.Append(&DeltaRecord{Type: DeltaPagesListSetNext, CacheID: pl.cacheID, PageID: pageID, NextID: nextID})
}

func (pl *PagesList) logSetPrevious(pageID, prevID PageID) {
	if pl.wal == nil {
		return
	}
	pl.wal.Append(&DeltaRecord{Type: DeltaPagesListSetPrevious, CacheID: pl.cacheID, PageID: pageID, PrevID: prevID})
}

func (pl *PagesList) logSetFreeListPage(dataPageID, freeListPageID PageID) {
	if pl.wal == nil {
		return
	}
	pl.wal.Append(&DeltaRecord{Type: DeltaDataPageSetFreeListPage, CacheID: pl.cacheID, DataPageID: dataPageID, FreeListPageID: freeListPageID})
}

func (pl *PagesList) logRecycle(pageID, rotatedID PageID) {
	if pl.wal == nil {
		return
	}
	pl.wal.Append(&DeltaRecord{Type: DeltaRecycle, CacheID: pl.cacheID, PageID: pageID, RotatedPageID: rotatedID})
}

// ───────────────────────────────────────────────────────────────────────────
// Stripe allocation and tail bookkeeping (spec §4.1)
// ───────────────────────────────────────────────────────────────────────────

// allocateNodePage obtains a page id to initialize as a node page. When
// allowReuse is true it first tries to drain an empty page from this
// core's own reuse bucket (open question resolved: the "reuse list" in
// addStripe's parameter refers to this core's configured reuse bucket,
// not a caller-supplied bag — see takeEmptyPage, spec §4.3), falling back
// to direct allocation. When allowReuse is false (spec §4.2's anti-
// deadlock rule for the reuse bucket itself needing a new node page) it
// always allocates directly.
func (pl *PagesList) allocateNodePage(allowReuse bool) (PageID, error) {
	if allowReuse && pl.reuseBucket >= 0 {
		if id := pl.TakeEmptyPage(pl.reuseBucket, false); id != InvalidPageID {
			return id, nil
		}
	}
	return pl.pm.AllocatePageNoReuse()
}

// addStripe allocates and initializes a new empty node page and CAS-
// appends it to bucket's stripe array (spec §4.1).
func (pl *PagesList) addStripe(bucket int, allowReuse bool) (*Stripe, error) {
	id, err := pl.allocateNodePage(allowReuse)
	if err != nil {
		return nil, err
	}
	// A page drained from the reuse bucket already carries KindIndex — it
	// was a node page before recycling, and rotation never changes that.
	// Only the AllocatePageNoReuse fallback ever hands back a fresh
	// KindData id that needs retyping before it can be initialized as a
	// node page here.
	if id.IsData() {
		id = id.Retype(KindIndex)
	}

	handle, err := pl.pm.Page(id)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	buf, err := handle.GetForWrite()
	if err != nil {
		return nil, err
	}
	// A structural delta is logged right below, which already fully
	// describes this page's initial content; no full-page image needed.
	handle.FullPageWalRecordPolicy(false)
	InitNewPage(buf, id, InvalidPageID)
	pl.logPagesListInitNewPage(id, InvalidPageID, InvalidPageID)
	handle.ReleaseWrite(true)

	stripe := NewStripe(id)
	for {
		view := pl.caps.GetStripes(bucket)
		next := make([]*Stripe, 0, len(view.Stripes)+1)
		next = append(next, view.Stripes...)
		next = append(next, stripe)
		if pl.caps.CASStripes(bucket, view, next) {
			break
		}
	}
	return stripe, nil
}

// corruptionError builds a CorruptionError tagged with this core's
// diagnostic name, for call sites inside PagesList methods.
func (pl *PagesList) corruptionError(op, detail string) *CorruptionError {
	return &CorruptionError{Name: pl.name, Op: op, Detail: detail}
}

// DebugStoredPageCount sums the live entry count across every stripe tail
// in bucket, read-latching one tail at a time — a direct analogue of the
// source's storedPagesCount, which the source itself marks "for tests
// only, does not provide any correctness guarantees for concurrent
// access." The tails are never latched together and the stripe view is
// not re-read, so the sum can mix states from before and after a
// concurrent put/take, or miss a stripe added by a racing addStripe; never
// call this to drive actual control flow.
func (pl *PagesList) DebugStoredPageCount(bucket int) (int, error) {
	view := pl.caps.GetStripes(bucket)
	total := 0
	for _, s := range view.Stripes {
		handle, err := pl.pm.Page(s.TailID())
		if err != nil {
			return 0, err
		}
		buf, err := handle.GetForRead()
		if err != nil {
			handle.Close()
			return 0, err
		}
		total += WrapNode(buf).GetCount()
		handle.ReleaseRead()
		handle.Close()
	}
	return total, nil
}

// updateTail advances or removes a stripe's tail entry (spec §4.1).
// Caller must hold the write latch on the page identified by oldTailID
// (or, for removal, must be certain no other updateTail for this bucket
// is racing on the same stripe identity).
func (pl *PagesList) updateTail(bucket int, oldTailID, newTailID PageID) {
	if newTailID == InvalidPageID {
		for {
			view := pl.caps.GetStripes(bucket)
			idx := -1
			for i, s := range view.Stripes {
				if s.TailID() == oldTailID {
					idx = i
					break
				}
			}
			if idx == -1 {
				return
			}
			var next []*Stripe
			if len(view.Stripes) > 1 {
				next = make([]*Stripe, 0, len(view.Stripes)-1)
				next = append(next, view.Stripes[:idx]...)
				next = append(next, view.Stripes[idx+1:]...)
			}
			if pl.caps.CASStripes(bucket, view, next) {
				return
			}
		}
	}

	view := pl.caps.GetStripes(bucket)
	for _, s := range view.Stripes {
		if s.TailID() == oldTailID {
			s.setTailID(newTailID)
			return
		}
	}
}

// pickStripe returns a stripe to operate on, creating one if the bucket
// is currently empty (spec §4.2 step 1 / §4.3 step 1).
func (pl *PagesList) pickStripe(bucket int) (*Stripe, error) {
	view := pl.caps.GetStripes(bucket)
	if len(view.Stripes) == 0 {
		return pl.addStripe(bucket, true)
	}
	idx := rand.IntN(len(view.Stripes))
	return view.Stripes[idx], nil
}

// ───────────────────────────────────────────────────────────────────────────
// Latch back-off (spec §4.2 step 2, §4.3 step 2)
// ───────────────────────────────────────────────────────────────────────────

// latchedTail is the result of a successful back-off latch acquisition:
// the handle and buffer for a stripe's tail page, re-validated against
// concurrent recycle.
type latchedTail struct {
	handle PageHandle
	buf    []byte
	nodeID PageID
}

// latchTailWithBackoff implements the shared back-off loop used by both
// put and take (spec §4.2/§4.3 step 2): try a non-blocking write latch;
// on repeated failure, grow the bucket's stripe count (up to the cap) and
// signal the caller to restart stripe selection; once the cap is reached,
// fall back to a blocking acquisition. Returns errRetry if the caller
// should re-run pickStripe and call this again; errRetry also propagates
// after a successful addStripe, per spec ("retry from step 1").
func (pl *PagesList) latchTailWithBackoff(bucket int, stripe *Stripe) (*latchedTail, error) {
	attempts := 0
	for {
		tailID := stripe.TailID()
		handle, err := pl.pm.Page(tailID)
		if err != nil {
			return nil, err
		}

		buf, ok := handle.TryGetForWrite()
		if ok {
			if HeaderID(buf) != tailID {
				handle.ReleaseWrite(false)
				handle.Close()
				return nil, errRetry
			}
			return &latchedTail{handle: handle, buf: buf, nodeID: tailID}, nil
		}
		handle.Close()

		attempts++
		if attempts < pl.tryLockAttempts {
			continue
		}

		view := pl.caps.GetStripes(bucket)
		if len(view.Stripes) < pl.maxStripesPerBucket {
			if _, err := pl.addStripe(bucket, false); err != nil {
				return nil, err
			}
			return nil, errRetry
		}

		// Fall back to a blocking acquisition on the (possibly stale,
		// re-fetched) current tail.
		tailID = stripe.TailID()
		handle, err = pl.pm.Page(tailID)
		if err != nil {
			return nil, err
		}
		buf, err = handle.GetForWrite()
		if err != nil {
			handle.Close()
			return nil, err
		}
		if HeaderID(buf) != tailID {
			handle.ReleaseWrite(false)
			handle.Close()
			return nil, errRetry
		}
		return &latchedTail{handle: handle, buf: buf, nodeID: tailID}, nil
	}
}
