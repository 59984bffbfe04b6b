package pager

// DataPageIOVersion is the IO-layout version this module stamps onto a
// page when it re-initializes a recycled slot as a fresh data page (spec
// §6's InitNewPage delta carries ioType/ioVersion; record-layout content
// itself is out of scope per spec §1 non-goals, so this module only
// needs one stable version tag to round-trip through WAL replay).
const DataPageIOVersion = 1

// ───────────────────────────────────────────────────────────────────────────
// Take protocol (spec §4.3)
// ───────────────────────────────────────────────────────────────────────────

// TakeEmptyPage returns an empty page-id from bucket's free list, or
// InvalidPageID if the bucket has none available (spec §4.3). An error
// from page memory is not returned; it also yields InvalidPageID.
//
// An entry taken from the tail node is returned as is, in either mode.
// initNewPage only matters once the tail node itself is drained empty and
// handed back as the result: when true that node page is retyped and
// re-initialized as a fresh DATA page in place, with an InitNewPage delta
// logged — the mode the engine uses when it wants a data page back. When
// false the node page is merely recycled (id rotated, Recycle delta
// logged) without rewriting its contents, matching spec §4.3's
// `initIoVersions?` optional parameter; this is the mode addStripe uses
// internally when draining this core's own reuse bucket, since addStripe
// immediately reinitializes the slot itself as a node page.
func (pl *PagesList) TakeEmptyPage(bucket int, initNewPage bool) PageID {
	for {
		view := pl.caps.GetStripes(bucket)
		if len(view.Stripes) == 0 {
			return InvalidPageID
		}
		stripe, err := pl.pickStripe(bucket)
		if err != nil {
			return InvalidPageID
		}

		lt, err := pl.latchTailWithBackoff(bucket, stripe)
		if err == errRetry {
			continue
		}
		if err != nil {
			return InvalidPageID
		}

		id, retry, ok := pl.takeFromTail(bucket, stripe, lt, initNewPage)
		if retry {
			continue
		}
		if !ok {
			return InvalidPageID
		}
		return id
	}
}

// takeFromTail implements spec §4.3 steps 3-7 under the tail's write
// latch (already acquired by the caller). Returns (id, retry, ok).
func (pl *PagesList) takeFromTail(bucket int, stripe *Stripe, lt *latchedTail, initNewPage bool) (PageID, bool, bool) {
	node := WrapNode(lt.buf)

	if node.NextID() != InvalidPageID {
		lt.handle.ReleaseWrite(false)
		lt.handle.Close()
		return InvalidPageID, true, false
	}

	if id := node.takeAnyPage(); id != InvalidPageID {
		pl.logRemovePage(lt.nodeID, id)
		lt.handle.ReleaseWrite(true)
		lt.handle.Close()
		return id, false, true
	}

	// Node is empty.
	prevID := node.PreviousID()
	if prevID == InvalidPageID {
		// Only node in the stripe; leave it to avoid meta-page
		// contention churn (spec §4.3 step 7 / §9 open question).
		lt.handle.ReleaseWrite(false)
		lt.handle.Close()
		return InvalidPageID, false, false
	}

	prevHandle, err := pl.pm.Page(prevID)
	if err != nil {
		lt.handle.ReleaseWrite(false)
		lt.handle.Close()
		return InvalidPageID, false, false
	}
	prevBuf, err := prevHandle.GetForWrite()
	if err != nil {
		prevHandle.Close()
		lt.handle.ReleaseWrite(false)
		lt.handle.Close()
		return InvalidPageID, false, false
	}

	prevNode := WrapNode(prevBuf)
	prevNode.setNextID(InvalidPageID)
	pl.logSetNext(prevID, InvalidPageID)
	pl.updateTail(bucket, lt.nodeID, prevID)
	prevHandle.ReleaseWrite(true)
	prevHandle.Close()

	// The drained node page itself becomes the returned page.
	if initNewPage {
		dataID := lt.nodeID.Retype(KindData)
		lt.handle.Rotate(dataID)
		InitDataPage(lt.buf, dataID)
		// A structural delta is logged right below; no full-page image needed.
		lt.handle.FullPageWalRecordPolicy(false)
		pl.logInitNewPage(dataID, uint8(PageTypeData), DataPageIOVersion, dataID)
		lt.handle.ReleaseWrite(true)
		lt.handle.Close()
		return dataID, false, true
	}

	rotatedID := lt.nodeID.Rotate()
	lt.handle.Rotate(rotatedID)
	pl.logRecycle(lt.nodeID, rotatedID)
	lt.handle.ReleaseWrite(true)
	lt.handle.Close()
	return rotatedID, false, true
}
