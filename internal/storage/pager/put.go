package pager

// ───────────────────────────────────────────────────────────────────────────
// Put protocol (spec §4.2)
// ───────────────────────────────────────────────────────────────────────────

// PutDataPage registers a single non-empty data page (dataPageID, with
// buffer dataPageBuf already latched for write by the caller) into
// bucket's free list. This is put's "data page" mode (spec §4.2 mode 2).
func (pl *PagesList) PutDataPage(bucket int, dataPageID PageID, dataPageBuf []byte) error {
	for {
		stripe, err := pl.pickStripe(bucket)
		if err != nil {
			return err
		}
		lt, err := pl.latchTailWithBackoff(bucket, stripe)
		if err == errRetry {
			continue
		}
		if err != nil {
			return err
		}

		done, splitted, err := pl.putDataPageHandler(bucket, stripe, lt, dataPageID, dataPageBuf)
		lt.handle.ReleaseWrite(done)
		lt.handle.Close()
		if err != nil {
			return err
		}
		if splitted {
			continue
		}
		return nil
	}
}

// PutReuseBag drains bag into bucket's free list, consuming pages that are
// themselves already empty. This is put's "bag" mode (spec §4.2 mode 1).
func (pl *PagesList) PutReuseBag(bucket int, bag ReuseBag) error {
	for !bag.Empty() {
		stripe, err := pl.pickStripe(bucket)
		if err != nil {
			return err
		}
		lt, err := pl.latchTailWithBackoff(bucket, stripe)
		if err == errRetry {
			continue
		}
		if err != nil {
			return err
		}

		splitted, err := pl.putReuseBagHandler(bucket, stripe, lt, bag)
		lt.handle.ReleaseWrite(true)
		lt.handle.Close()
		if err != nil {
			return err
		}
		if splitted {
			continue
		}
	}
	return nil
}

// putDataPageHandler implements spec §4.2's "putDataPage handler" under
// the tail's write latch. Returns (committed, splitted, err); splitted
// means "not really at the tail, caller must retry from stripe selection".
func (pl *PagesList) putDataPageHandler(bucket int, stripe *Stripe, lt *latchedTail, dataPageID PageID, dataPageBuf []byte) (bool, bool, error) {
	node := WrapNode(lt.buf)
	if node.NextID() != InvalidPageID {
		return false, true, nil
	}

	if slot := node.addPage(dataPageID); slot >= 0 {
		pl.logAddPage(lt.nodeID, dataPageID)
		SetDataPageFreeListID(dataPageBuf, lt.nodeID)
		pl.logSetFreeListPage(dataPageID, lt.nodeID)
		return true, false, nil
	}

	// Node payload is full: split.
	if pl.caps.IsReuseBucket(bucket) {
		return pl.splitReuseBucket(bucket, stripe, lt, dataPageID, dataPageBuf)
	}
	return pl.splitNonReuseBucket(bucket, stripe, lt, dataPageID, dataPageBuf)
}

// splitReuseBucket handles spec §4.2's reuse-bucket split sub-case: the
// incoming data page must itself be empty, so it is retyped into the new
// node in place — no fresh allocation (which would re-enter the reuse
// list and deadlock).
func (pl *PagesList) splitReuseBucket(bucket int, stripe *Stripe, lt *latchedTail, dataPageID PageID, dataPageBuf []byte) (bool, bool, error) {
	newID := dataPageID
	if newID.IsData() {
		newID = newID.Retype(KindIndex)
	}

	node := WrapNode(lt.buf)
	InitNewPage(dataPageBuf, newID, lt.nodeID)
	pl.logPagesListInitNewPage(newID, lt.nodeID, InvalidPageID)

	node.setNextID(newID)
	pl.logSetNext(lt.nodeID, newID)

	pl.updateTail(bucket, lt.nodeID, newID)
	return true, false, nil
}

// splitNonReuseBucket handles spec §4.2's non-reuse split sub-case: a
// fresh index page is allocated to become the new node, and the data
// page being inserted is added into it.
func (pl *PagesList) splitNonReuseBucket(bucket int, stripe *Stripe, lt *latchedTail, dataPageID PageID, dataPageBuf []byte) (bool, bool, error) {
	newID, err := pl.pm.AllocatePageNoReuse()
	if err != nil {
		return false, false, err
	}
	if newID.IsData() {
		newID = newID.Retype(KindIndex)
	}

	newHandle, err := pl.pm.Page(newID)
	if err != nil {
		return false, false, err
	}
	defer newHandle.Close()
	newBuf, err := newHandle.GetForWrite()
	if err != nil {
		return false, false, err
	}

	// A structural delta is logged right below; no full-page image needed.
	newHandle.FullPageWalRecordPolicy(false)
	newNode := InitNewPage(newBuf, newID, lt.nodeID)
	pl.logPagesListInitNewPage(newID, lt.nodeID, InvalidPageID)

	newNode.addPage(dataPageID)
	pl.logAddPage(newID, dataPageID)
	SetDataPageFreeListID(dataPageBuf, newID)
	pl.logSetFreeListPage(dataPageID, newID)
	newHandle.ReleaseWrite(true)

	node := WrapNode(lt.buf)
	node.setNextID(newID)
	pl.logSetNext(lt.nodeID, newID)

	pl.updateTail(bucket, lt.nodeID, newID)
	return true, false, nil
}

// putReuseBagHandler implements spec §4.2's "putReuseBag handler": drain
// bag into the current node, promoting ids into fresh nodes in place of
// allocation whenever the current node fills.
func (pl *PagesList) putReuseBagHandler(bucket int, stripe *Stripe, lt *latchedTail, bag ReuseBag) (bool, error) {
	node := WrapNode(lt.buf)
	if node.NextID() != InvalidPageID {
		return true, nil
	}

	curID := lt.nodeID
	cur := node

	// Freshly created nodes are unreachable from any other thread until
	// updateTail publishes the final tail below (the only path to them is
	// the nextId chain we are building right now), so their write latches
	// can be held concurrently and released together at the end without
	// violating the next→current→previous lock order.
	var opened []PageHandle
	defer func() {
		for _, h := range opened {
			h.ReleaseWrite(true)
			h.Close()
		}
	}()

	for {
		id, ok := bag.Poll()
		if !ok {
			break
		}
		if slot := cur.addPage(id); slot >= 0 {
			// Open question (spec §9): the source always logs this
			// against the original pageId, not the current node, when a
			// split occurs mid-drain. Preserved here deliberately — see
			// DESIGN.md.
			pl.logAddPage(lt.nodeID, id)
			continue
		}

		// Current node is full: promote id itself into a new node.
		newID := id
		if newID.IsData() {
			newID = newID.Retype(KindIndex)
		}
		newHandle, err := pl.pm.Page(newID)
		if err != nil {
			return false, err
		}
		newBuf, err := newHandle.GetForWrite()
		if err != nil {
			newHandle.Close()
			return false, err
		}
		// A structural delta is logged right below; no full-page image needed.
		newHandle.FullPageWalRecordPolicy(false)
		newNode := InitNewPage(newBuf, newID, curID)
		pl.logPagesListInitNewPage(newID, curID, InvalidPageID)
		opened = append(opened, newHandle)

		cur.setNextID(newID)
		pl.logSetNext(curID, newID)

		curID = newID
		cur = newNode
	}

	pl.updateTail(bucket, lt.nodeID, curID)
	return false, nil
}
