package pager

// ───────────────────────────────────────────────────────────────────────────
// Merge operations (spec §4.5)
// ───────────────────────────────────────────────────────────────────────────
//
// Strict lock order for any pair of node pages: next before current
// before previous. mergeNoNext is safe to run while already holding the
// node's own latch because there is no "next" to acquire first. merge
// acquires next, then current, per that same order.

// mergeNoNext retires an empty tail node with no successor (spec §4.5).
// Caller holds nodeHandle's write latch already (it is nodeID's handle,
// backing nodeBuf) and does not release it — RemoveDataPage does that.
func (pl *PagesList) mergeNoNext(bucket int, nodeID, prevID PageID, nodeHandle PageHandle, nodeBuf []byte) (PageID, error) {
	if pl.caps.IsReuseBucket(bucket) {
		return InvalidPageID, nil
	}

	if prevID != InvalidPageID {
		prevHandle, err := pl.pm.Page(prevID)
		if err != nil {
			return InvalidPageID, err
		}
		prevBuf, err := prevHandle.GetForWrite()
		if err != nil {
			prevHandle.Close()
			return InvalidPageID, err
		}
		WrapNode(prevBuf).setNextID(InvalidPageID)
		pl.logSetNext(prevID, InvalidPageID)
		pl.updateTail(bucket, nodeID, prevID)
		prevHandle.ReleaseWrite(true)
		prevHandle.Close()
	} else {
		pl.updateTail(bucket, nodeID, InvalidPageID)
	}

	recycledID := nodeID.Rotate()
	nodeHandle.Rotate(recycledID)
	pl.logRecycle(nodeID, recycledID)
	return recycledID, nil
}

// merge retires an empty node that has a successor, fair-merging its
// neighbors (spec §4.5). currentID is empty; nextIDHint is its last known
// successor (re-validated below, since it may have changed).
func (pl *PagesList) merge(bucket int, currentID, nextIDHint PageID) (PageID, error) {
	nextID := nextIDHint
	for {
		nextHandle, err := pl.pm.Page(nextID)
		if err != nil {
			return InvalidPageID, err
		}
		nextBuf, err := nextHandle.GetForWrite()
		if err != nil {
			nextHandle.Close()
			return InvalidPageID, err
		}

		curHandle, err := pl.pm.Page(currentID)
		if err != nil {
			nextHandle.ReleaseWrite(false)
			nextHandle.Close()
			return InvalidPageID, err
		}
		curBuf, err := curHandle.GetForWrite()
		if err != nil {
			curHandle.Close()
			nextHandle.ReleaseWrite(false)
			nextHandle.Close()
			return InvalidPageID, err
		}

		if HeaderID(curBuf) != currentID {
			// current was recycled already; merge is moot.
			curHandle.ReleaseWrite(false)
			curHandle.Close()
			nextHandle.ReleaseWrite(false)
			nextHandle.Close()
			return InvalidPageID, nil
		}

		curNode := WrapNode(curBuf)
		if !curNode.isEmpty() || curNode.NextID() != nextID {
			refreshed := curNode.NextID()
			curHandle.ReleaseWrite(false)
			curHandle.Close()
			nextHandle.ReleaseWrite(false)
			nextHandle.Close()
			if refreshed == InvalidPageID || !curNode.isEmpty() {
				return InvalidPageID, nil
			}
			nextID = refreshed
			continue
		}

		prevID := curNode.PreviousID()
		nextNode := WrapNode(nextBuf)
		if prevID == InvalidPageID {
			nextNode.setPreviousID(InvalidPageID)
			pl.logSetPrevious(nextID, InvalidPageID)
		} else {
			prevHandle, err := pl.pm.Page(prevID)
			if err != nil {
				curHandle.ReleaseWrite(false)
				curHandle.Close()
				nextHandle.ReleaseWrite(false)
				nextHandle.Close()
				return InvalidPageID, err
			}
			prevBuf, err := prevHandle.GetForWrite()
			if err != nil {
				prevHandle.Close()
				curHandle.ReleaseWrite(false)
				curHandle.Close()
				nextHandle.ReleaseWrite(false)
				nextHandle.Close()
				return InvalidPageID, err
			}
			WrapNode(prevBuf).setNextID(nextID)
			pl.logSetNext(prevID, nextID)
			nextNode.setPreviousID(prevID)
			pl.logSetPrevious(nextID, prevID)
			prevHandle.ReleaseWrite(true)
			prevHandle.Close()
		}

		recycledID := currentID.Rotate()
		curHandle.Rotate(recycledID)
		pl.logRecycle(currentID, recycledID)

		curHandle.ReleaseWrite(true)
		curHandle.Close()
		nextHandle.ReleaseWrite(true)
		nextHandle.Close()
		return recycledID, nil
	}
}
