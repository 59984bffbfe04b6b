package pager

// ───────────────────────────────────────────────────────────────────────────
// Remove protocol (spec §4.4)
// ───────────────────────────────────────────────────────────────────────────

// RemoveDataPage removes dataPageID (backed by dataPageBuf, already
// latched for write by the caller) from bucket's free list. Returns false if the
// entry was already gone (a concurrent recycle raced ahead of us — spec
// §7: "not an error").
func (pl *PagesList) RemoveDataPage(bucket int, dataPageID PageID, dataPageBuf []byte) (bool, error) {
	nodeID := DataPageFreeListID(dataPageBuf)
	if nodeID == InvalidPageID {
		return false, pl.corruptionError("RemoveDataPage", "data page has no freeListPageId")
	}

	nodeHandle, err := pl.pm.Page(nodeID)
	if err != nil {
		return false, err
	}
	nodeBuf, err := nodeHandle.GetForWrite()
	if err != nil {
		nodeHandle.Close()
		return false, err
	}

	if HeaderID(nodeBuf) != nodeID {
		// Concurrent recycle: the entry is already gone.
		nodeHandle.ReleaseWrite(false)
		nodeHandle.Close()
		return false, nil
	}

	node := WrapNode(nodeBuf)
	if !node.removePage(dataPageID) {
		nodeHandle.ReleaseWrite(false)
		nodeHandle.Close()
		return false, nil
	}
	pl.logRemovePage(nodeID, dataPageID)
	SetDataPageFreeListID(dataPageBuf, InvalidPageID)
	pl.logSetFreeListPage(dataPageID, InvalidPageID)

	if !node.isEmpty() {
		nodeHandle.ReleaseWrite(true)
		nodeHandle.Close()
		return true, nil
	}

	nextID := node.NextID()
	prevID := node.PreviousID()

	var recycledID PageID
	if nextID == InvalidPageID {
		// Still holding the node latch: safe, since the lock order
		// next→current→previous has no "next" to take first here.
		recycledID, err = pl.mergeNoNext(bucket, nodeID, prevID, nodeHandle, nodeBuf)
		nodeHandle.ReleaseWrite(true)
		nodeHandle.Close()
	} else {
		nodeHandle.ReleaseWrite(true)
		nodeHandle.Close()
		recycledID, err = pl.merge(bucket, nodeID, nextID)
	}
	if err != nil {
		return true, err
	}

	if recycledID != InvalidPageID {
		if putErr := pl.PutReuseBag(pl.reuseBucketOrSelf(bucket), NewSingletonBag(recycledID)); putErr != nil {
			return true, putErr
		}
	}
	return true, nil
}

// reuseBucketOrSelf returns this core's configured reuse bucket, falling
// back to bucket itself if none is configured (so a caller running
// without a distinct reuse bucket still gets recycled pages redeposited
// somewhere observable rather than leaked).
func (pl *PagesList) reuseBucketOrSelf(bucket int) int {
	if pl.reuseBucket >= 0 {
		return pl.reuseBucket
	}
	return bucket
}
