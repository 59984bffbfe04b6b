package pager

// ───────────────────────────────────────────────────────────────────────────
// Metadata persistence (spec §4.6)
// ───────────────────────────────────────────────────────────────────────────
//
// Every meta-page write below sets FullPageWalRecordPolicy(true): we most
// likely rewrote the whole page (a packed entry list, a chain link, or a
// reset), so the page-memory layer logs one consolidated full-page image
// at release instead of this core trying to describe the change as a
// delta.

// SaveMetadata packs every bucket's current stripe tails into the
// meta-page chain rooted at pl.metaPageID, in ascending bucket order
// (spec §4.6). The pre-existing chain is reused page-for-page; any
// additional pages needed are allocated directly (never from a reuse
// bag — meta pages are not tracked by the free list themselves); any
// unused tail of the old chain is zeroed (count reset) but left linked
// nowhere, matching "surplus meta pages are zeroed... but retained"
// (their storage is not reclaimed by this component).
func (pl *PagesList) SaveMetadata() error {
	existing, err := pl.walkMetaChain(pl.metaPageID)
	if err != nil {
		return err
	}

	var entries []MetaEntry
	for b := 0; b < pl.buckets; b++ {
		view := pl.caps.GetStripes(b)
		for _, s := range view.Stripes {
			entries = append(entries, MetaEntry{Bucket: b, TailID: s.TailID()})
		}
	}

	var pageIDs []PageID
	idx := 0
	for {
		var pid PageID
		if len(pageIDs) < len(existing) {
			pid = existing[len(pageIDs)]
		} else {
			var aerr error
			pid, aerr = pl.pm.AllocatePageNoReuse()
			if aerr != nil {
				return aerr
			}
		}
		pageIDs = append(pageIDs, pid)

		if err := pl.writeMetaPage(pid, entries, &idx); err != nil {
			return err
		}
		if idx >= len(entries) {
			break
		}
	}

	for i, pid := range pageIDs {
		var next PageID
		if i+1 < len(pageIDs) {
			next = pageIDs[i+1]
		}
		if err := pl.linkMetaPage(pid, next); err != nil {
			return err
		}
	}

	for i := len(pageIDs); i < len(existing); i++ {
		if err := pl.resetMetaPage(existing[i]); err != nil {
			return err
		}
	}

	pl.metaPageID = pageIDs[0]
	return nil
}

func (pl *PagesList) writeMetaPage(pid PageID, entries []MetaEntry, idx *int) error {
	handle, err := pl.pm.Page(pid)
	if err != nil {
		return err
	}
	defer handle.Close()
	buf, err := handle.GetForWrite()
	if err != nil {
		return err
	}
	handle.FullPageWalRecordPolicy(true)
	m := InitNewMetaPage(buf, pid)
	for *idx < len(entries) {
		if !m.AddEntry(entries[*idx]) {
			break
		}
		*idx++
	}
	handle.ReleaseWrite(true)
	return nil
}

func (pl *PagesList) linkMetaPage(pid, next PageID) error {
	handle, err := pl.pm.Page(pid)
	if err != nil {
		return err
	}
	defer handle.Close()
	buf, err := handle.GetForWrite()
	if err != nil {
		return err
	}
	handle.FullPageWalRecordPolicy(true)
	WrapMeta(buf).SetNextMetaPageID(next)
	handle.ReleaseWrite(true)
	return nil
}

func (pl *PagesList) resetMetaPage(pid PageID) error {
	handle, err := pl.pm.Page(pid)
	if err != nil {
		return err
	}
	defer handle.Close()
	buf, err := handle.GetForWrite()
	if err != nil {
		return err
	}
	handle.FullPageWalRecordPolicy(true)
	m := WrapMeta(buf)
	m.Reset()
	m.SetNextMetaPageID(InvalidPageID)
	handle.ReleaseWrite(true)
	return nil
}

// walkMetaChain returns every page id in the meta-page chain starting at
// head, in chain order. A page whose nextMetaPageId points at itself is a
// fatal corruption signal (spec §4.6).
func (pl *PagesList) walkMetaChain(head PageID) ([]PageID, error) {
	var ids []PageID
	cur := head
	for cur != InvalidPageID {
		handle, err := pl.pm.Page(cur)
		if err != nil {
			return nil, err
		}
		buf, err := handle.GetForRead()
		if err != nil {
			handle.Close()
			return nil, err
		}
		next := WrapMeta(buf).NextMetaPageID()
		handle.ReleaseRead()
		handle.Close()

		ids = append(ids, cur)
		if next == cur {
			return nil, pl.corruptionError("SaveMetadata", "meta-page chain loop")
		}
		cur = next
	}
	return ids, nil
}

// Init restores (or creates) this core's stripe tables from the
// meta-page chain rooted at metaPageID (spec §4.6). When initNew is true
// a fresh empty head meta page is written and every bucket starts empty.
// Otherwise the chain is traversed, entries are grouped by bucket, and
// each bucket's Stripe[] is installed via CAS from its initial nil state.
func (pl *PagesList) Init(metaPageID PageID, initNew bool) error {
	pl.metaPageID = metaPageID

	if initNew {
		handle, err := pl.pm.Page(metaPageID)
		if err != nil {
			return err
		}
		defer handle.Close()
		buf, err := handle.GetForWrite()
		if err != nil {
			return err
		}
		handle.FullPageWalRecordPolicy(true)
		InitNewMetaPage(buf, metaPageID)
		handle.ReleaseWrite(true)
		return nil
	}

	byBucket := make(map[int][]PageID)
	cur := metaPageID
	for cur != InvalidPageID {
		handle, err := pl.pm.Page(cur)
		if err != nil {
			return err
		}
		buf, err := handle.GetForRead()
		if err != nil {
			handle.Close()
			return err
		}
		m := WrapMeta(buf)
		for _, e := range m.Entries() {
			byBucket[e.Bucket] = append(byBucket[e.Bucket], e.TailID)
		}
		next := m.NextMetaPageID()
		handle.ReleaseRead()
		handle.Close()

		if next == cur {
			return pl.corruptionError("Init", "meta-page chain loop")
		}
		cur = next
	}

	for b, tails := range byBucket {
		stripes := make([]*Stripe, len(tails))
		for i, t := range tails {
			stripes[i] = NewStripe(t)
		}
		view := pl.caps.GetStripes(b)
		pl.caps.CASStripes(b, view, stripes)
	}
	return nil
}
