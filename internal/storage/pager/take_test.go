package pager

import "testing"

func TestTakeEmptyPage_EmptyBucketReturnsInvalid(t *testing.T) {
	pl, _ := newTestList(1, -1)
	if id := pl.TakeEmptyPage(0, false); id != InvalidPageID {
		t.Fatalf("TakeEmptyPage on an empty bucket = %s, want invalid", id)
	}
}

func TestTakeEmptyPage_DrainsAnEntryFromTheTailNode(t *testing.T) {
	pl, pm := newTestList(1, -1)
	p1, _ := putFreshDataPage(t, pl, pm, 0)
	p2, _ := putFreshDataPage(t, pl, pm, 0)

	got := pl.TakeEmptyPage(0, false)
	if got != p1 && got != p2 {
		t.Fatalf("TakeEmptyPage = %s, want one of the two put pages (%s, %s)", got, p1, p2)
	}

	view := pl.caps.GetStripes(0)
	if len(view.Stripes) != 1 {
		t.Fatalf("stripe count after take = %d, want 1", len(view.Stripes))
	}
	n := readNode(t, pm, view.Stripes[0].TailID())
	if n.GetCount() != 1 {
		t.Fatalf("node count after one take = %d, want 1", n.GetCount())
	}
}

// TestTakeEmptyPage_SoleEmptyNodeIsLeftInPlace covers the "leave it to
// avoid meta-page contention churn" branch: a stripe with exactly one
// node, once drained of every entry, stays a live empty node rather than
// being torn down — because it has no previous node to fall back to as
// the stripe's tail.
func TestTakeEmptyPage_SoleEmptyNodeIsLeftInPlace(t *testing.T) {
	pl, pm := newTestList(1, -1)
	putFreshDataPage(t, pl, pm, 0)

	first := pl.TakeEmptyPage(0, false)
	if first == InvalidPageID {
		t.Fatal("first TakeEmptyPage should drain the one entry")
	}

	second := pl.TakeEmptyPage(0, false)
	if second != InvalidPageID {
		t.Fatalf("TakeEmptyPage on a sole empty node = %s, want invalid", second)
	}

	view := pl.caps.GetStripes(0)
	if len(view.Stripes) != 1 {
		t.Fatalf("stripe count after draining the sole node = %d, want 1 (left in place)", len(view.Stripes))
	}
}

// TestTakeEmptyPage_DrainedTailNodeBecomesTheReturnedPageRotateMode
// exercises the rotate-only mode (initNewPage=false): once a multi-node
// stripe's tail is drained empty, the tail itself is recycled (rotated,
// not rewritten) and handed back as the result, and the stripe's tail
// retreats to the previous node. Rotation bumps the generation but never
// the role: the slot was a list node and stays tagged INDEX, since no
// content was rewritten — a caller wanting a DATA page back must ask for
// initNewPage instead, or retype it explicitly once it knows what it's
// about to write there.
func TestTakeEmptyPage_DrainedTailNodeBecomesTheReturnedPageRotateMode(t *testing.T) {
	pl, pm := newTestList(2, 1)
	putFreshDataPage(t, pl, pm, 0)
	putFreshDataPage(t, pl, pm, 0)
	putFreshDataPage(t, pl, pm, 0) // forces a split: N1[_, _] -> N2[_]

	view := pl.caps.GetStripes(0)
	n2ID := view.Stripes[0].TailID()
	n2 := readNode(t, pm, n2ID)
	n1ID := n2.PreviousID()

	first := pl.TakeEmptyPage(0, false) // drains n2's one entry
	if first == InvalidPageID {
		t.Fatal("first take should drain n2's single entry")
	}

	second := pl.TakeEmptyPage(0, false) // n2 is now empty, gets recycled
	if second == InvalidPageID {
		t.Fatal("second take should recycle the now-empty n2")
	}
	if second.Slot() != n2ID.Slot() {
		t.Errorf("recycled page slot = %d, want n2's slot %d", second.Slot(), n2ID.Slot())
	}
	if !second.IsIndex() {
		t.Errorf("recycled page kind = %v, want index (rotation preserves role)", second.Kind())
	}
	if second.Generation() <= n2ID.Generation() {
		t.Errorf("recycled page generation = %d, want > %d", second.Generation(), n2ID.Generation())
	}

	viewAfter := pl.caps.GetStripes(0)
	if len(viewAfter.Stripes) != 1 || viewAfter.Stripes[0].TailID() != n1ID {
		t.Errorf("stripe tail after draining n2 should retreat to n1 (%s), got stripes=%v", n1ID, viewAfter.Stripes)
	}
	n1 := readNode(t, pm, n1ID)
	if n1.NextID() != InvalidPageID {
		t.Errorf("n1.nextId after n2 was drained = %s, want invalid", n1.NextID())
	}
}

// TestTakeEmptyPage_InitNewPageModeReinitializesInPlace exercises the
// initNewPage=true branch: the drained tail node is retyped (not rotated)
// into a ready-to-write data page with a fresh InitNewPage delta, rather
// than merely recycled.
func TestTakeEmptyPage_InitNewPageModeReinitializesInPlace(t *testing.T) {
	pl, pm := newTestList(1, -1)
	putFreshDataPage(t, pl, pm, 0)

	first := pl.TakeEmptyPage(0, true)
	if first == InvalidPageID {
		t.Fatal("first take should drain the one entry")
	}

	// The sole node is now empty with no previous: TakeEmptyPage leaves it
	// in place (see TestTakeEmptyPage_SoleEmptyNodeIsLeftInPlace), so a
	// second call still returns invalid even in initNewPage mode.
	second := pl.TakeEmptyPage(0, true)
	if second != InvalidPageID {
		t.Fatalf("TakeEmptyPage on a sole empty node = %s, want invalid", second)
	}

	// A two-node stripe: once the tail is drained empty, initNewPage mode
	// hands the tail's own slot back as a fresh DATA page.
	pl2, pm2 := newTestList(2, 1)
	putFreshDataPage(t, pl2, pm2, 0)
	putFreshDataPage(t, pl2, pm2, 0)
	putFreshDataPage(t, pl2, pm2, 0) // forces a split: N1[_, _] -> N2[_]

	n2ID := pl2.caps.GetStripes(0).Stripes[0].TailID()
	n1ID := readNode(t, pm2, n2ID).PreviousID()

	if id := pl2.TakeEmptyPage(0, true); id == InvalidPageID {
		t.Fatal("first take should drain n2's single entry")
	}
	dataID := pl2.TakeEmptyPage(0, true)
	if dataID == InvalidPageID {
		t.Fatal("second take should hand back the now-empty n2")
	}
	if dataID.Slot() != n2ID.Slot() {
		t.Errorf("returned page slot = %d, want n2's slot %d", dataID.Slot(), n2ID.Slot())
	}
	if !dataID.IsData() {
		t.Errorf("returned page kind = %v, want data", dataID.Kind())
	}
	if dataID.Generation() != n2ID.Generation() {
		t.Errorf("returned page generation = %d, want %d (retyped, not rotated)", dataID.Generation(), n2ID.Generation())
	}

	h, err := pm2.Page(dataID)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	buf, err := h.GetForRead()
	if err != nil {
		t.Fatalf("getForRead: %v", err)
	}
	hdr := UnmarshalHeader(buf)
	back := DataPageFreeListID(buf)
	h.ReleaseRead()
	h.Close()
	if hdr.Type != PageTypeData || hdr.ID != dataID {
		t.Errorf("returned page header = {%v %s}, want {Data %s}", hdr.Type, hdr.ID, dataID)
	}
	if back != InvalidPageID {
		t.Errorf("returned page freeListPageId = %s, want invalid", back)
	}

	view := pl2.caps.GetStripes(0)
	if len(view.Stripes) != 1 || view.Stripes[0].TailID() != n1ID {
		t.Errorf("stripe tail should retreat to n1 (%s), got stripes=%v", n1ID, view.Stripes)
	}
}
