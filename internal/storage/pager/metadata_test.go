package pager

import "testing"

// TestSaveMetadata_ShrinkingChainZeroesSurplusPages covers SaveMetadata's
// tail-trimming branch: a second save with fewer stripes than the first
// must leave the now-unreferenced meta pages zeroed (count 0, unlinked)
// rather than deleted outright — their storage is not reclaimed here.
func TestSaveMetadata_ShrinkingChainZeroesSurplusPages(t *testing.T) {
	pl, pm := newTestList(1, -1)

	metaID, err := pm.AllocatePageNoReuse()
	if err != nil {
		t.Fatalf("allocate meta: %v", err)
	}
	if err := pl.Init(metaID, true); err != nil {
		t.Fatalf("Init(initNew): %v", err)
	}

	// splitCapPageSize (68) yields MetaCapacity 2, so 5 stripes need a
	// 3-page chain.
	for i := 0; i < 5; i++ {
		if _, err := pl.addStripe(0, false); err != nil {
			t.Fatalf("addStripe: %v", err)
		}
	}
	if err := pl.SaveMetadata(); err != nil {
		t.Fatalf("SaveMetadata (5 stripes): %v", err)
	}
	longChain, err := pl.walkMetaChain(pl.metaPageID)
	if err != nil {
		t.Fatalf("walkMetaChain: %v", err)
	}
	if len(longChain) != 3 {
		t.Fatalf("chain length after 5-stripe save = %d, want 3", len(longChain))
	}
	surplusPage := longChain[2]

	// Drop to a single stripe and save again: the chain should shrink to
	// one page, and the now-surplus pages should be reset, not reused or
	// relinked.
	view := pl.caps.GetStripes(0)
	onlyOne := []*Stripe{view.Stripes[0]}
	if !pl.caps.CASStripes(0, view, onlyOne) {
		t.Fatal("CAS to shrink bucket 0's stripe set failed")
	}
	if err := pl.SaveMetadata(); err != nil {
		t.Fatalf("SaveMetadata (1 stripe): %v", err)
	}

	shortChain, err := pl.walkMetaChain(pl.metaPageID)
	if err != nil {
		t.Fatalf("walkMetaChain after shrink: %v", err)
	}
	if len(shortChain) != 1 {
		t.Fatalf("chain length after shrink = %d, want 1", len(shortChain))
	}

	h, err := pm.Page(surplusPage)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	buf, err := h.GetForRead()
	if err != nil {
		t.Fatalf("getForRead: %v", err)
	}
	m := WrapMeta(buf)
	count, next := m.GetCount(), m.NextMetaPageID()
	h.ReleaseRead()
	h.Close()
	if count != 0 {
		t.Errorf("surplus meta page count = %d, want 0 (zeroed)", count)
	}
	if next != InvalidPageID {
		t.Errorf("surplus meta page next = %s, want invalid (unlinked)", next)
	}
}

// TestWalkMetaChain_SelfLoopIsCorruption covers the chain-loop detection
// both SaveMetadata (via walkMetaChain) and Init rely on.
func TestWalkMetaChain_SelfLoopIsCorruption(t *testing.T) {
	pl, pm := newTestList(1, -1)

	metaID, err := pm.AllocatePageNoReuse()
	if err != nil {
		t.Fatalf("allocate meta: %v", err)
	}
	h, err := pm.Page(metaID)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	buf, err := h.GetForWrite()
	if err != nil {
		t.Fatalf("getForWrite: %v", err)
	}
	m := InitNewMetaPage(buf, metaID)
	m.SetNextMetaPageID(metaID) // self-loop
	h.ReleaseWrite(true)
	h.Close()

	if _, err := pl.walkMetaChain(metaID); err == nil {
		t.Fatal("walkMetaChain over a self-looping chain should fail")
	} else if _, ok := err.(*CorruptionError); !ok {
		t.Errorf("walkMetaChain error = %T, want *CorruptionError", err)
	}

	if err := pl.Init(metaID, false); err == nil {
		t.Fatal("Init over a self-looping chain should fail")
	} else if _, ok := err.(*CorruptionError); !ok {
		t.Errorf("Init error = %T, want *CorruptionError", err)
	}
}

// TestInit_RestoresMultipleStripesPerBucketInOrder exercises the part of
// Init's restore path TestScenario_S6 doesn't cover directly: a bucket
// whose stripe tails span more than one meta page, reassembled from
// whichever page each entry happened to land on.
func TestInit_RestoresMultipleStripesPerBucketInOrder(t *testing.T) {
	pl, pm := newTestList(1, -1)
	metaID, err := pm.AllocatePageNoReuse()
	if err != nil {
		t.Fatalf("allocate meta: %v", err)
	}
	if err := pl.Init(metaID, true); err != nil {
		t.Fatalf("Init(initNew): %v", err)
	}

	var tails []PageID
	for i := 0; i < 5; i++ {
		s, err := pl.addStripe(0, false)
		if err != nil {
			t.Fatalf("addStripe: %v", err)
		}
		tails = append(tails, s.TailID())
	}
	if err := pl.SaveMetadata(); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	pl2, _ := newTestListOverSamePM(pm, 1, -1)
	if err := pl2.Init(metaID, false); err != nil {
		t.Fatalf("Init(restore): %v", err)
	}

	got := pl2.caps.GetStripes(0).Stripes
	if len(got) != len(tails) {
		t.Fatalf("restored stripe count = %d, want %d", len(got), len(tails))
	}
	for i, s := range got {
		if s.TailID() != tails[i] {
			t.Errorf("restored stripe %d tail = %s, want %s (saved order)", i, s.TailID(), tails[i])
		}
	}
}
