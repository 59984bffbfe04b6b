package pager

import (
	"path/filepath"
	"testing"
)

func TestPageHeader_MarshalRoundTrip(t *testing.T) {
	h := PageHeader{
		Type:  PageTypeListNode,
		Flags: 0x42,
		ID:    NewPageID(99, KindIndex, 3),
		LSN:   LSN(12345),
		CRC:   0xDEADBEEF,
	}
	buf := make([]byte, PageHeaderSize)
	MarshalHeader(&h, buf)
	h2 := UnmarshalHeader(buf)
	if h2.Type != h.Type || h2.Flags != h.Flags || h2.ID != h.ID || h2.LSN != h.LSN || h2.CRC != h.CRC {
		t.Fatalf("header roundtrip mismatch: %+v vs %+v", h, h2)
	}
}

func TestPageID_TagBits(t *testing.T) {
	id := NewPageID(12345, KindIndex, 7)
	if id.Slot() != 12345 {
		t.Errorf("slot = %d, want 12345", id.Slot())
	}
	if id.Kind() != KindIndex || !id.IsIndex() {
		t.Errorf("kind = %v, want INDEX", id.Kind())
	}
	if id.Generation() != 7 {
		t.Errorf("generation = %d, want 7", id.Generation())
	}
}

func TestPageID_RotateBumpsGeneration(t *testing.T) {
	id := NewPageID(5, KindIndex, 0)
	rotated := id.Rotate()
	if rotated.Generation() != id.Generation()+1 {
		t.Errorf("rotate did not bump generation: %d -> %d", id.Generation(), rotated.Generation())
	}
	if rotated.Slot() != id.Slot() {
		t.Errorf("rotate changed slot: %d -> %d", id.Slot(), rotated.Slot())
	}
	if rotated.Kind() != id.Kind() {
		t.Errorf("rotate changed kind: %v -> %v, want kind preserved", id.Kind(), rotated.Kind())
	}
}

func TestPageID_RetypePreservesGeneration(t *testing.T) {
	id := NewPageID(5, KindData, 3)
	retyped := id.Retype(KindIndex)
	if retyped.Generation() != id.Generation() {
		t.Errorf("retype changed generation: %d -> %d", id.Generation(), retyped.Generation())
	}
	if !retyped.IsIndex() {
		t.Errorf("retype did not change kind")
	}
}

func TestCRC_DetectsCorruption(t *testing.T) {
	buf := NewPage(DefaultPageSize, PageTypeListNode, NewPageID(1, KindIndex, 0))
	SetPageCRC(buf)
	if err := VerifyPageCRC(buf); err != nil {
		t.Fatalf("valid CRC failed: %v", err)
	}
	buf[100] ^= 0xFF
	if err := VerifyPageCRC(buf); err == nil {
		t.Fatal("expected CRC error after corruption")
	}
}

func TestFormatHeader_RoundTrip(t *testing.T) {
	h := NewFormatHeader(DefaultPageSize)
	h.CheckpointLSN = LSN(999)
	h.NextSlot = 50
	h.PageCount = 50
	buf := MarshalFormatHeader(h, DefaultPageSize)
	h2, err := UnmarshalFormatHeader(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h2.FormatVersion != h.FormatVersion {
		t.Errorf("version mismatch")
	}
	if h2.PageSize != h.PageSize {
		t.Errorf("pageSize mismatch")
	}
	if h2.CheckpointLSN != h.CheckpointLSN {
		t.Errorf("checkpointLSN mismatch: got %d want %d", h2.CheckpointLSN, h.CheckpointLSN)
	}
	if h2.NextSlot != h.NextSlot {
		t.Errorf("nextSlot mismatch: got %d want %d", h2.NextSlot, h.NextSlot)
	}
}

func TestFormatHeader_BadMagic(t *testing.T) {
	buf := MarshalFormatHeader(NewFormatHeader(DefaultPageSize), DefaultPageSize)
	copy(buf[fhMagicOff:fhMagicOff+8], "XXXXXXXX")
	SetPageCRC(buf)
	if _, err := UnmarshalFormatHeader(buf); err == nil {
		t.Fatal("expected bad magic error")
	}
}

func TestWAL_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	w, err := OpenWAL(path, DefaultPageSize)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	recs := []*DeltaRecord{
		{Type: DeltaInitNewPage, CacheID: 1, PageID: NewPageID(1, KindIndex, 0), IOType: 4, IOVersion: 1, NewPageID: NewPageID(1, KindData, 0)},
		{Type: DeltaPagesListAddPage, CacheID: 1, NodePageID: NewPageID(2, KindIndex, 0), AddedID: NewPageID(3, KindData, 0)},
		{Type: DeltaRecycle, CacheID: 1, PageID: NewPageID(4, KindIndex, 0), RotatedPageID: NewPageID(4, KindData, 1)},
	}
	for _, r := range recs {
		if _, err := w.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAllDeltas(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("got %d records, want %d", len(got), len(recs))
	}
	for i, r := range got {
		if r.Type != recs[i].Type {
			t.Errorf("record %d: type = %v, want %v", i, r.Type, recs[i].Type)
		}
	}
}

func TestWAL_Truncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")
	w, err := OpenWAL(path, DefaultPageSize)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := w.Append(&DeltaRecord{Type: DeltaRecycle, PageID: NewPageID(1, KindIndex, 0), RotatedPageID: NewPageID(1, KindData, 1)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	w.Close()

	got, err := ReadAllDeltas(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d records after truncate, want 0", len(got))
	}
}

func TestPager_PageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenPager(PagerConfig{DBPath: filepath.Join(dir, "db"), PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	id, err := p.AllocatePageNoReuse()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	handle, err := p.Page(id)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	buf, err := handle.GetForWrite()
	if err != nil {
		t.Fatalf("getForWrite: %v", err)
	}
	InitDataPage(buf, id)
	copy(buf[64:72], "hi there")
	handle.ReleaseWrite(true)
	handle.Close()

	if err := p.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	handle2, err := p.Page(id)
	if err != nil {
		t.Fatalf("page reload: %v", err)
	}
	buf2, err := handle2.GetForRead()
	if err != nil {
		t.Fatalf("getForRead: %v", err)
	}
	if string(buf2[64:72]) != "hi there" {
		t.Errorf("payload mismatch after checkpoint reload")
	}
	handle2.ReleaseRead()
	handle2.Close()
}

func TestPager_Checkpoint(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db")
	p, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	id, err := p.AllocatePageNoReuse()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	handle, err := p.Page(id)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	buf, err := handle.GetForWrite()
	if err != nil {
		t.Fatalf("getForWrite: %v", err)
	}
	InitDataPage(buf, id)
	handle.ReleaseWrite(true)
	handle.Close()

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()

	handle2, err := p2.Page(id)
	if err != nil {
		t.Fatalf("reopen page: %v", err)
	}
	buf2, err := handle2.GetForRead()
	if err != nil {
		t.Fatalf("getForRead: %v", err)
	}
	if HeaderID(buf2) != id {
		t.Errorf("reloaded page id = %s, want %s", HeaderID(buf2), id)
	}
	handle2.ReleaseRead()
	handle2.Close()
}

func TestRecovery_ReplaysUncheckpointedDeltas(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db")

	p, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	nodeID, err := p.AllocatePageNoReuse()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	nodeID = nodeID.Retype(KindIndex)

	handle, err := p.Page(nodeID)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	buf, err := handle.GetForWrite()
	if err != nil {
		t.Fatalf("getForWrite: %v", err)
	}
	InitNewPage(buf, nodeID, InvalidPageID)
	handle.ReleaseWrite(true)
	handle.Close()
	p.wal.Append(&DeltaRecord{Type: DeltaPagesListInitNewPage, PageID: nodeID, PreviousID: InvalidPageID})

	dataID := NewPageID(999, KindData, 0)
	handle2, err := p.Page(nodeID)
	if err != nil {
		t.Fatalf("page reopen: %v", err)
	}
	buf2, err := handle2.GetForWrite()
	if err != nil {
		t.Fatalf("getForWrite: %v", err)
	}
	WrapNode(buf2).addPage(dataID)
	handle2.ReleaseWrite(true)
	handle2.Close()
	p.wal.Append(&DeltaRecord{Type: DeltaPagesListAddPage, NodePageID: nodeID, AddedID: dataID})

	// Crash without checkpointing: flush the raw file image from before the
	// add, but leave the WAL delta in place, then recover into a fresh Pager.
	raw := NewPage(p.pageSize, PageTypeListNode, nodeID)
	InitNewPage(raw, nodeID, InvalidPageID)
	if err := p.writePageRaw(nodeID, raw); err != nil {
		t.Fatalf("simulate pre-crash image: %v", err)
	}
	if err := p.file.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := p.wal.Sync(); err != nil {
		t.Fatalf("wal sync: %v", err)
	}
	if err := p.file.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	if err := p.wal.Close(); err != nil {
		t.Fatalf("close wal: %v", err)
	}

	p2, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("reopen (recovers): %v", err)
	}
	defer p2.Close()

	handle3, err := p2.Page(nodeID)
	if err != nil {
		t.Fatalf("page after recovery: %v", err)
	}
	buf3, err := handle3.GetForRead()
	if err != nil {
		t.Fatalf("getForRead: %v", err)
	}
	node := WrapNode(buf3)
	if node.GetCount() != 1 {
		t.Fatalf("after recovery, node count = %d, want 1", node.GetCount())
	}
	if got := node.AllEntries()[0]; got != dataID {
		t.Errorf("after recovery, entry = %s, want %s", got, dataID)
	}
	handle3.ReleaseRead()
	handle3.Close()
}
