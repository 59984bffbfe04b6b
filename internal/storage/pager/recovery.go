package pager

import (
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Crash recovery — delta replay
// ───────────────────────────────────────────────────────────────────────────
//
// Generalized from the teacher's recovery.go: instead of replaying
// committed full-page images, this replays typed deltas past the last
// checkpoint LSN by re-applying each mutation to the page it names,
// exactly reproducing spec §8's testable property 5 ("replaying the
// emitted delta records from a snapshot taken before the operations
// reproduces byte-identical page contents"). Since this component has no
// transaction boundaries of its own (spec §1 non-goals: "transaction
// isolation above the page layer"), every delta with LSN greater than the
// checkpoint LSN is replayed unconditionally, in LSN order.

// Recover replays WAL deltas with LSN > the last checkpoint.
func (p *Pager) Recover() error {
	records, err := ReadAllDeltas(p.walPath)
	if err != nil {
		return fmt.Errorf("recover read WAL: %w", err)
	}
	// LSN numbering continues past the checkpoint even when the WAL was
	// truncated, so records appended after this open are never mistaken for
	// ones the checkpoint already covers.
	if len(records) == 0 {
		p.wal.SetNextLSN(p.hdr.CheckpointLSN + 1)
		return nil
	}

	maxLSN := p.hdr.CheckpointLSN
	var applied int
	for _, rec := range records {
		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}
		if rec.LSN <= p.hdr.CheckpointLSN {
			continue
		}
		if err := p.applyDelta(rec); err != nil {
			return fmt.Errorf("recover apply LSN %d (%v): %w", rec.LSN, rec.Type, err)
		}
		applied++
	}

	if applied > 0 {
		if err := p.file.Sync(); err != nil {
			return err
		}
		p.hdr.CheckpointLSN = maxLSN
		hdrBuf := MarshalFormatHeader(p.hdr, p.pageSize)
		if err := p.writePageRaw(NewPageID(0, KindIndex, 0), hdrBuf); err != nil {
			return fmt.Errorf("recover format header: %w", err)
		}
		if err := p.file.Sync(); err != nil {
			return err
		}
	}

	p.wal.SetNextLSN(maxLSN + 1)
	return p.wal.Truncate()
}

// applyDelta reapplies one delta record directly to the on-disk page
// image, bypassing the buffer pool (recovery runs before any handle is
// ever handed out).
func (p *Pager) applyDelta(rec *DeltaRecord) error {
	switch rec.Type {
	case DeltaInitNewPage:
		buf := NewPage(p.pageSize, PageType(rec.IOType), rec.NewPageID)
		return p.writePageRaw(rec.NewPageID, buf)

	case DeltaPagesListInitNewPage:
		buf, err := p.readPageOrNew(rec.PageID, PageTypeListNode)
		if err != nil {
			return err
		}
		node := WrapNode(buf)
		node.init(rec.PageID, rec.PreviousID)
		if rec.AddDataPageID != InvalidPageID {
			node.addPage(rec.AddDataPageID)
		}
		return p.writePageRaw(rec.PageID, buf)

	case DeltaPagesListAddPage:
		buf, err := p.readPageRaw(rec.NodePageID)
		if err != nil {
			return err
		}
		WrapNode(buf).addPage(rec.AddedID)
		return p.writePageRaw(rec.NodePageID, buf)

	case DeltaPagesListRemovePage:
		buf, err := p.readPageRaw(rec.NodePageID)
		if err != nil {
			return err
		}
		WrapNode(buf).removePage(rec.RemovedID)
		return p.writePageRaw(rec.NodePageID, buf)

	case DeltaPagesListSetNext:
		buf, err := p.readPageRaw(rec.PageID)
		if err != nil {
			return err
		}
		WrapNode(buf).setNextID(rec.NextID)
		return p.writePageRaw(rec.PageID, buf)

	case DeltaPagesListSetPrevious:
		buf, err := p.readPageRaw(rec.PageID)
		if err != nil {
			return err
		}
		WrapNode(buf).setPreviousID(rec.PrevID)
		return p.writePageRaw(rec.PageID, buf)

	case DeltaDataPageSetFreeListPage:
		buf, err := p.readPageRaw(rec.DataPageID)
		if err != nil {
			return err
		}
		SetDataPageFreeListID(buf, rec.FreeListPageID)
		return p.writePageRaw(rec.DataPageID, buf)

	case DeltaRecycle:
		buf, err := p.readPageRaw(rec.PageID)
		if err != nil {
			return err
		}
		SetHeaderID(buf, rec.RotatedPageID)
		return p.writePageRaw(rec.RotatedPageID, buf)

	case DeltaFullPageImage:
		return p.writePageRaw(rec.PageID, rec.Image)

	default:
		return fmt.Errorf("unknown delta type 0x%02x", uint8(rec.Type))
	}
}

// readPageOrNew reads a page if it already exists on disk at that slot,
// or synthesizes a zeroed one of the given type otherwise — needed
// because PagesListInitNewPage may be the very first record ever written
// for a freshly allocated slot.
func (p *Pager) readPageOrNew(id PageID, pt PageType) ([]byte, error) {
	buf, err := p.readPageRaw(id)
	if err != nil {
		return NewPage(p.pageSize, pt, id), nil
	}
	return buf, nil
}
