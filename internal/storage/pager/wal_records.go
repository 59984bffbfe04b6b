package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Delta payload encoding — one fixed layout per DeltaType (spec §6)
// ───────────────────────────────────────────────────────────────────────────

func putPageID(buf []byte, off int, id PageID) {
	binary.LittleEndian.PutUint64(buf[off:], uint64(id))
}

func getPageID(buf []byte, off int) PageID {
	return PageID(binary.LittleEndian.Uint64(buf[off:]))
}

func marshalDelta(rec *DeltaRecord) []byte {
	switch rec.Type {
	case DeltaInitNewPage:
		buf := make([]byte, 4+8+1+1+8)
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.PageID)
		buf[12] = rec.IOType
		buf[13] = rec.IOVersion
		putPageID(buf, 14, rec.NewPageID)
		return buf

	case DeltaPagesListInitNewPage:
		buf := make([]byte, 4+8+8+8)
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.PageID)
		putPageID(buf, 12, rec.PreviousID)
		putPageID(buf, 20, rec.AddDataPageID)
		return buf

	case DeltaPagesListAddPage:
		buf := make([]byte, 4+8+8)
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.NodePageID)
		putPageID(buf, 12, rec.AddedID)
		return buf

	case DeltaPagesListRemovePage:
		buf := make([]byte, 4+8+8)
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.NodePageID)
		putPageID(buf, 12, rec.RemovedID)
		return buf

	case DeltaPagesListSetNext:
		buf := make([]byte, 4+8+8)
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.PageID)
		putPageID(buf, 12, rec.NextID)
		return buf

	case DeltaPagesListSetPrevious:
		buf := make([]byte, 4+8+8)
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.PageID)
		putPageID(buf, 12, rec.PrevID)
		return buf

	case DeltaDataPageSetFreeListPage:
		buf := make([]byte, 4+8+8)
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.DataPageID)
		putPageID(buf, 12, rec.FreeListPageID)
		return buf

	case DeltaRecycle:
		buf := make([]byte, 4+8+8)
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.PageID)
		putPageID(buf, 12, rec.RotatedPageID)
		return buf

	case DeltaFullPageImage:
		buf := make([]byte, 4+8+len(rec.Image))
		binary.LittleEndian.PutUint32(buf[0:], rec.CacheID)
		putPageID(buf, 4, rec.PageID)
		copy(buf[12:], rec.Image)
		return buf

	default:
		panic(fmt.Sprintf("marshalDelta: unknown delta type %v", rec.Type))
	}
}

func unmarshalDelta(t DeltaType, buf []byte) (*DeltaRecord, error) {
	rec := &DeltaRecord{Type: t}
	switch t {
	case DeltaInitNewPage:
		if len(buf) < 22 {
			return nil, fmt.Errorf("short InitNewPage delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.PageID = getPageID(buf, 4)
		rec.IOType = buf[12]
		rec.IOVersion = buf[13]
		rec.NewPageID = getPageID(buf, 14)

	case DeltaPagesListInitNewPage:
		if len(buf) < 28 {
			return nil, fmt.Errorf("short PagesListInitNewPage delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.PageID = getPageID(buf, 4)
		rec.PreviousID = getPageID(buf, 12)
		rec.AddDataPageID = getPageID(buf, 20)

	case DeltaPagesListAddPage:
		if len(buf) < 20 {
			return nil, fmt.Errorf("short PagesListAddPage delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.NodePageID = getPageID(buf, 4)
		rec.AddedID = getPageID(buf, 12)

	case DeltaPagesListRemovePage:
		if len(buf) < 20 {
			return nil, fmt.Errorf("short PagesListRemovePage delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.NodePageID = getPageID(buf, 4)
		rec.RemovedID = getPageID(buf, 12)

	case DeltaPagesListSetNext:
		if len(buf) < 20 {
			return nil, fmt.Errorf("short PagesListSetNext delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.PageID = getPageID(buf, 4)
		rec.NextID = getPageID(buf, 12)

	case DeltaPagesListSetPrevious:
		if len(buf) < 20 {
			return nil, fmt.Errorf("short PagesListSetPrevious delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.PageID = getPageID(buf, 4)
		rec.PrevID = getPageID(buf, 12)

	case DeltaDataPageSetFreeListPage:
		if len(buf) < 20 {
			return nil, fmt.Errorf("short DataPageSetFreeListPage delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.DataPageID = getPageID(buf, 4)
		rec.FreeListPageID = getPageID(buf, 12)

	case DeltaRecycle:
		if len(buf) < 20 {
			return nil, fmt.Errorf("short Recycle delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.PageID = getPageID(buf, 4)
		rec.RotatedPageID = getPageID(buf, 12)

	case DeltaFullPageImage:
		if len(buf) < 12 {
			return nil, fmt.Errorf("short FullPageImage delta")
		}
		rec.CacheID = binary.LittleEndian.Uint32(buf[0:])
		rec.PageID = getPageID(buf, 4)
		rec.Image = append([]byte(nil), buf[12:]...)

	default:
		return nil, fmt.Errorf("unknown delta type 0x%02x", uint8(t))
	}
	return rec, nil
}
