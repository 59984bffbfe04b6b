package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// WAL file format
// ───────────────────────────────────────────────────────────────────────────
//
// The WAL is an append-only file of fixed-format records. Unlike the
// teacher's full-page-image WAL, every record here is a typed *delta* —
// a small, fixed-field description of one mutation — which keeps the log
// compact and lets replay reconstruct page contents by re-applying each
// delta instead of overwriting the whole page.
//
// WAL file header (first 32 bytes):
//   [0:8]   Magic       "PLISTWAL"
//   [8:12]  Version     uint32 LE (currently 1)
//   [12:16] PageSize    uint32 LE
//   [16:24] Reserved    8 bytes
//   [24:28] HeaderCRC   uint32 LE (CRC of bytes 0:24)
//   [28:32] Padding     4 bytes
//
// WAL record (variable-length, follows header):
//   [0]     RecordType  (1 byte)
//   [1:5]   Reserved    (4 bytes)
//   [5:13]  LSN         (uint64 LE)
//   [13:17] DataLen     (uint32 LE) — payload length
//   [17:21] RecordCRC   (uint32 LE) — CRC of header + payload
//   [21:21+DataLen]     Payload (record-type specific, see marshalDelta)

const (
	WALMagic       = "PLISTWAL"
	WALVersion     = uint32(1)
	WALFileHdrSize = 32
	WALRecHdrSize  = 21
)

// DeltaType identifies the kind of WAL delta record (spec §6).
type DeltaType uint8

const (
	DeltaInitNewPage             DeltaType = 0x01
	DeltaPagesListInitNewPage    DeltaType = 0x02
	DeltaPagesListAddPage        DeltaType = 0x03
	DeltaPagesListRemovePage     DeltaType = 0x04
	DeltaPagesListSetNext        DeltaType = 0x05
	DeltaPagesListSetPrevious    DeltaType = 0x06
	DeltaDataPageSetFreeListPage DeltaType = 0x07
	DeltaRecycle                 DeltaType = 0x08
	DeltaFullPageImage           DeltaType = 0x09
)

func (dt DeltaType) String() string {
	switch dt {
	case DeltaInitNewPage:
		return "InitNewPage"
	case DeltaPagesListInitNewPage:
		return "PagesListInitNewPage"
	case DeltaPagesListAddPage:
		return "PagesListAddPage"
	case DeltaPagesListRemovePage:
		return "PagesListRemovePage"
	case DeltaPagesListSetNext:
		return "PagesListSetNext"
	case DeltaPagesListSetPrevious:
		return "PagesListSetPrevious"
	case DeltaDataPageSetFreeListPage:
		return "DataPageSetFreeListPage"
	case DeltaRecycle:
		return "Recycle"
	case DeltaFullPageImage:
		return "FullPageImage"
	default:
		return fmt.Sprintf("UnknownDelta(0x%02x)", uint8(dt))
	}
}

// DeltaRecord is the in-memory representation of one WAL delta. Only the
// fields relevant to Type are meaningful; the per-field comments below
// name the types that use each field, and marshalDelta/unmarshalDelta in
// wal_records.go hold each type's encoding.
type DeltaRecord struct {
	Type DeltaType
	LSN  LSN

	CacheID uint32 // identifies which PageMemory instance this delta belongs to

	PageID    PageID // InitNewPage, PagesListInitNewPage, PagesListSetNext/Previous
	IOType    uint8  // InitNewPage
	IOVersion uint8  // InitNewPage
	NewPageID PageID // InitNewPage

	PreviousID    PageID // PagesListInitNewPage
	AddDataPageID PageID // PagesListInitNewPage

	NodePageID PageID // PagesListAddPage, PagesListRemovePage
	AddedID    PageID // PagesListAddPage
	RemovedID  PageID // PagesListRemovePage

	NextID PageID // PagesListSetNext
	PrevID PageID // PagesListSetPrevious

	DataPageID     PageID // DataPageSetFreeListPage
	FreeListPageID PageID // DataPageSetFreeListPage

	RotatedPageID PageID // Recycle

	Image []byte // FullPageImage: the page's full contents at release time
}

// ───────────────────────────────────────────────────────────────────────────
// WAL writer/reader
// ───────────────────────────────────────────────────────────────────────────

// WAL is the append-only redo log sink. It is safe for concurrent use;
// spec §5 requires that log(record) be thread-safe and order records
// causally after the mutation they describe, which callers satisfy by
// calling Append only while still holding the write latch on the
// mutated page.
type WAL struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	pageSize int
	nextLSN  LSN
	writePos int64
}

// OpenWAL opens or creates a WAL file. If the file exists, it validates
// the header. If it does not exist, it writes a new header.
func OpenWAL(path string, pageSize int) (*WAL, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}

	w := &WAL{f: f, path: path, pageSize: pageSize, nextLSN: 1}

	if exists {
		if err := w.validateHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := w.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}

	endPos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("seek WAL end: %w", err)
	}
	w.writePos = endPos

	return w, nil
}

func (w *WAL) writeHeader() error {
	var hdr [WALFileHdrSize]byte
	copy(hdr[0:8], WALMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], WALVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(w.pageSize))
	c := crc32.Checksum(hdr[:24], crcTable)
	binary.LittleEndian.PutUint32(hdr[24:28], c)
	if _, err := w.f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("write WAL header: %w", err)
	}
	return w.f.Sync()
}

func (w *WAL) validateHeader() error {
	var hdr [WALFileHdrSize]byte
	n, err := w.f.ReadAt(hdr[:], 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read WAL header: %w", err)
	}
	if n < WALFileHdrSize {
		return fmt.Errorf("WAL header too short: %d bytes", n)
	}
	if string(hdr[0:8]) != WALMagic {
		return fmt.Errorf("bad WAL magic")
	}
	ver := binary.LittleEndian.Uint32(hdr[8:12])
	if ver != WALVersion {
		return fmt.Errorf("unsupported WAL version %d", ver)
	}
	ps := binary.LittleEndian.Uint32(hdr[12:16])
	if int(ps) != w.pageSize {
		return fmt.Errorf("WAL page size %d != expected %d", ps, w.pageSize)
	}
	stored := binary.LittleEndian.Uint32(hdr[24:28])
	computed := crc32.Checksum(hdr[:24], crcTable)
	if stored != computed {
		return fmt.Errorf("WAL header CRC mismatch")
	}
	return nil
}

// Append writes a WAL delta record and assigns it a monotonic LSN.
// A record is only appended when w != nil — callers check that, matching
// spec §6 ("a record is emitted only when wal != null").
func (w *WAL) Append(rec *DeltaRecord) (LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.nextLSN
	w.nextLSN++
	rec.LSN = lsn

	data := marshalDelta(rec)
	buf := marshalWALRecordHeader(rec.Type, lsn, data)
	n, err := w.f.WriteAt(buf, w.writePos)
	if err != nil {
		return 0, fmt.Errorf("WAL append: %w", err)
	}
	w.writePos += int64(n)
	return lsn, nil
}

// Sync fsyncs the WAL file to guarantee durability.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Truncate resets the WAL file to just the header (after a checkpoint).
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Truncate(WALFileHdrSize); err != nil {
		return err
	}
	w.writePos = WALFileHdrSize
	return w.f.Sync()
}

// NextLSN returns the next LSN that will be assigned.
func (w *WAL) NextLSN() LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLSN
}

// SetNextLSN allows recovery to set the LSN counter.
func (w *WAL) SetNextLSN(lsn LSN) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextLSN = lsn
}

// ───────────────────────────────────────────────────────────────────────────
// Record framing
// ───────────────────────────────────────────────────────────────────────────

func marshalWALRecordHeader(t DeltaType, lsn LSN, payload []byte) []byte {
	buf := make([]byte, WALRecHdrSize+len(payload))
	buf[0] = byte(t)
	binary.LittleEndian.PutUint64(buf[5:13], uint64(lsn))
	binary.LittleEndian.PutUint32(buf[13:17], uint32(len(payload)))
	copy(buf[WALRecHdrSize:], payload)

	h := crc32.New(crcTable)
	h.Write(buf[:17])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(buf[WALRecHdrSize:])
	binary.LittleEndian.PutUint32(buf[17:21], h.Sum32())
	return buf
}

func readWALRecord(r io.Reader) (*DeltaRecord, error) {
	var hdr [WALRecHdrSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	t := DeltaType(hdr[0])
	lsn := LSN(binary.LittleEndian.Uint64(hdr[5:13]))
	dataLen := int(binary.LittleEndian.Uint32(hdr[13:17]))
	storedCRC := binary.LittleEndian.Uint32(hdr[17:21])

	var data []byte
	if dataLen > 0 {
		data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("WAL record payload: %w", err)
		}
	}

	h := crc32.New(crcTable)
	h.Write(hdr[:17])
	h.Write([]byte{0, 0, 0, 0})
	if data != nil {
		h.Write(data)
	}
	if h.Sum32() != storedCRC {
		return nil, fmt.Errorf("WAL record CRC mismatch at LSN %d", lsn)
	}

	rec, err := unmarshalDelta(t, data)
	if err != nil {
		return nil, err
	}
	rec.LSN = lsn
	return rec, nil
}

// ReadAllDeltas reads all WAL delta records from the file (after the
// header). Partial/corrupt records at the tail are silently ignored
// (crash truncation).
func ReadAllDeltas(path string) ([]*DeltaRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(WALFileHdrSize, io.SeekStart); err != nil {
		return nil, err
	}

	var records []*DeltaRecord
	for {
		rec, err := readWALRecord(f)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}
