package pager

import "testing"

func TestMeta_InitAndEntries(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	id := NewPageID(2, KindIndex, 0)
	m := InitNewMetaPage(buf, id)

	if m.GetCount() != 0 {
		t.Fatalf("fresh meta page count = %d, want 0", m.GetCount())
	}
	if m.NextMetaPageID() != InvalidPageID {
		t.Fatalf("fresh meta page next = %s, want invalid", m.NextMetaPageID())
	}

	entries := []MetaEntry{
		{Bucket: 0, TailID: NewPageID(10, KindIndex, 0)},
		{Bucket: 0, TailID: NewPageID(11, KindIndex, 0)},
		{Bucket: 1, TailID: NewPageID(12, KindIndex, 1)},
	}
	for _, e := range entries {
		if !m.AddEntry(e) {
			t.Fatalf("AddEntry(%+v) failed unexpectedly", e)
		}
	}

	got := m.Entries()
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], e)
		}
	}
}

func TestMeta_CapacityLimit(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	m := InitNewMetaPage(buf, NewPageID(2, KindIndex, 0))

	capEntries := MetaCapacity(DefaultPageSize)
	for i := 0; i < capEntries; i++ {
		if !m.AddEntry(MetaEntry{Bucket: i, TailID: NewPageID(uint32(i), KindIndex, 0)}) {
			t.Fatalf("AddEntry unexpectedly failed at i=%d (capacity=%d)", i, capEntries)
		}
	}
	if m.AddEntry(MetaEntry{Bucket: 999, TailID: NewPageID(999, KindIndex, 0)}) {
		t.Fatal("AddEntry beyond capacity should fail")
	}
}

func TestMeta_Reset(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	m := InitNewMetaPage(buf, NewPageID(2, KindIndex, 0))
	m.AddEntry(MetaEntry{Bucket: 0, TailID: NewPageID(1, KindIndex, 0)})
	m.SetNextMetaPageID(NewPageID(3, KindIndex, 0))

	m.Reset()
	if m.GetCount() != 0 {
		t.Errorf("count after reset = %d, want 0", m.GetCount())
	}
	if m.NextMetaPageID() != NewPageID(3, KindIndex, 0) {
		t.Errorf("Reset must not disturb the chain link")
	}
}
