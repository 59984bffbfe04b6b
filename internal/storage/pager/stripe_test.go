package pager

import (
	"sync"
	"testing"
)

func TestStripe_TailIDRoundTrip(t *testing.T) {
	a := NewPageID(1, KindIndex, 0)
	s := NewStripe(a)
	if got := s.TailID(); got != a {
		t.Fatalf("TailID() = %v, want %v", got, a)
	}
	b := NewPageID(2, KindIndex, 0)
	s.setTailID(b)
	if got := s.TailID(); got != b {
		t.Fatalf("TailID() after setTailID = %v, want %v", got, b)
	}
}

func TestBucketCapabilities_EmptyBucketView(t *testing.T) {
	caps := NewBucketCapabilities(2, -1)
	view := caps.GetStripes(0)
	if len(view.Stripes) != 0 {
		t.Fatalf("expected empty view on unpopulated bucket, got %d stripes", len(view.Stripes))
	}
}

func TestBucketCapabilities_CASAppendSucceedsOnFreshView(t *testing.T) {
	caps := NewBucketCapabilities(1, -1)
	view := caps.GetStripes(0)
	s := NewStripe(NewPageID(1, KindIndex, 0))
	if !caps.CASStripes(0, view, []*Stripe{s}) {
		t.Fatal("CAS append against an empty bucket should succeed")
	}
	view2 := caps.GetStripes(0)
	if len(view2.Stripes) != 1 || view2.Stripes[0] != s {
		t.Fatalf("unexpected stripes after append: %v", view2.Stripes)
	}
}

func TestBucketCapabilities_CASFailsOnStaleView(t *testing.T) {
	caps := NewBucketCapabilities(1, -1)
	staleView := caps.GetStripes(0)

	s1 := NewStripe(NewPageID(1, KindIndex, 0))
	if !caps.CASStripes(0, staleView, []*Stripe{s1}) {
		t.Fatal("first CAS should succeed")
	}

	s2 := NewStripe(NewPageID(2, KindIndex, 0))
	if caps.CASStripes(0, staleView, []*Stripe{s2}) {
		t.Fatal("CAS against a stale view must fail")
	}

	view := caps.GetStripes(0)
	if len(view.Stripes) != 1 || view.Stripes[0] != s1 {
		t.Fatalf("stale CAS must not have mutated the bucket: %v", view.Stripes)
	}
}

func TestBucketCapabilities_CASRemoveToEmpty(t *testing.T) {
	caps := NewBucketCapabilities(1, -1)
	view := caps.GetStripes(0)
	s := NewStripe(NewPageID(1, KindIndex, 0))
	if !caps.CASStripes(0, view, []*Stripe{s}) {
		t.Fatal("setup append failed")
	}

	view = caps.GetStripes(0)
	if !caps.CASStripes(0, view, nil) {
		t.Fatal("CAS to nil (remove last stripe) should succeed")
	}

	view = caps.GetStripes(0)
	if len(view.Stripes) != 0 {
		t.Fatalf("expected empty bucket after removal, got %d stripes", len(view.Stripes))
	}
}

func TestBucketCapabilities_BucketsAreIndependent(t *testing.T) {
	caps := NewBucketCapabilities(2, -1)
	v0 := caps.GetStripes(0)
	s0 := NewStripe(NewPageID(1, KindIndex, 0))
	if !caps.CASStripes(0, v0, []*Stripe{s0}) {
		t.Fatal("append to bucket 0 failed")
	}
	if got := caps.GetStripes(1); len(got.Stripes) != 0 {
		t.Fatalf("bucket 1 must be unaffected by bucket 0's append, got %d stripes", len(got.Stripes))
	}
}

func TestBucketCapabilities_IsReuseBucket(t *testing.T) {
	caps := NewBucketCapabilities(3, 1)
	for b, want := range map[int]bool{0: false, 1: true, 2: false} {
		if got := caps.IsReuseBucket(b); got != want {
			t.Fatalf("IsReuseBucket(%d) = %v, want %v", b, got, want)
		}
	}

	none := NewBucketCapabilities(3, -1)
	for b := 0; b < 3; b++ {
		if none.IsReuseBucket(b) {
			t.Fatalf("IsReuseBucket(%d) must be false when no reuse bucket is configured", b)
		}
	}
}

// TestBucketCapabilities_ConcurrentCASAppendPreservesAllStripes exercises the
// retry loop a caller (addStripe) builds on top of CASStripes: every
// goroutine reads the current view, builds view+1, and retries on failure.
// No stripe should be lost even though many goroutines race on the same
// bucket's CAS slot.
func TestBucketCapabilities_ConcurrentCASAppendPreservesAllStripes(t *testing.T) {
	caps := NewBucketCapabilities(1, -1)

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s := NewStripe(NewPageID(uint32(i+1), KindIndex, 0))
			for {
				view := caps.GetStripes(0)
				next := make([]*Stripe, 0, len(view.Stripes)+1)
				next = append(next, view.Stripes...)
				next = append(next, s)
				if caps.CASStripes(0, view, next) {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	view := caps.GetStripes(0)
	if len(view.Stripes) != n {
		t.Fatalf("expected %d stripes after concurrent append, got %d", n, len(view.Stripes))
	}
	seen := make(map[PageID]bool)
	for _, s := range view.Stripes {
		id := s.TailID()
		if seen[id] {
			t.Fatalf("duplicate stripe tail id %v in final view", id)
		}
		seen[id] = true
	}
}

func TestDefaultMaxStripesPerBucket_BoundedByEight(t *testing.T) {
	if got := DefaultMaxStripesPerBucket(); got <= 0 || got > 8 {
		t.Fatalf("DefaultMaxStripesPerBucket() = %d, want in (0, 8]", got)
	}
}
