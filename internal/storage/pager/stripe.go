package pager

import (
	"runtime"
	"sync/atomic"
)

// ───────────────────────────────────────────────────────────────────────────
// Stripe table and CAS discipline (spec §3, §4.1)
// ───────────────────────────────────────────────────────────────────────────

// DefaultTryLockAttempts is the non-blocking latch attempt budget before a
// stripe grows or falls back to a blocking acquisition (spec §6).
const DefaultTryLockAttempts = 10

// DefaultMaxStripesPerBucket returns min(8, 2*NumCPU), the spec's default
// hard cap on stripes per bucket (spec §6).
func DefaultMaxStripesPerBucket() int {
	n := 2 * runtime.NumCPU()
	if n > 8 {
		return 8
	}
	return n
}

// Stripe is a mutable record holding one stripe's tail page id. Only
// TailID is observably mutable; the owning bucket's Stripe slice is
// replaced wholesale via CAS whenever stripes are added or removed, but a
// reader holding a *Stripe from an old slice view still observes a
// meaningful, live tail id (spec §4.1).
type Stripe struct {
	tailID atomic.Uint64
}

// NewStripe creates a stripe whose tail is currently tailID.
func NewStripe(tailID PageID) *Stripe {
	s := &Stripe{}
	s.tailID.Store(uint64(tailID))
	return s
}

// TailID returns the stripe's current tail page id.
func (s *Stripe) TailID() PageID { return PageID(s.tailID.Load()) }

// setTailID overwrites the stripe's tail in place. Callers must hold the
// write latch on the old tail page before calling this (spec §4.1:
// "the tail write latch serializes this").
func (s *Stripe) setTailID(id PageID) { s.tailID.Store(uint64(id)) }

// StripesView is a snapshot of one bucket's Stripe slice plus the opaque
// publication token needed to CAS it. Readers use Stripes directly;
// CASStripes consumes the token to detect whether the slot has since been
// republished (i.e. whether this view is still current).
type StripesView struct {
	Stripes []*Stripe
	ptr     *[]*Stripe
}

// BucketCapabilities is the capability-injection replacement for the
// abstract bucket accessors a subclass would otherwise override (spec §9
// design note: "re-architect as three injected capabilities"). A single
// PagesList core is parameterized by one of these rather than by
// inheritance.
type BucketCapabilities struct {
	// GetStripes returns the current (possibly empty) stripe view for bucket.
	GetStripes func(bucket int) StripesView
	// CASStripes atomically replaces bucket's Stripe slice if it is still
	// the one described by old, returning whether the swap succeeded.
	CASStripes func(bucket int, old StripesView, new []*Stripe) bool
	// IsReuseBucket reports whether bucket is the designated reuse bucket.
	IsReuseBucket func(bucket int) bool
}

// NewBucketCapabilities builds the default capability set over numBuckets
// buckets, optionally designating reuseBucket as the reuse bucket (pass -1
// for none).
func NewBucketCapabilities(numBuckets int, reuseBucket int) BucketCapabilities {
	slots := make([]atomic.Pointer[[]*Stripe], numBuckets)

	return BucketCapabilities{
		GetStripes: func(bucket int) StripesView {
			p := slots[bucket].Load()
			if p == nil {
				return StripesView{}
			}
			return StripesView{Stripes: *p, ptr: p}
		},
		CASStripes: func(bucket int, old StripesView, newStripes []*Stripe) bool {
			var newPtr *[]*Stripe
			if newStripes != nil {
				newPtr = &newStripes
			}
			return slots[bucket].CompareAndSwap(old.ptr, newPtr)
		},
		IsReuseBucket: func(bucket int) bool {
			return bucket == reuseBucket
		},
	}
}
