package jobs

import (
	"context"
	"sync"
)

// InFlight tracks which job kinds are queued or running.
type InFlight interface {
	// Claim marks kind busy. It returns false if kind was already claimed,
	// or if kind is KindAll and either of its steps is claimed.
	Claim(ctx context.Context, kind Kind) bool

	// Release frees kind so a new job of that kind can be requested.
	Release(ctx context.Context, kind Kind)

	// Busy lists the claimed kinds.
	Busy() []Kind
}

type inMemoryInFlight struct {
	mu      sync.Mutex
	claimed map[Kind]struct{}
}

// NewInFlight returns an in-memory tracker.
func NewInFlight() InFlight {
	return &inMemoryInFlight{claimed: make(map[Kind]struct{})}
}

func (f *inMemoryInFlight) Claim(_ context.Context, kind Kind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.overlaps(kind) {
		return false
	}
	f.claimed[kind] = struct{}{}
	return true
}

// overlaps must be called with f.mu held.
func (f *inMemoryInFlight) overlaps(kind Kind) bool {
	if _, ok := f.claimed[kind]; ok {
		return true
	}
	if _, ok := f.claimed[KindAll]; ok {
		return true
	}
	if kind == KindAll {
		for _, step := range kind.Steps() {
			if _, ok := f.claimed[step]; ok {
				return true
			}
		}
	}
	return false
}

func (f *inMemoryInFlight) Release(_ context.Context, kind Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, kind)
}

func (f *inMemoryInFlight) Busy() []Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Kind, 0, len(f.claimed))
	for _, k := range []Kind{KindAll, KindBigQuery, KindGCS} {
		if _, ok := f.claimed[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
