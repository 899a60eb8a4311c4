// Package ratelimit throttles outbound network operations this system's
// services perform on their own initiative — ledger submission, did:web
// resolution, audit-batch anchoring — independent of any per-request quota
// the transport layer might impose. InProcess runs entirely in one process
// via golang.org/x/time/rate; Redis backs the same interface with a
// Lua-scripted atomic token bucket for multi-process deployments sharing one
// Safe Store directory.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter gates an actor's rate of some operation.
type Limiter interface {
	// Allow reports whether actorID may proceed now, consuming one token if so.
	Allow(ctx context.Context, actorID string) bool
}

// InProcess is a per-actor token bucket limiter, one bucket per actorID,
// created lazily on first use.
type InProcess struct {
	ratePerSec float64
	burst      int
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
}

// NewInProcess creates an in-process limiter allowing ratePerSec sustained
// operations per actor with a burst capacity of burst.
func NewInProcess(ratePerSec float64, burst int) *InProcess {
	return &InProcess{
		ratePerSec: ratePerSec,
		burst:      burst,
		buckets:    make(map[string]*rate.Limiter),
	}
}

func (l *InProcess) Allow(_ context.Context, actorID string) bool {
	l.mu.Lock()
	b, ok := l.buckets[actorID]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.ratePerSec), l.burst)
		l.buckets[actorID] = b
	}
	l.mu.Unlock()
	return b.Allow()
}
