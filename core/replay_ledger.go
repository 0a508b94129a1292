package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// Callback deliveries are retried by the provider for up to a day.
	defaultReplayLedgerTTL        = 24 * time.Hour
	defaultReplayLedgerMaxEntries = 8192
)

var errNilReplayLedger = fmt.Errorf("core: replay ledger is nil")

type replayClaim struct {
	claimedAt time.Time
	expiresAt time.Time
}

func (c replayClaim) liveAt(now time.Time) bool {
	return now.Before(c.expiresAt)
}

// MemoryReplayLedger is the in-process ReplayLedger. Claims live until their
// ttl elapses; once the ledger holds maxEntries live claims the earliest
// claim is dropped to make room.
type MemoryReplayLedger struct {
	Clock Clock

	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	claims     map[string]replayClaim
}

func NewMemoryReplayLedger(ttl time.Duration) *MemoryReplayLedger {
	return NewMemoryReplayLedgerWithLimits(ttl, 0)
}

func NewMemoryReplayLedgerWithLimits(ttl time.Duration, maxEntries int) *MemoryReplayLedger {
	if ttl <= 0 {
		ttl = defaultReplayLedgerTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultReplayLedgerMaxEntries
	}
	return &MemoryReplayLedger{
		Clock:      SystemClock{},
		ttl:        ttl,
		maxEntries: maxEntries,
		claims:     make(map[string]replayClaim, 16),
	}
}

// Claim reports whether key is new. A key already claimed and not yet
// expired is a replay and returns false.
func (l *MemoryReplayLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, errNilReplayLedger
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: replay key is required")
	}
	if ttl <= 0 {
		ttl = l.ttl
	}
	now := l.currentTime()

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.claims[key]; ok && existing.liveAt(now) {
		return false, nil
	}
	l.sweepLocked(now)
	for len(l.claims) >= l.maxEntries {
		l.dropEarliestLocked()
	}
	l.claims[key] = replayClaim{claimedAt: now, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release forgets key so a later delivery can claim it again.
func (l *MemoryReplayLedger) Release(_ context.Context, key string) error {
	if l == nil {
		return errNilReplayLedger
	}
	l.mu.Lock()
	delete(l.claims, strings.TrimSpace(key))
	l.mu.Unlock()
	return nil
}

// PurgeExpired drops expired claims and returns how many were removed.
func (l *MemoryReplayLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, errNilReplayLedger
	}
	now := l.currentTime()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now), nil
}

// Len returns the number of claims held, expired or not.
func (l *MemoryReplayLedger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.claims)
}

func (l *MemoryReplayLedger) currentTime() time.Time {
	if l.Clock == nil {
		return time.Now().UTC()
	}
	return l.Clock.Now().UTC()
}

func (l *MemoryReplayLedger) sweepLocked(now time.Time) int {
	removed := 0
	for key, claim := range l.claims {
		if !claim.liveAt(now) {
			delete(l.claims, key)
			removed++
		}
	}
	return removed
}

func (l *MemoryReplayLedger) dropEarliestLocked() {
	victim, found := "", false
	var earliest time.Time
	for key, claim := range l.claims {
		if !found || claim.claimedAt.Before(earliest) {
			victim, earliest, found = key, claim.claimedAt, true
		}
	}
	if !found {
		return
	}
	delete(l.claims, victim)
}
