package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// DefaultCooldown is the default minimum time between two alerts of the same
// kind for the same subject.
const DefaultCooldown = 24 * time.Hour

// DedupStore persists cooldown markers. FetchDedupRecord returns (nil, nil)
// when no record exists.
type DedupStore interface {
	FetchDedupRecord(ctx context.Context, subjectID string, kind models.AlertKind) (*models.DedupRecord, error)
	SaveDedupRecord(ctx context.Context, rec models.DedupRecord) error
}

// CooldownManager keeps last-sent times in memory for (subject, kind) pairs.
type CooldownManager struct {
	mu       sync.RWMutex
	lastSent map[string]time.Time
}

// NewCooldownManager creates an empty cooldown manager.
func NewCooldownManager() *CooldownManager {
	return &CooldownManager{lastSent: make(map[string]time.Time)}
}

func cooldownKey(subjectID string, kind models.AlertKind) string {
	return subjectID + "|" + string(kind)
}

// LastSent returns the cached last-sent time.
func (cm *CooldownManager) LastSent(subjectID string, kind models.AlertKind) (time.Time, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	t, ok := cm.lastSent[cooldownKey(subjectID, kind)]
	return t, ok
}

// Mark records that an alert was sent at t. Older times never overwrite newer.
func (cm *CooldownManager) Mark(subjectID string, kind models.AlertKind, t time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	key := cooldownKey(subjectID, kind)
	if prev, ok := cm.lastSent[key]; ok && prev.After(t) {
		return
	}
	cm.lastSent[key] = t
}

// Remaining returns how long the pair stays on cooldown.
func (cm *CooldownManager) Remaining(subjectID string, kind models.AlertKind, window time.Duration, now time.Time) time.Duration {
	t, ok := cm.LastSent(subjectID, kind)
	if !ok {
		return 0
	}
	if r := t.Add(window).Sub(now); r > 0 {
		return r
	}
	return 0
}

// Forget drops the marker for a pair.
func (cm *CooldownManager) Forget(subjectID string, kind models.AlertKind) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.lastSent, cooldownKey(subjectID, kind))
}

// Prune drops markers older than window and returns how many were removed.
func (cm *CooldownManager) Prune(window time.Duration, now time.Time) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	n := 0
	for key, t := range cm.lastSent {
		if now.Sub(t) > window {
			delete(cm.lastSent, key)
			n++
		}
	}
	return n
}

// Len returns the number of cached markers.
func (cm *CooldownManager) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.lastSent)
}

// ClearAll drops every cached marker.
func (cm *CooldownManager) ClearAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.lastSent = make(map[string]time.Time)
}

// Deduplicator drops candidates whose (subject, kind) was alerted within the
// cooldown window. The check and the write are not atomic across concurrent
// runs, so two racing runs can both send.
//
// When a store is given it is authoritative; the in-memory cache only answers
// when there is no store or the store cannot be read.
type Deduplicator struct {
	window time.Duration
	cache  *CooldownManager
	logger zerolog.Logger

	mu        sync.Mutex
	lastSweep time.Time
}

// NewDeduplicator creates a deduplicator. A non-positive window uses
// DefaultCooldown.
func NewDeduplicator(window time.Duration, logger zerolog.Logger) *Deduplicator {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &Deduplicator{window: window, cache: NewCooldownManager(), logger: logger}
}

// Window returns the cooldown window.
func (d *Deduplicator) Window() time.Duration { return d.window }

// Filter returns the candidates that may be sent now and stamps each survivor
// in the store. A store that fails is logged and the candidate is let through.
func (d *Deduplicator) Filter(ctx context.Context, candidates []AlertEvent, store DedupStore, now time.Time) []AlertEvent {
	d.sweep(now)

	seen := make(map[string]bool, len(candidates))
	out := make([]AlertEvent, 0, len(candidates))

	for _, ev := range candidates {
		h := ev.Header()
		key := cooldownKey(h.SubjectID, ev.Kind())
		if seen[key] {
			continue
		}
		seen[key] = true

		if d.onCooldown(ctx, h.SubjectID, ev.Kind(), store, now) {
			d.logger.Debug().
				Str("subject_id", h.SubjectID).
				Str("kind", string(ev.Kind())).
				Msg("alert suppressed by cooldown")
			continue
		}

		d.cache.Mark(h.SubjectID, ev.Kind(), now)
		if store != nil {
			rec := models.DedupRecord{SubjectID: h.SubjectID, Kind: ev.Kind(), LastSent: now}
			if err := store.SaveDedupRecord(ctx, rec); err != nil {
				d.logger.Warn().Err(err).
					Str("subject_id", h.SubjectID).
					Str("kind", string(ev.Kind())).
					Msg("failed to save dedup record")
			}
		}
		out = append(out, ev)
	}
	return out
}

func (d *Deduplicator) onCooldown(ctx context.Context, subjectID string, kind models.AlertKind, store DedupStore, now time.Time) bool {
	if store == nil {
		return d.cachedOnCooldown(subjectID, kind, now)
	}
	rec, err := store.FetchDedupRecord(ctx, subjectID, kind)
	if err != nil {
		d.logger.Warn().Err(err).
			Str("subject_id", subjectID).
			Str("kind", string(kind)).
			Msg("failed to fetch dedup record, falling back to local cooldown")
		return d.cachedOnCooldown(subjectID, kind, now)
	}
	if rec == nil || d.expired(rec.LastSent, now) {
		// Cleared or expired in the store: the local copy is stale too.
		d.cache.Forget(subjectID, kind)
		return false
	}
	d.cache.Mark(subjectID, kind, rec.LastSent)
	return true
}

func (d *Deduplicator) cachedOnCooldown(subjectID string, kind models.AlertKind, now time.Time) bool {
	last, ok := d.cache.LastSent(subjectID, kind)
	if !ok {
		return false
	}
	if d.expired(last, now) {
		d.cache.Forget(subjectID, kind)
		return false
	}
	return true
}

// sweep prunes expired cache entries at most once per window.
func (d *Deduplicator) sweep(now time.Time) {
	d.mu.Lock()
	due := d.lastSweep.IsZero() || now.Sub(d.lastSweep) > d.window
	if due {
		d.lastSweep = now
	}
	d.mu.Unlock()
	if !due {
		return
	}
	if n := d.cache.Prune(d.window, now); n > 0 {
		d.logger.Debug().Int("evicted", n).Msg("pruned local cooldown cache")
	}
}

// expired reports whether strictly more than the window has passed.
func (d *Deduplicator) expired(last, now time.Time) bool {
	return now.Sub(last) > d.window
}
