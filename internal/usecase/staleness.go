package usecase

import (
	"time"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

// DefaultStalenessThresholds returns how long a persisted snapshot of each kind
// may be served before it must be refreshed from the provider.
func DefaultStalenessThresholds() map[model.Kind]time.Duration {
	return map[model.Kind]time.Duration{
		model.KindVideo:   3 * time.Hour,
		model.KindChannel: 48 * time.Hour,
		model.KindImage:   5 * time.Hour,
		model.KindCaption: 24 * time.Hour,
		// Stream playback URLs expire upstream after a few hours.
		model.KindStream: 1 * time.Hour,
	}
}

// StalenessPolicy decides whether persisted data must be refreshed.
type StalenessPolicy struct {
	Thresholds map[model.Kind]time.Duration
}

// NewStalenessPolicy builds a policy from the defaults, overridden by thresholds.
func NewStalenessPolicy(thresholds map[model.Kind]time.Duration) StalenessPolicy {
	merged := DefaultStalenessThresholds()
	for kind, d := range thresholds {
		if d > 0 {
			merged[kind] = d
		}
	}
	return StalenessPolicy{Thresholds: merged}
}

// IsStale reports whether data last synced at lastSyncedAt is too old at now.
// A nil lastSyncedAt (never synced) and an unknown kind are always stale.
// Data exactly threshold old is still fresh.
func (p StalenessPolicy) IsStale(kind model.Kind, lastSyncedAt *time.Time, now time.Time) bool {
	if lastSyncedAt == nil {
		return true
	}
	threshold, ok := p.Thresholds[kind]
	if !ok {
		return true
	}
	return now.Sub(*lastSyncedAt) > threshold
}
