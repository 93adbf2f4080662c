package usecase

import (
	"testing"
	"time"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

func TestStalenessPolicy_IsStale_Boundary(t *testing.T) {
	policy := NewStalenessPolicy(nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, kind := range model.Kinds {
		threshold := policy.Thresholds[kind]

		tests := []struct {
			name   string
			synced time.Time
			want   bool
		}{
			{name: "one second past threshold", synced: now.Add(-threshold - time.Second), want: true},
			{name: "exactly at threshold", synced: now.Add(-threshold), want: false},
			{name: "one second within threshold", synced: now.Add(-threshold + time.Second), want: false},
			{name: "just synced", synced: now, want: false},
		}

		for _, tt := range tests {
			t.Run(kind.String()+"/"+tt.name, func(t *testing.T) {
				synced := tt.synced
				if got := policy.IsStale(kind, &synced, now); got != tt.want {
					t.Errorf("IsStale() = %v, want %v", got, tt.want)
				}
			})
		}
	}
}

func TestStalenessPolicy_IsStale_NeverSynced(t *testing.T) {
	policy := NewStalenessPolicy(nil)

	if !policy.IsStale(model.KindVideo, nil, time.Now()) {
		t.Error("IsStale(nil) = false, want true")
	}
}

func TestStalenessPolicy_IsStale_UnknownKind(t *testing.T) {
	policy := NewStalenessPolicy(nil)
	now := time.Now()

	if !policy.IsStale(model.Kind(42), &now, now) {
		t.Error("IsStale(unknown kind) = false, want true")
	}
}

func TestNewStalenessPolicy_Overrides(t *testing.T) {
	policy := NewStalenessPolicy(map[model.Kind]time.Duration{
		model.KindVideo:   10 * time.Minute,
		model.KindChannel: 0,
	})

	if got := policy.Thresholds[model.KindVideo]; got != 10*time.Minute {
		t.Errorf("video threshold = %v, want 10m", got)
	}
	if got := policy.Thresholds[model.KindChannel]; got != 48*time.Hour {
		t.Errorf("channel threshold = %v, want default 48h", got)
	}
	if got := policy.Thresholds[model.KindCaption]; got != 24*time.Hour {
		t.Errorf("caption threshold = %v, want default 24h", got)
	}
}
