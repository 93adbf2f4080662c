package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
)

func testConfig() ResilienceConfig {
	cfg := DefaultResilienceConfig("test")
	cfg.Rate = 0 // unlimited
	cfg.OpenTimeout = time.Hour
	return cfg
}

func TestResilient_PassesThrough(t *testing.T) {
	id := model.MustRemoteIdentity(model.KindVideo, "https://www.youtube.com/watch?v=abc")
	next := repository.ProviderFunc[*model.Video](func(ctx context.Context, id model.RemoteIdentity) (*model.Video, error) {
		return &model.Video{Common: model.Common{Identity: id}, Title: "ok"}, nil
	})

	r := NewResilient[*model.Video](model.KindVideo, next, testConfig())
	got, err := r.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.Title != "ok" {
		t.Errorf("Title = %q, want ok", got.Title)
	}
}

func TestResilient_OpensAfterFailures(t *testing.T) {
	id := model.MustRemoteIdentity(model.KindVideo, "https://www.youtube.com/watch?v=abc")

	var calls atomic.Int32
	upstreamErr := &repository.ProviderError{Kind: model.KindVideo, StatusCode: 503, Err: errors.New("unavailable")}
	next := repository.ProviderFunc[*model.Video](func(ctx context.Context, id model.RemoteIdentity) (*model.Video, error) {
		calls.Add(1)
		return nil, upstreamErr
	})

	r := NewResilient[*model.Video](model.KindVideo, next, testConfig())
	for i := 0; i < 10; i++ {
		if _, err := r.Fetch(context.Background(), id); !errors.Is(err, upstreamErr) {
			t.Fatalf("call %d error = %v, want upstream error", i, err)
		}
	}

	if r.State() != gobreaker.StateOpen {
		t.Fatalf("State = %v, want open", r.State())
	}

	_, err := r.Fetch(context.Background(), id)
	if !errors.Is(err, repository.ErrProviderUnavailable) {
		t.Errorf("error = %v, want ErrProviderUnavailable", err)
	}
	if !errors.Is(err, repository.ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
	if n := calls.Load(); n != 10 {
		t.Errorf("upstream called %d times, want 10", n)
	}
}

func TestResilient_NotFoundDoesNotTrip(t *testing.T) {
	id := model.MustRemoteIdentity(model.KindChannel, "https://www.youtube.com/channel/UCgone")
	next := repository.ProviderFunc[*model.Channel](func(ctx context.Context, id model.RemoteIdentity) (*model.Channel, error) {
		return nil, &repository.ProviderError{Kind: model.KindChannel, StatusCode: 404, Err: repository.ErrNotFound}
	})

	r := NewResilient[*model.Channel](model.KindChannel, next, testConfig())
	for i := 0; i < 20; i++ {
		if _, err := r.Fetch(context.Background(), id); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("call %d error = %v, want ErrNotFound", i, err)
		}
	}

	if r.State() != gobreaker.StateClosed {
		t.Errorf("State = %v, want closed", r.State())
	}
}

func TestResilient_RateLimited(t *testing.T) {
	id := model.MustRemoteIdentity(model.KindVideo, "https://www.youtube.com/watch?v=abc")
	next := repository.ProviderFunc[*model.Video](func(ctx context.Context, id model.RemoteIdentity) (*model.Video, error) {
		return &model.Video{Common: model.Common{Identity: id}}, nil
	})

	cfg := testConfig()
	cfg.Rate = 0.001
	cfg.Burst = 1
	r := NewResilient[*model.Video](model.KindVideo, next, cfg)

	if _, err := r.Fetch(context.Background(), id); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}

	// The next token is ~1000s away; the deadline cannot be met.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := r.Fetch(ctx, id)
	if !errors.Is(err, repository.ErrProviderUnavailable) {
		t.Errorf("error = %v, want ErrProviderUnavailable", err)
	}
}
