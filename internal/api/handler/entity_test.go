package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/usecase"
)

const watchURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// mockResolver provides a configurable mock for Resolver.
type mockResolver struct {
	resolveFn     func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error)
	resolveManyFn func(ctx context.Context, kind model.Kind, ids []model.RemoteIdentity) ([]model.CacheResult[model.Entity], error)
	refreshFn     func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error)
	invalidateFn  func(ctx context.Context, id model.RemoteIdentity, scope usecase.InvalidateScope) error
}

func (m *mockResolver) Resolve(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, id)
	}
	return model.CacheResult[model.Entity]{Status: model.StatusMiss, Identity: id, Err: repository.ErrNotFound}, nil
}

func (m *mockResolver) ResolveMany(ctx context.Context, kind model.Kind, ids []model.RemoteIdentity) ([]model.CacheResult[model.Entity], error) {
	if m.resolveManyFn != nil {
		return m.resolveManyFn(ctx, kind, ids)
	}
	return nil, nil
}

func (m *mockResolver) Refresh(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, id)
	}
	return model.CacheResult[model.Entity]{Status: model.StatusMiss, Identity: id}, nil
}

func (m *mockResolver) Invalidate(ctx context.Context, id model.RemoteIdentity, scope usecase.InvalidateScope) error {
	if m.invalidateFn != nil {
		return m.invalidateFn(ctx, id, scope)
	}
	return nil
}

func newRouter(repo Resolver) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/v1", NewEntityHandler(repo, 3).Routes)
	return r
}

func entityPath(kind, rawURL string) string {
	return "/v1/" + kind + "?" + url.Values{"url": {rawURL}}.Encode()
}

func video(id model.RemoteIdentity, title string) *model.Video {
	synced := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.Video{
		Common: model.Common{Hash: id.Hash(), Identity: id, LastSyncedAt: &synced},
		Title:  title,
	}
}

func TestEntityHandler_Get(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(m *mockResolver)
		wantStatusCode int
		wantCache      string
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name: "hit",
			path: entityPath("video", watchURL),
			setupMock: func(m *mockResolver) {
				m.resolveFn = func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
					return model.CacheResult[model.Entity]{Status: model.StatusHit, Identity: id, Entity: video(id, "Never Gonna")}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantCache:      "hit",
			checkResponse: func(t *testing.T, body []byte) {
				var resp struct {
					Status string `json:"status"`
					Kind   string `json:"kind"`
					URL    string `json:"url"`
					Entity struct {
						Title string `json:"title"`
					} `json:"entity"`
				}
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.Status != "hit" || resp.Kind != "video" || resp.URL != watchURL {
					t.Errorf("response = %+v", resp)
				}
				if resp.Entity.Title != "Never Gonna" {
					t.Errorf("entity title = %q", resp.Entity.Title)
				}
			},
		},
		{
			name: "degraded hit",
			path: entityPath("video", watchURL),
			setupMock: func(m *mockResolver) {
				m.resolveFn = func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
					return model.CacheResult[model.Entity]{
						Status: model.StatusHit, Identity: id, Entity: video(id, "old"),
						Err: &repository.ProviderError{Kind: model.KindVideo, URL: id.URL(), StatusCode: 500, Err: repository.ErrProvider},
					}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantCache:      "stale",
			checkResponse: func(t *testing.T, body []byte) {
				if !strings.Contains(string(body), `"degraded":true`) {
					t.Errorf("body = %s, want degraded flag", body)
				}
			},
		},
		{
			name: "refreshed",
			path: entityPath("video", watchURL),
			setupMock: func(m *mockResolver) {
				m.resolveFn = func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
					return model.CacheResult[model.Entity]{Status: model.StatusRefreshed, Identity: id, Entity: video(id, "new")}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantCache:      "refreshed",
		},
		{
			name:           "miss",
			path:           entityPath("video", watchURL),
			wantStatusCode: http.StatusNotFound,
			wantCache:      "miss",
		},
		{
			name: "provider error",
			path: entityPath("video", watchURL),
			setupMock: func(m *mockResolver) {
				m.resolveFn = func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
					return model.CacheResult[model.Entity]{Status: model.StatusError, Identity: id, Err: errors.New("boom")}, nil
				}
			},
			wantStatusCode: http.StatusBadGateway,
			wantCache:      "error",
		},
		{
			name: "provider unavailable",
			path: entityPath("video", watchURL),
			setupMock: func(m *mockResolver) {
				m.resolveFn = func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
					err := &repository.ProviderError{Kind: model.KindVideo, Err: fmt.Errorf("%w: open", repository.ErrProviderUnavailable)}
					return model.CacheResult[model.Entity]{Status: model.StatusError, Identity: id, Err: err}, nil
				}
			},
			wantStatusCode: http.StatusServiceUnavailable,
		},
		{
			name: "storage error",
			path: entityPath("channel", "https://www.youtube.com/@rick"),
			setupMock: func(m *mockResolver) {
				m.resolveFn = func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
					err := repository.StorageError("find", errors.New("disk full"))
					return model.CacheResult[model.Entity]{Status: model.StatusError, Identity: id, Err: err}, err
				}
			},
			wantStatusCode: http.StatusServiceUnavailable,
			checkResponse: func(t *testing.T, body []byte) {
				if !strings.Contains(string(body), "storage_unavailable") {
					t.Errorf("body = %s", body)
				}
			},
		},
		{
			name:           "unknown kind",
			path:           entityPath("playlist", watchURL),
			wantStatusCode: http.StatusNotFound,
		},
		{
			name:           "missing url",
			path:           "/v1/video",
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "relative url",
			path:           entityPath("video", "/watch?v=dQw4w9WgXcQ"),
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockResolver{}
			if tt.setupMock != nil {
				tt.setupMock(mock)
			}

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			newRouter(mock).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("status code = %v, want %v (body %s)", rec.Code, tt.wantStatusCode, rec.Body.String())
			}
			if tt.wantCache != "" && rec.Header().Get("X-Cache") != tt.wantCache {
				t.Errorf("X-Cache = %q, want %q", rec.Header().Get("X-Cache"), tt.wantCache)
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, rec.Body.Bytes())
			}
		})
	}
}

func TestEntityHandler_Get_PassesIdentity(t *testing.T) {
	var got model.RemoteIdentity
	mock := &mockResolver{
		resolveFn: func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
			got = id
			return model.CacheResult[model.Entity]{Status: model.StatusMiss, Identity: id}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, entityPath("caption", "HTTPS://WWW.YouTube.com/api/timedtext?v=dQw4w9WgXcQ&lang=en#t"), nil)
	newRouter(mock).ServeHTTP(httptest.NewRecorder(), req)

	want := model.MustRemoteIdentity(model.KindCaption, "https://www.youtube.com/api/timedtext?lang=en&v=dQw4w9WgXcQ")
	if !got.Equal(want) {
		t.Errorf("identity = %v, want %v", got, want)
	}
}

func TestEntityHandler_Batch(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(m *mockResolver)
		wantStatusCode int
		wantStatuses   []string
	}{
		{
			name: "mixed results keep order",
			body: `{"urls":["https://youtu.be/aaaaaaaaaaa","https://youtu.be/bbbbbbbbbbb","https://youtu.be/ccccccccccc"]}`,
			setupMock: func(m *mockResolver) {
				m.resolveManyFn = func(ctx context.Context, kind model.Kind, ids []model.RemoteIdentity) ([]model.CacheResult[model.Entity], error) {
					if kind != model.KindVideo {
						t.Errorf("kind = %v, want video", kind)
					}
					return []model.CacheResult[model.Entity]{
						{Status: model.StatusHit, Identity: ids[0], Entity: video(ids[0], "a")},
						{Status: model.StatusMiss, Identity: ids[1], Err: repository.ErrNotFound},
						{Status: model.StatusRefreshed, Identity: ids[2], Entity: video(ids[2], "c")},
					}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantStatuses:   []string{"hit", "miss", "refreshed"},
		},
		{
			name:           "invalid json",
			body:           `{"urls":`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "empty batch",
			body:           `{"urls":[]}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "too many urls",
			body:           `{"urls":["https://a.example/1","https://a.example/2","https://a.example/3","https://a.example/4"]}`,
			wantStatusCode: http.StatusRequestEntityTooLarge,
		},
		{
			name:           "one invalid url rejects batch",
			body:           `{"urls":["https://youtu.be/aaaaaaaaaaa","not a url"]}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "storage error",
			body: `{"urls":["https://youtu.be/aaaaaaaaaaa"]}`,
			setupMock: func(m *mockResolver) {
				m.resolveManyFn = func(ctx context.Context, kind model.Kind, ids []model.RemoteIdentity) ([]model.CacheResult[model.Entity], error) {
					return nil, repository.StorageError("find many", errors.New("locked"))
				}
			},
			wantStatusCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockResolver{}
			if tt.setupMock != nil {
				tt.setupMock(mock)
			}

			req := httptest.NewRequest(http.MethodPost, "/v1/video/batch", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			newRouter(mock).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Fatalf("status code = %v, want %v (body %s)", rec.Code, tt.wantStatusCode, rec.Body.String())
			}
			if tt.wantStatuses == nil {
				return
			}

			var raw struct {
				Results []struct {
					Status string `json:"status"`
				} `json:"results"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if len(raw.Results) != len(tt.wantStatuses) {
				t.Fatalf("results = %d, want %d", len(raw.Results), len(tt.wantStatuses))
			}
			for i, want := range tt.wantStatuses {
				if raw.Results[i].Status != want {
					t.Errorf("results[%d].status = %q, want %q", i, raw.Results[i].Status, want)
				}
			}
		})
	}
}

func TestEntityHandler_Refresh(t *testing.T) {
	var refreshed bool
	mock := &mockResolver{
		refreshFn: func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
			refreshed = true
			return model.CacheResult[model.Entity]{Status: model.StatusRefreshed, Identity: id, Entity: video(id, "fresh")}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/video/refresh?"+url.Values{"url": {watchURL}}.Encode(), nil)
	rec := httptest.NewRecorder()
	newRouter(mock).ServeHTTP(rec, req)

	if !refreshed {
		t.Fatal("Refresh was not called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %v, want 200", rec.Code)
	}
}

func TestEntityHandler_Invalidate(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		invalidateErr  error
		wantScope      usecase.InvalidateScope
		wantStatusCode int
	}{
		{name: "memory only", query: "", wantScope: usecase.InvalidateMemory, wantStatusCode: http.StatusNoContent},
		{name: "persisted", query: "&persisted=true", wantScope: usecase.InvalidatePersisted, wantStatusCode: http.StatusNoContent},
		{name: "persisted false", query: "&persisted=0", wantScope: usecase.InvalidateMemory, wantStatusCode: http.StatusNoContent},
		{name: "bad flag", query: "&persisted=maybe", wantStatusCode: http.StatusBadRequest},
		{
			name:           "storage error",
			query:          "&persisted=true",
			invalidateErr:  repository.StorageError("delete", errors.New("read-only")),
			wantScope:      usecase.InvalidatePersisted,
			wantStatusCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotScope usecase.InvalidateScope
			called := false
			mock := &mockResolver{
				invalidateFn: func(ctx context.Context, id model.RemoteIdentity, scope usecase.InvalidateScope) error {
					called = true
					gotScope = scope
					return tt.invalidateErr
				},
			}

			req := httptest.NewRequest(http.MethodDelete, entityPath("image", "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg")+tt.query, nil)
			rec := httptest.NewRecorder()
			newRouter(mock).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("status code = %v, want %v", rec.Code, tt.wantStatusCode)
			}
			if tt.wantStatusCode == http.StatusBadRequest {
				if called {
					t.Error("Invalidate should not be called for a bad request")
				}
				return
			}
			if gotScope != tt.wantScope {
				t.Errorf("scope = %v, want %v", gotScope, tt.wantScope)
			}
		})
	}
}

func TestReady(t *testing.T) {
	deps := map[string]Pinger{
		"store": PingFunc(func(ctx context.Context) error { return nil }),
		"redis": PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	}

	rec := httptest.NewRecorder()
	Ready(deps, time.Second)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %v, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Checks["store"] != "ok" || resp.Checks["redis"] != "connection refused" {
		t.Errorf("checks = %v", resp.Checks)
	}
}
