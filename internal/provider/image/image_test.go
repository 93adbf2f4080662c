package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
)

// mockObjectStorage records uploads in memory.
type mockObjectStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	uploadFn func(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

func newMockObjectStorage() *mockObjectStorage {
	return &mockObjectStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, size, contentType)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockObjectStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *mockObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestProvider_Fetch(t *testing.T) {
	body := testPNG(t, 64, 36)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	storage := newMockObjectStorage()
	p := NewProvider(storage, DefaultProviderConfig())

	id := model.MustRemoteIdentity(model.KindImage, srv.URL+"/vi/abc/hqdefault.png")
	got, err := p.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if got.Width != 64 || got.Height != 36 {
		t.Errorf("dimensions = %dx%d, want 64x36", got.Width, got.Height)
	}
	if got.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", got.ContentType)
	}
	if got.Size != int64(len(body)) {
		t.Errorf("Size = %d, want %d", got.Size, len(body))
	}
	if got.ObjectKey != p.ObjectKey(id.Hash()) {
		t.Errorf("ObjectKey = %q, want %q", got.ObjectKey, p.ObjectKey(id.Hash()))
	}
	if !got.Identity.Equal(id) {
		t.Errorf("Identity = %v, want %v", got.Identity, id)
	}
	if !bytes.Equal(storage.objects[got.ObjectKey], body) {
		t.Error("archived bytes differ from the fetched image")
	}
	if storage.types[got.ObjectKey] != "image/png" {
		t.Errorf("archived content type = %q", storage.types[got.ObjectKey])
	}
}

func TestProvider_Fetch_DetectsContentType(t *testing.T) {
	body := testPNG(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	p := NewProvider(newMockObjectStorage(), DefaultProviderConfig())
	got, err := p.Fetch(context.Background(), model.MustRemoteIdentity(model.KindImage, srv.URL+"/a"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", got.ContentType)
	}
}

func TestProvider_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		maxSize  int64
		wantErr  error
		notFound bool
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr:  repository.ErrNotFound,
			notFound: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: repository.ErrProvider,
		},
		{
			name: "not an image",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
			wantErr: repository.ErrProvider,
		},
		{
			name: "too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write(make([]byte, 2048))
			},
			maxSize: 1024,
			wantErr: repository.ErrProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := DefaultProviderConfig()
			cfg.Timeout = 5 * time.Second
			if tt.maxSize > 0 {
				cfg.MaxSize = tt.maxSize
			}
			storage := newMockObjectStorage()
			p := NewProvider(storage, cfg)

			_, err := p.Fetch(context.Background(), model.MustRemoteIdentity(model.KindImage, srv.URL+"/img"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !tt.notFound && errors.Is(err, repository.ErrNotFound) {
				t.Errorf("error = %v must not be ErrNotFound", err)
			}
			if len(storage.objects) != 0 {
				t.Error("nothing should be archived on failure")
			}
		})
	}
}

func TestProvider_Fetch_UploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(testPNG(t, 1, 1))
	}))
	defer srv.Close()

	storage := newMockObjectStorage()
	storage.uploadFn = func(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
		return repository.ErrBucketNotFound
	}
	p := NewProvider(storage, DefaultProviderConfig())

	_, err := p.Fetch(context.Background(), model.MustRemoteIdentity(model.KindImage, srv.URL+"/img"))
	if !errors.Is(err, repository.ErrBucketNotFound) {
		t.Errorf("error = %v, want ErrBucketNotFound", err)
	}
	if !errors.Is(err, repository.ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}

func TestProvider_Fetch_WithoutStorage(t *testing.T) {
	body := testPNG(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	p := NewProvider(nil, DefaultProviderConfig())
	got, err := p.Fetch(context.Background(), model.MustRemoteIdentity(model.KindImage, srv.URL+"/a.png"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.ObjectKey != "" {
		t.Errorf("ObjectKey = %q, want empty without storage", got.ObjectKey)
	}
	if got.Width != 8 {
		t.Errorf("Width = %d, want 8", got.Width)
	}
}
