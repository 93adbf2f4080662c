// Package image fetches remote images (thumbnails, avatars, banners) and
// archives their bytes in object storage.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdimage "image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
)

// DefaultMaxSize is the largest image that is archived.
const DefaultMaxSize = 10 << 20

// ProviderConfig holds configuration for the image provider.
type ProviderConfig struct {
	Timeout   time.Duration
	MaxSize   int64
	KeyPrefix string // Object key prefix (e.g., "images/")
	UserAgent string
}

// DefaultProviderConfig returns the default configuration.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:   15 * time.Second,
		MaxSize:   DefaultMaxSize,
		KeyPrefix: "images/",
		UserAgent: "fronttube/1.0",
	}
}

// Provider implements repository.Provider for images.
type Provider struct {
	http    *http.Client
	storage repository.ObjectStorage
	cfg     ProviderConfig
}

// NewProvider creates an image provider archiving into storage. A nil
// storage records metadata only.
func NewProvider(storage repository.ObjectStorage, cfg ProviderConfig) *Provider {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &Provider{
		http:    &http.Client{Timeout: cfg.Timeout},
		storage: storage,
		cfg:     cfg,
	}
}

// ObjectKey returns the storage key for the image with the given identity hash.
func (p *Provider) ObjectKey(hash uint64) string {
	return p.cfg.KeyPrefix + strconv.FormatUint(hash, 16)
}

// Fetch downloads the image and uploads it to object storage.
// The identity is returned unchanged; redirects are followed but not recorded.
func (p *Provider) Fetch(ctx context.Context, id model.RemoteIdentity) (*model.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id.URL(), nil)
	if err != nil {
		return nil, p.providerError(id, 0, err)
	}
	req.Header.Set("Accept", "image/*")
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	res, err := p.http.Do(req)
	if err != nil {
		return nil, p.providerError(id, 0, err)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return nil, p.providerError(id, res.StatusCode, repository.ErrNotFound)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, p.providerError(id, res.StatusCode, errors.New(res.Status))
	}

	if res.ContentLength > p.cfg.MaxSize {
		return nil, p.providerError(id, res.StatusCode, fmt.Errorf("image too large: %d bytes", res.ContentLength))
	}

	// Read one byte past the limit to detect oversized bodies without a Content-Length.
	data, err := io.ReadAll(io.LimitReader(res.Body, p.cfg.MaxSize+1))
	if err != nil {
		return nil, p.providerError(id, res.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > p.cfg.MaxSize {
		return nil, p.providerError(id, res.StatusCode, fmt.Errorf("image exceeds %d bytes", p.cfg.MaxSize))
	}

	contentType := mediaType(res.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, p.providerError(id, res.StatusCode, fmt.Errorf("unexpected content type %q", contentType))
	}

	img := &model.Image{
		Common:      model.Common{Identity: id},
		ContentType: contentType,
		Size:        int64(len(data)),
	}

	if cfg, _, err := stdimage.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	} else {
		slog.Debug("could not read image dimensions",
			"url", id.URL(),
			"content_type", contentType,
			"error", err,
		)
	}

	if p.storage == nil {
		return img, nil
	}

	img.ObjectKey = p.ObjectKey(id.Hash())
	if err := p.storage.Upload(ctx, img.ObjectKey, bytes.NewReader(data), img.Size, contentType); err != nil {
		return nil, p.providerError(id, 0, fmt.Errorf("archive image: %w", err))
	}

	return img, nil
}

func (p *Provider) providerError(id model.RemoteIdentity, status int, err error) error {
	return &repository.ProviderError{Kind: model.KindImage, URL: id.URL(), StatusCode: status, Err: err}
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return mt
}

var _ repository.Provider[*model.Image] = (*Provider)(nil)
