// Package invidious fetches YouTube metadata through an Invidious instance.
package invidious

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
)

// maxBodySize bounds API responses; caption files are the largest.
const maxBodySize = 8 << 20

// ClientConfig holds configuration for the Invidious client.
type ClientConfig struct {
	BaseURL   string        // Instance URL (e.g., https://yewtu.be)
	Timeout   time.Duration // Per-request timeout
	UserAgent string
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:   baseURL,
		Timeout:   10 * time.Second,
		UserAgent: "fronttube/1.0",
	}
}

// Client calls the Invidious v1 API.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
}

// NewClient creates a new Invidious client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid Invidious base URL %q", cfg.BaseURL)
	}
	return &Client{
		base:      base,
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}, nil
}

// FetchVideo implements repository.Provider for videos.
func (c *Client) FetchVideo(ctx context.Context, id model.RemoteIdentity) (*model.Video, error) {
	ref, err := parseVideoURL(id.URL())
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}

	var v apiVideo
	if err := c.getJSON(ctx, id, "/api/v1/videos/"+url.PathEscape(ref.VideoID), nil, &v); err != nil {
		return nil, err
	}
	if v.VideoID == "" {
		v.VideoID = ref.VideoID
	}

	canonical, err := model.NewRemoteIdentity(model.KindVideo, CanonicalVideoURL(v.VideoID))
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}

	video := &model.Video{
		Common:       model.Common{Identity: canonical},
		Title:        v.Title,
		Description:  v.Description,
		Author:       v.Author,
		Duration:     time.Duration(v.LengthSeconds) * time.Second,
		ViewCount:    int64(v.ViewCount),
		LikeCount:    int64(v.LikeCount),
		Keywords:     v.Keywords,
		LiveNow:      v.LiveNow,
		ThumbnailURL: c.absolute(largest(v.VideoThumbnails).URL),
	}
	if v.AuthorID != "" {
		video.ChannelURL = CanonicalChannelURL(v.AuthorID)
	}
	if v.Published > 0 {
		video.PublishedAt = time.Unix(int64(v.Published), 0).UTC()
	}
	return video, nil
}

// FetchChannel implements repository.Provider for channels. Handle URLs are
// resolved to their UC id first, so the returned identity may differ from
// the requested one.
func (c *Client) FetchChannel(ctx context.Context, id model.RemoteIdentity) (*model.Channel, error) {
	ref, err := parseChannelURL(id.URL())
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}

	ucid := ref.UCID
	if ucid == "" {
		var resolved apiResolvedURL
		q := url.Values{"url": []string{id.URL()}}
		if err := c.getJSON(ctx, id, "/api/v1/resolveurl", q, &resolved); err != nil {
			return nil, err
		}
		if resolved.UCID == "" {
			return nil, c.providerError(id, http.StatusNotFound, repository.ErrNotFound)
		}
		ucid = resolved.UCID
	}

	var ch apiChannel
	if err := c.getJSON(ctx, id, "/api/v1/channels/"+url.PathEscape(ucid), nil, &ch); err != nil {
		return nil, err
	}

	canonical, err := model.NewRemoteIdentity(model.KindChannel, CanonicalChannelURL(ucid))
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}

	return &model.Channel{
		Common:          model.Common{Identity: canonical},
		Name:            ch.Author,
		Description:     ch.Description,
		SubscriberCount: int64(ch.SubCount),
		AvatarURL:       c.absolute(largest(ch.AuthorThumbnails).URL),
		BannerURL:       c.absolute(largest(ch.AuthorBanners).URL),
		Verified:        ch.AuthorVerified,
	}, nil
}

// FetchCaption implements repository.Provider for caption tracks. The track
// is selected by the lang or label query parameter of the identity URL.
func (c *Client) FetchCaption(ctx context.Context, id model.RemoteIdentity) (*model.Caption, error) {
	ref, err := parseVideoURL(id.URL())
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}
	if ref.Lang == "" && ref.Label == "" {
		return nil, c.providerError(id, 0, fmt.Errorf("%w: caption URL needs lang or label", model.ErrInvalidURL))
	}

	captionsPath := "/api/v1/captions/" + url.PathEscape(ref.VideoID)

	var list apiCaptionList
	if err := c.getJSON(ctx, id, captionsPath, nil, &list); err != nil {
		return nil, err
	}

	track, ok := pickTrack(list.Captions, ref.Lang, ref.Label)
	if !ok {
		return nil, c.providerError(id, http.StatusNotFound, repository.ErrNotFound)
	}

	body, err := c.get(ctx, id, captionsPath, url.Values{"label": []string{track.Label}})
	if err != nil {
		return nil, err
	}

	canonical, err := model.NewRemoteIdentity(model.KindCaption, CanonicalCaptionURL(ref.VideoID, track.LanguageCode))
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}

	return &model.Caption{
		Common:        model.Common{Identity: canonical},
		VideoURL:      CanonicalVideoURL(ref.VideoID),
		Label:         track.Label,
		LanguageCode:  track.LanguageCode,
		AutoGenerated: strings.Contains(strings.ToLower(track.Label), "auto-generated"),
		Content:       string(body),
	}, nil
}

// FetchStream implements repository.Provider for stream formats. The format
// is selected by the itag query parameter; without one the best muxed
// stream is returned.
func (c *Client) FetchStream(ctx context.Context, id model.RemoteIdentity) (*model.Stream, error) {
	ref, err := parseVideoURL(id.URL())
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}

	var v apiVideo
	q := url.Values{"fields": []string{"videoId,formatStreams,adaptiveFormats"}}
	if err := c.getJSON(ctx, id, "/api/v1/videos/"+url.PathEscape(ref.VideoID), q, &v); err != nil {
		return nil, err
	}

	format, ok := pickFormat(v, ref.Itag)
	if !ok {
		return nil, c.providerError(id, http.StatusNotFound, repository.ErrNotFound)
	}

	canonical, err := model.NewRemoteIdentity(model.KindStream, CanonicalStreamURL(ref.VideoID, int(format.Itag)))
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}

	mime, _, _ := strings.Cut(format.Type, ";")
	quality := format.QualityLabel
	if quality == "" {
		quality = format.Quality
	}
	return &model.Stream{
		Common:      model.Common{Identity: canonical},
		VideoURL:    CanonicalVideoURL(ref.VideoID),
		Itag:        int(format.Itag),
		Container:   format.Container,
		MimeType:    strings.TrimSpace(mime),
		Quality:     quality,
		Resolution:  format.Resolution,
		Bitrate:     int64(format.Bitrate),
		PlaybackURL: c.absolute(format.URL),
	}, nil
}

// Videos returns the client as a video provider.
func (c *Client) Videos() repository.Provider[*model.Video] {
	return repository.ProviderFunc[*model.Video](c.FetchVideo)
}

// Channels returns the client as a channel provider.
func (c *Client) Channels() repository.Provider[*model.Channel] {
	return repository.ProviderFunc[*model.Channel](c.FetchChannel)
}

// Captions returns the client as a caption provider.
func (c *Client) Captions() repository.Provider[*model.Caption] {
	return repository.ProviderFunc[*model.Caption](c.FetchCaption)
}

// Streams returns the client as a stream provider.
func (c *Client) Streams() repository.Provider[*model.Stream] {
	return repository.ProviderFunc[*model.Stream](c.FetchStream)
}

func pickTrack(tracks []apiCaptionTrack, lang, label string) (apiCaptionTrack, bool) {
	for _, t := range tracks {
		if label != "" && t.Label == label {
			return t, true
		}
	}
	if lang == "" {
		return apiCaptionTrack{}, false
	}
	// Prefer a human-written track over the auto-generated one.
	var auto *apiCaptionTrack
	for i, t := range tracks {
		if !strings.EqualFold(t.LanguageCode, lang) {
			continue
		}
		if strings.Contains(strings.ToLower(t.Label), "auto-generated") {
			if auto == nil {
				auto = &tracks[i]
			}
			continue
		}
		return t, true
	}
	if auto != nil {
		return *auto, true
	}
	return apiCaptionTrack{}, false
}

func pickFormat(v apiVideo, itag string) (apiFormat, bool) {
	if itag == "" {
		if len(v.FormatStreams) == 0 {
			return apiFormat{}, false
		}
		// formatStreams are ordered from lowest to highest quality.
		return v.FormatStreams[len(v.FormatStreams)-1], true
	}

	want, err := strconv.Atoi(itag)
	if err != nil {
		return apiFormat{}, false
	}
	for _, list := range [][]apiFormat{v.FormatStreams, v.AdaptiveFormats} {
		for _, f := range list {
			if int(f.Itag) == want {
				return f, true
			}
		}
	}
	return apiFormat{}, false
}

func (c *Client) getJSON(ctx context.Context, id model.RemoteIdentity, path string, query url.Values, dest any) error {
	body, err := c.get(ctx, id, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return c.providerError(id, 0, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) get(ctx context.Context, id model.RemoteIdentity, path string, query url.Values) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, c.providerError(id, 0, err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, c.providerError(id, res.StatusCode, fmt.Errorf("read body: %w", err))
	}

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return nil, c.providerError(id, res.StatusCode, repository.ErrNotFound)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, c.providerError(id, res.StatusCode, errors.New(errorMessage(body, res.Status)))
	}
	return body, nil
}

// absolute resolves instance-relative URLs (e.g. /vi/... thumbnails) against the base URL.
func (c *Client) absolute(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

func (c *Client) providerError(id model.RemoteIdentity, status int, err error) error {
	return &repository.ProviderError{Kind: id.Kind(), URL: id.URL(), StatusCode: status, Err: err}
}

func errorMessage(body []byte, fallback string) string {
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return fallback
}
