package invidious

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

var (
	videoIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	channelIDPattern = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)
)

// videoRef is a parsed video, caption or stream identity.
type videoRef struct {
	VideoID string
	// Lang and Label select a caption track.
	Lang  string
	Label string
	// Itag selects a stream.
	Itag string
}

// channelRef is a parsed channel identity. Exactly one field is set.
type channelRef struct {
	UCID   string
	Handle string
}

func isYouTubeHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be" || host == "youtube-nocookie.com" || host == "music.youtube.com"
}

// parseVideoURL accepts watch, youtu.be, shorts, live and embed URLs.
func parseVideoURL(raw string) (videoRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return videoRef{}, fmt.Errorf("%w: %v", model.ErrInvalidURL, err)
	}
	if !isYouTubeHost(u.Host) {
		return videoRef{}, fmt.Errorf("%w: not a YouTube URL: %s", model.ErrInvalidURL, raw)
	}

	q := u.Query()
	ref := videoRef{
		Lang:  q.Get("lang"),
		Label: q.Get("label"),
		Itag:  q.Get("itag"),
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case strings.EqualFold(strings.TrimPrefix(strings.ToLower(u.Host), "www."), "youtu.be"):
		ref.VideoID = segments[0]
	case segments[0] == "watch" || (segments[0] == "api" && len(segments) > 1 && segments[1] == "timedtext"):
		ref.VideoID = q.Get("v")
	case len(segments) == 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live" || segments[0] == "v"):
		ref.VideoID = segments[1]
	}

	if !videoIDPattern.MatchString(ref.VideoID) {
		return videoRef{}, fmt.Errorf("%w: no video id in %s", model.ErrInvalidURL, raw)
	}
	return ref, nil
}

// parseChannelURL accepts /channel/UC..., /@handle and /c/name URLs.
func parseChannelURL(raw string) (channelRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return channelRef{}, fmt.Errorf("%w: %v", model.ErrInvalidURL, err)
	}
	if !isYouTubeHost(u.Host) {
		return channelRef{}, fmt.Errorf("%w: not a YouTube URL: %s", model.ErrInvalidURL, raw)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(segments) >= 2 && segments[0] == "channel" && channelIDPattern.MatchString(segments[1]):
		return channelRef{UCID: segments[1]}, nil
	case strings.HasPrefix(segments[0], "@") && len(segments[0]) > 1:
		return channelRef{Handle: segments[0]}, nil
	case len(segments) >= 2 && (segments[0] == "c" || segments[0] == "user"):
		return channelRef{Handle: segments[0] + "/" + segments[1]}, nil
	}
	return channelRef{}, fmt.Errorf("%w: no channel in %s", model.ErrInvalidURL, raw)
}

// CanonicalVideoURL is the identity URL a video resolves to.
func CanonicalVideoURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

// CanonicalChannelURL is the identity URL a channel resolves to.
func CanonicalChannelURL(ucid string) string {
	return "https://www.youtube.com/channel/" + url.PathEscape(ucid)
}

// CanonicalCaptionURL is the identity URL of a caption track.
func CanonicalCaptionURL(videoID, lang string) string {
	v := url.Values{}
	v.Set("v", videoID)
	v.Set("lang", lang)
	return "https://www.youtube.com/api/timedtext?" + v.Encode()
}

// CanonicalStreamURL is the identity URL of one stream format of a video.
func CanonicalStreamURL(videoID string, itag int) string {
	v := url.Values{}
	v.Set("v", videoID)
	v.Set("itag", fmt.Sprint(itag))
	return "https://www.youtube.com/watch?" + v.Encode()
}
