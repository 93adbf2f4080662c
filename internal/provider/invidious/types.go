package invidious

import (
	"bytes"
	"strconv"
)

// flexInt decodes integers that the API sometimes sends as strings.
type flexInt int64

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

type apiImage struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type apiFormat struct {
	URL          string  `json:"url"`
	Itag         flexInt `json:"itag"`
	Type         string  `json:"type"`
	Container    string  `json:"container"`
	Quality      string  `json:"quality"`
	QualityLabel string  `json:"qualityLabel"`
	Resolution   string  `json:"resolution"`
	Size         string  `json:"size"`
	Bitrate      flexInt `json:"bitrate"`
}

type apiVideo struct {
	VideoID         string      `json:"videoId"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Author          string      `json:"author"`
	AuthorID        string      `json:"authorId"`
	LengthSeconds   flexInt     `json:"lengthSeconds"`
	ViewCount       flexInt     `json:"viewCount"`
	LikeCount       flexInt     `json:"likeCount"`
	Published       flexInt     `json:"published"`
	Keywords        []string    `json:"keywords"`
	LiveNow         bool        `json:"liveNow"`
	VideoThumbnails []apiImage  `json:"videoThumbnails"`
	FormatStreams   []apiFormat `json:"formatStreams"`
	AdaptiveFormats []apiFormat `json:"adaptiveFormats"`
}

type apiChannel struct {
	Author           string     `json:"author"`
	AuthorID         string     `json:"authorId"`
	Description      string     `json:"description"`
	SubCount         flexInt    `json:"subCount"`
	AuthorVerified   bool       `json:"authorVerified"`
	AuthorThumbnails []apiImage `json:"authorThumbnails"`
	AuthorBanners    []apiImage `json:"authorBanners"`
}

type apiCaptionTrack struct {
	Label        string `json:"label"`
	LanguageCode string `json:"languageCode"`
	URL          string `json:"url"`
}

type apiCaptionList struct {
	Captions []apiCaptionTrack `json:"captions"`
}

type apiResolvedURL struct {
	UCID     string `json:"ucid"`
	PageType string `json:"pageType"`
}

type apiError struct {
	Error string `json:"error"`
}

// largest returns the widest image, or the zero value.
func largest(images []apiImage) apiImage {
	var best apiImage
	for _, img := range images {
		if img.Width > best.Width {
			best = img
		}
	}
	if best.URL == "" && len(images) > 0 {
		return images[0]
	}
	return best
}
