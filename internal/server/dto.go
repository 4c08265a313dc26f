// internal/server/dto.go
package server

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/dipshanrana/clipfetch/internal/media"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ScrapedInfo is the wire form of a media descriptor. Every field is
// optional; clients probe for what they need.
type ScrapedInfo struct {
	Title        string   `json:"title,omitempty"`
	VideoURL     string   `json:"videoUrl,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	AuthorName   string   `json:"authorName,omitempty"`
	Description  string   `json:"description,omitempty"`
	Cookies      string   `json:"cookies,omitempty"`
	UserAgent    string   `json:"userAgent,omitempty"`
	OriginURL    string   `json:"originUrl,omitempty"`
	ImageURLs    []string `json:"imageUrls,omitempty"`
	MediaType    string   `json:"mediaType,omitempty"`
}

// NewScrapedInfo flattens a descriptor and its session into the wire form.
func NewScrapedInfo(d *media.Descriptor) ScrapedInfo {
	return ScrapedInfo{
		Title:        d.Title,
		VideoURL:     d.VideoURL,
		ThumbnailURL: d.ThumbnailURL,
		AuthorName:   d.AuthorName,
		Description:  d.Description,
		Cookies:      d.Session.Cookies,
		UserAgent:    d.Session.UserAgent,
		OriginURL:    d.OriginURL,
		ImageURLs:    d.ImageURLs,
		MediaType:    string(d.Kind),
	}
}

type infoRequest struct {
	VideoURL string `json:"videoUrl"`
}

type downloadRequest struct {
	VideoURL       string `json:"videoUrl,omitempty"`
	DirectVideoURL string `json:"directVideoUrl,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	Cookies        string `json:"cookies,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`
	OriginURL      string `json:"originUrl,omitempty"`
}

type imagesRequest struct {
	VideoURL  string   `json:"videoUrl"`
	ImageURLs []string `json:"imageUrls"`
	Cookies   string   `json:"cookies,omitempty"`
	UserAgent string   `json:"userAgent,omitempty"`
}

type imageRequest struct {
	ImageURL string `json:"imageUrl"`
}

type instagramRequest struct {
	PostURL        string `json:"postUrl"`
	BrowserCookies string `json:"browserCookies,omitempty"`
}

// ImageResult reports the outcome of one entry in a bulk image download.
// Exactly one of Filename and Error is set.
type ImageResult struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)
