// internal/extract/pexels.go
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/media"
)

// PexelsExtractor reads schema.org structured data. Pexels embeds a full
// VideoObject in ld+json, and enough other sites do the same that this
// cascade doubles as the generic fallback.
type PexelsExtractor struct {
	logger *zap.Logger
}

func NewPexelsExtractor(logger *zap.Logger) *PexelsExtractor {
	return &PexelsExtractor{logger: logger.Named("pexels")}
}

func (x *PexelsExtractor) Platform() media.Platform { return media.PlatformPexels }

func (x *PexelsExtractor) Extract(_ context.Context, page *Page, originURL string) (*media.Descriptor, error) {
	for _, blob := range page.Doc.ScriptsByType("application/ld+json") {
		if d := x.fromLDJSON(blob); d != nil {
			x.fillMeta(d, page.Doc)
			return d, nil
		}
	}

	// og:video is the lesser cousin of a VideoObject but still a direct URL.
	if ogVideo := page.Doc.Meta["og:video"]; media.IsHTTPURL(ogVideo) {
		d := &media.Descriptor{Kind: media.KindVideo, VideoURL: ogVideo}
		x.fillMeta(d, page.Doc)
		return d, nil
	}

	return nil, fmt.Errorf("%w: no VideoObject in structured data for %s", media.ErrNoMediaFound, originURL)
}

// fromLDJSON pulls a VideoObject out of one ld+json blob. The blob may be a
// single object, an array, or a @graph wrapper.
func (x *PexelsExtractor) fromLDJSON(blob string) *media.Descriptor {
	if !gjson.Valid(blob) {
		x.logger.Debug("Skipping unparsable ld+json block.")
		return nil
	}

	var found *media.Descriptor
	visit := func(obj gjson.Result) bool {
		if !strings.EqualFold(obj.Get("@type").String(), "VideoObject") {
			return true
		}
		contentURL := obj.Get("contentUrl").String()
		if !media.IsHTTPURL(contentURL) {
			return true
		}
		found = &media.Descriptor{
			Kind:         media.KindVideo,
			VideoURL:     contentURL,
			ThumbnailURL: obj.Get("thumbnailUrl").String(),
			Description:  obj.Get("description").String(),
			AuthorName:   obj.Get("author.name").String(),
			Title:        obj.Get("name").String(),
		}
		return false
	}

	root := gjson.Parse(blob)
	switch {
	case root.IsArray():
		root.ForEach(func(_, item gjson.Result) bool { return visit(item) })
	case root.Get("@graph").Exists():
		root.Get("@graph").ForEach(func(_, item gjson.Result) bool { return visit(item) })
	default:
		visit(root)
	}
	return found
}

func (x *PexelsExtractor) fillMeta(d *media.Descriptor, doc *Document) {
	if d.Title == "" {
		d.Title = doc.Title
	}
	if d.ThumbnailURL == "" {
		d.ThumbnailURL = doc.Meta["og:image"]
	}
	if d.Description == "" {
		d.Description = doc.Meta["og:description"]
	}
}
