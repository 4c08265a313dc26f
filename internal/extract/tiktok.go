// internal/extract/tiktok.go
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/media"
)

const (
	universalDataScriptID = "__UNIVERSAL_DATA_FOR_REHYDRATION__"
	sigiStateScriptID     = "SIGI_STATE"

	// Key into __DEFAULT_SCOPE__; the embedded dot must be escaped so gjson
	// does not treat it as a path separator.
	videoDetailPath = `__DEFAULT_SCOPE__.webapp\.video-detail.itemInfo.itemStruct`
)

// TikTokExtractor reads the hydration JSON TikTok ships with every video
// page. Posts are always treated as video.
type TikTokExtractor struct {
	logger *zap.Logger
}

func NewTikTokExtractor(logger *zap.Logger) *TikTokExtractor {
	return &TikTokExtractor{logger: logger.Named("tiktok")}
}

func (x *TikTokExtractor) Platform() media.Platform { return media.PlatformTikTok }

func (x *TikTokExtractor) Extract(_ context.Context, page *Page, originURL string) (*media.Descriptor, error) {
	// 1. Current hydration payload.
	if blob := page.Doc.ScriptByID(universalDataScriptID); blob != "" {
		if d := x.fromItemStruct(gjson.Get(blob, videoDetailPath)); d != nil {
			return d, nil
		}
		x.logger.Debug("Universal data present but no usable itemStruct.")
	}

	// 2. Legacy SIGI_STATE payload: first entry of ItemModule.
	if blob := page.Doc.ScriptByID(sigiStateScriptID); blob != "" {
		var d *media.Descriptor
		gjson.Get(blob, "ItemModule").ForEach(func(_, item gjson.Result) bool {
			d = x.fromItemStruct(item)
			return d == nil
		})
		if d != nil {
			return d, nil
		}
		x.logger.Debug("SIGI_STATE present but no usable ItemModule entry.")
	}

	// 3. Raw scan of every script for the playAddr literal.
	for _, s := range page.Doc.Scripts {
		if !strings.Contains(s.Text, `playAddr":"`) {
			continue
		}
		if u := ExtractJSONStringValue(s.Text, "playAddr"); media.IsHTTPURL(u) {
			x.logger.Debug("Recovered playAddr via raw script scan.")
			return &media.Descriptor{Kind: media.KindVideo, VideoURL: u, Title: page.Doc.Title}, nil
		}
	}

	return nil, fmt.Errorf("%w: no playable address in TikTok page %s", media.ErrNoMediaFound, originURL)
}

// fromItemStruct maps one itemStruct object onto a descriptor.
func (x *TikTokExtractor) fromItemStruct(item gjson.Result) *media.Descriptor {
	if !item.Exists() {
		return nil
	}
	playAddr := item.Get("video.playAddr").String()
	if !media.IsHTTPURL(playAddr) {
		return nil
	}
	return &media.Descriptor{
		Kind:         media.KindVideo,
		VideoURL:     playAddr,
		ThumbnailURL: item.Get("video.cover").String(),
		Description:  item.Get("desc").String(),
		Title:        item.Get("desc").String(),
		AuthorName:   authorName(item),
	}
}

// authorName reads the item author. Current payloads nest an object with a
// nickname; legacy SIGI_STATE entries carry the username as a plain string.
func authorName(item gjson.Result) string {
	if name := item.Get("author.nickname").String(); name != "" {
		return name
	}
	if author := item.Get("author"); author.Type == gjson.String {
		return author.String()
	}
	return ""
}
