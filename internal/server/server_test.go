// internal/server/server_test.go
package server

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/config"
	"github.com/dipshanrana/clipfetch/internal/fetch"
	"github.com/dipshanrana/clipfetch/internal/media"
)

type stubExtractor struct {
	descriptor *media.Descriptor
	err        error

	gotURL     string
	gotCookies string
}

func (s *stubExtractor) Extract(_ context.Context, rawURL, cookieHeader string) (*media.Descriptor, error) {
	s.gotURL = rawURL
	s.gotCookies = cookieHeader
	if s.err != nil {
		return nil, s.err
	}
	return s.descriptor, nil
}

type bufferResult struct {
	contentType string
	data        []byte
	err         error
}

type stubFetcher struct {
	dir string
	// pathErrOn fails the nth FetchToPath call (1-based); 0 disables.
	pathErrOn int
	pathErr   error
	// buffers are consumed in order; the last one repeats.
	buffers []bufferResult
	proxy   *http.Response

	gotSessions []media.SessionContext
	gotURLs     []string
	gotRoutes   []fetch.Route
	bufferCalls int
}

func (s *stubFetcher) FetchToPath(_ context.Context, assetURL string, session media.SessionContext, _, _ string, route fetch.Route) (string, error) {
	s.gotURLs = append(s.gotURLs, assetURL)
	s.gotSessions = append(s.gotSessions, session)
	s.gotRoutes = append(s.gotRoutes, route)
	if s.pathErr != nil && (s.pathErrOn == 0 || s.pathErrOn == len(s.gotURLs)) {
		return "", s.pathErr
	}
	path := filepath.Join(s.dir, fmt.Sprintf("clip_%d.mp4", len(s.gotURLs)))
	if err := os.WriteFile(path, []byte("mp4 bytes"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *stubFetcher) FetchToBuffer(_ context.Context, assetURL string, session media.SessionContext, _ string) (string, []byte, error) {
	s.gotURLs = append(s.gotURLs, assetURL)
	s.gotSessions = append(s.gotSessions, session)
	idx := s.bufferCalls
	if idx >= len(s.buffers) {
		idx = len(s.buffers) - 1
	}
	s.bufferCalls++
	if idx < 0 {
		return "image/jpeg", []byte("jpeg"), nil
	}
	b := s.buffers[idx]
	return b.contentType, b.data, b.err
}

func (s *stubFetcher) ProxyFetch(_ context.Context, rawURL string) (*http.Response, error) {
	if !media.IsHTTPURL(rawURL) {
		return nil, fmt.Errorf("%w: bad url", media.ErrInvalidInput)
	}
	s.gotURLs = append(s.gotURLs, rawURL)
	return s.proxy, nil
}

func newTestServer(t *testing.T, extractor *stubExtractor, fetcher *stubFetcher) *Server {
	t.Helper()
	if fetcher.dir == "" {
		fetcher.dir = t.TempDir()
	}
	cfg := config.ServerConfig{
		Addr:            ":0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
	return NewServer(cfg, extractor, fetcher, zap.NewNop())
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func videoDescriptor() *media.Descriptor {
	return &media.Descriptor{
		Platform:  media.PlatformTikTok,
		Kind:      media.KindVideo,
		OriginURL: "https://www.tiktok.com/@u/video/123",
		VideoURL:  "https://v.tiktokcdn.com/abc.mp4",
		Title:     "hi",
		AuthorName: "u",
		ThumbnailURL: "https://t/c.jpg",
		Session: media.SessionContext{
			Cookies:   "ttwid=1",
			UserAgent: "UA/1",
			Referer:   "https://www.tiktok.com/@u/video/123",
		},
	}
}

func TestVideoInfo(t *testing.T) {
	extractor := &stubExtractor{descriptor: videoDescriptor()}
	s := newTestServer(t, extractor, &stubFetcher{})

	rec := doJSON(t, s, http.MethodPost, "/api/video/info",
		`{"videoUrl":"https://www.tiktok.com/@u/video/123"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://www.tiktok.com/@u/video/123", extractor.gotURL)

	var info ScrapedInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "https://v.tiktokcdn.com/abc.mp4", info.VideoURL)
	assert.Equal(t, "u", info.AuthorName)
	assert.Equal(t, "video", info.MediaType)
	assert.Equal(t, "ttwid=1", info.Cookies)
	assert.Equal(t, "UA/1", info.UserAgent)
}

func TestVideoInfoBadRequest(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, &stubFetcher{})

	assert.Equal(t, http.StatusBadRequest, doJSON(t, s, http.MethodPost, "/api/video/info", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, s, http.MethodPost, "/api/video/info", `not json`).Code)
}

func TestVideoInfoExtractionFailure(t *testing.T) {
	extractor := &stubExtractor{err: media.ErrNoMediaFound}
	s := newTestServer(t, extractor, &stubFetcher{})

	rec := doJSON(t, s, http.MethodPost, "/api/video/info", `{"videoUrl":"https://www.tiktok.com/@u/video/1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVideoDownloadDirectURL(t *testing.T) {
	fetcher := &stubFetcher{}
	s := newTestServer(t, &stubExtractor{}, fetcher)

	rec := doJSON(t, s, http.MethodPost, "/api/video/download",
		`{"directVideoUrl":"https://cdn/a.mp4","cookies":"sid=1","userAgent":"UA/2"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "mp4 bytes", rec.Body.String())

	// The fetch must carry exactly the caller-provided session.
	require.Len(t, fetcher.gotSessions, 1)
	assert.Equal(t, "sid=1", fetcher.gotSessions[0].Cookies)
	assert.Equal(t, "UA/2", fetcher.gotSessions[0].UserAgent)
}

func TestVideoDownloadViaExtraction(t *testing.T) {
	descriptor := videoDescriptor()
	fetcher := &stubFetcher{}
	s := newTestServer(t, &stubExtractor{descriptor: descriptor}, fetcher)

	rec := doJSON(t, s, http.MethodPost, "/api/video/download",
		`{"videoUrl":"https://www.tiktok.com/@u/video/123"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fetcher.gotURLs, 1)
	assert.Equal(t, descriptor.VideoURL, fetcher.gotURLs[0])
	// Cookies travel with the URL they were captured alongside.
	assert.Equal(t, descriptor.Session, fetcher.gotSessions[0])
}

func TestVideoDownloadNoURL(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, &stubFetcher{})
	assert.Equal(t, http.StatusBadRequest, doJSON(t, s, http.MethodPost, "/api/video/download", `{}`).Code)
}

func TestBulkImagesPartialFailure(t *testing.T) {
	fetcher := &stubFetcher{pathErrOn: 2, pathErr: fmt.Errorf("cdn said no")}
	s := newTestServer(t, &stubExtractor{}, fetcher)

	// Second image fails, batch still succeeds.
	body := `{"videoUrl":"https://www.tiktok.com/@u/photo/1","imageUrls":["https://cdn/1.jpg","https://cdn/2.jpg"]}`
	rec := doJSON(t, s, http.MethodPost, "/api/video/download/images", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []ImageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, statusSuccess, results[0].Status)
	assert.NotEmpty(t, results[0].Filename)
	assert.Equal(t, 1, results[1].Index)
	assert.Equal(t, statusFailed, results[1].Status)
	assert.Contains(t, results[1].Error, "cdn said no")
	// Images always take the direct route, they are plain CDN objects.
	for _, route := range fetcher.gotRoutes {
		assert.Equal(t, fetch.RouteDirect, route)
	}
}

func TestBulkImagesEmptyList(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, &stubFetcher{})
	rec := doJSON(t, s, http.MethodPost, "/api/video/download/images",
		`{"videoUrl":"https://x","imageUrls":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageDownload(t *testing.T) {
	fetcher := &stubFetcher{buffers: []bufferResult{{contentType: "image/png", data: []byte("png bytes")}}}
	s := newTestServer(t, &stubExtractor{}, fetcher)

	rec := doJSON(t, s, http.MethodPost, "/api/image/download", `{"imageUrl":"https://cdn/a.png"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "instagram_image_")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".png")
	assert.Equal(t, "png bytes", rec.Body.String())
}

func TestInstagramDownloadVideoPost(t *testing.T) {
	descriptor := videoDescriptor()
	descriptor.Platform = media.PlatformInstagram
	s := newTestServer(t, &stubExtractor{descriptor: descriptor}, &stubFetcher{})

	rec := doJSON(t, s, http.MethodPost, "/api/instagram/download",
		`{"postUrl":"https://www.instagram.com/reel/ABC/"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Error"))
}

func TestInstagramDownloadNoMedia(t *testing.T) {
	s := newTestServer(t, &stubExtractor{err: media.ErrNoMediaFound}, &stubFetcher{})

	rec := doJSON(t, s, http.MethodPost, "/api/instagram/download",
		`{"postUrl":"https://www.instagram.com/p/ABC/"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Error"))
}

func TestInstagramDownloadSingleImage(t *testing.T) {
	descriptor := &media.Descriptor{
		Platform:  media.PlatformInstagram,
		Kind:      media.KindImage,
		OriginURL: "https://www.instagram.com/p/ABC/",
		ImageURLs: []string{"https://scontent.cdninstagram.com/a.jpg"},
	}
	fetcher := &stubFetcher{buffers: []bufferResult{{contentType: "image/jpeg", data: []byte("jpeg")}}}
	s := newTestServer(t, &stubExtractor{descriptor: descriptor}, fetcher)

	rec := doJSON(t, s, http.MethodPost, "/api/instagram/download",
		`{"postUrl":"https://www.instagram.com/p/ABC/"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.NotEqual(t, "application/zip", rec.Header().Get("Content-Type"))
}

func TestInstagramDownloadCarouselZip(t *testing.T) {
	descriptor := &media.Descriptor{
		Platform:  media.PlatformInstagram,
		Kind:      media.KindCarousel,
		OriginURL: "https://www.instagram.com/p/ABC/",
		ImageURLs: []string{
			"https://scontent.cdninstagram.com/1.jpg",
			"https://scontent.cdninstagram.com/2.png",
			"https://scontent.cdninstagram.com/3.jpg",
		},
	}
	fetcher := &stubFetcher{buffers: []bufferResult{
		{contentType: "image/jpeg", data: []byte("one")},
		{contentType: "image/png", data: []byte("two")},
		{err: fmt.Errorf("cdn said no")},
	}}
	s := newTestServer(t, &stubExtractor{descriptor: descriptor}, fetcher)

	rec := doJSON(t, s, http.MethodPost, "/api/instagram/download",
		`{"postUrl":"https://www.instagram.com/p/ABC/","browserCookies":"sessionid=s"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `instagram_images.zip`)

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	// The failed third image is skipped, not fatal.
	require.Len(t, zr.File, 2)
	assert.Equal(t, "image_1.jpg", zr.File[0].Name)
	assert.Equal(t, "image_2.png", zr.File[1].Name)

	f, err := zr.File[0].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, "one", string(content))
}

func TestInstagramDownloadForwardsCookies(t *testing.T) {
	extractor := &stubExtractor{err: media.ErrNoMediaFound}
	s := newTestServer(t, extractor, &stubFetcher{})

	doJSON(t, s, http.MethodPost, "/api/instagram/download",
		`{"postUrl":"https://www.instagram.com/p/ABC/","browserCookies":"sessionid=s"}`)

	assert.Equal(t, "sessionid=s", extractor.gotCookies)
}

func TestImageProxy(t *testing.T) {
	fetcher := &stubFetcher{proxy: &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"image/webp"}},
		Body:       io.NopCloser(strings.NewReader("webp bytes")),
	}}
	s := newTestServer(t, &stubExtractor{}, fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/image/proxy?url=https%3A%2F%2Fcdninstagram.com%2Fabc.webp", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "webp bytes", rec.Body.String())
	assert.Equal(t, "https://cdninstagram.com/abc.webp", fetcher.gotURLs[0])
}

func TestImageProxyUpstreamStatusPassthrough(t *testing.T) {
	fetcher := &stubFetcher{proxy: &http.Response{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("denied")),
	}}
	s := newTestServer(t, &stubExtractor{}, fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/image/proxy?url=https%3A%2F%2Fcdn%2Fx.jpg", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "denied", rec.Body.String())
}

func TestImageProxyBadURL(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, &stubFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/image/proxy", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/image/proxy?url=not-a-url", nil)
	rec = httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, &stubFetcher{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, &stubFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
