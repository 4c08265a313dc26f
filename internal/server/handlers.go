// internal/server/handlers.go
package server

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/fetch"
	"github.com/dipshanrana/clipfetch/internal/media"
)

// handleVideoInfo runs the extraction cascade and returns the descriptor as
// JSON without downloading anything.
func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoURL == "" {
		s.respondError(w, http.StatusBadRequest, "request body must carry videoUrl")
		return
	}

	descriptor, err := s.extractor.Extract(r.Context(), req.VideoURL, "")
	if err != nil {
		s.respondExtractionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, NewScrapedInfo(descriptor))
}

// handleVideoDownload resolves a post (or takes a pre-resolved direct URL),
// downloads the asset and streams it back as an attachment.
func (s *Server) handleVideoDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	switch {
	case req.DirectVideoURL != "":
		session := media.SessionContext{Cookies: req.Cookies, UserAgent: req.UserAgent}
		path, err := s.fetcher.FetchToPath(r.Context(), req.DirectVideoURL, session, req.OriginURL, req.OriginURL, fetch.RouteAuto)
		if err != nil {
			s.respondExtractionError(w, err)
			return
		}
		s.serveFile(w, path, "video/mp4")

	case req.ImageURL != "":
		session := media.SessionContext{Cookies: req.Cookies, UserAgent: req.UserAgent}
		contentType, data, err := s.fetcher.FetchToBuffer(r.Context(), req.ImageURL, session, req.OriginURL)
		if err != nil {
			s.respondExtractionError(w, err)
			return
		}
		serveAttachment(w, contentType, imageFilename(contentType), data)

	case req.VideoURL != "":
		s.extractAndDownload(w, r, req.VideoURL, req.Cookies)

	default:
		s.respondError(w, http.StatusBadRequest, "request body must carry videoUrl, directVideoUrl or imageUrl")
	}
}

func (s *Server) extractAndDownload(w http.ResponseWriter, r *http.Request, postURL, cookies string) {
	descriptor, err := s.extractor.Extract(r.Context(), postURL, cookies)
	if err != nil {
		s.respondExtractionError(w, err)
		return
	}

	if descriptor.VideoURL != "" {
		path, err := s.fetcher.FetchToPath(r.Context(), descriptor.VideoURL, descriptor.Session,
			descriptor.Session.Referer, descriptor.OriginURL, fetch.RouteAuto)
		if err != nil {
			s.respondExtractionError(w, err)
			return
		}
		s.serveFile(w, path, "video/mp4")
		return
	}

	// Image posts still get their first asset back; the caller asked for
	// the post's media, not specifically a video.
	if len(descriptor.ImageURLs) > 0 {
		contentType, data, err := s.fetcher.FetchToBuffer(r.Context(), descriptor.ImageURLs[0],
			descriptor.Session, descriptor.Session.Referer)
		if err != nil {
			s.respondExtractionError(w, err)
			return
		}
		serveAttachment(w, contentType, imageFilename(contentType), data)
		return
	}

	s.respondExtractionError(w, media.ErrNoMediaFound)
}

// handleBulkImages downloads each listed image to disk and reports per-image
// outcomes. Individual failures never abort the batch.
func (s *Server) handleBulkImages(w http.ResponseWriter, r *http.Request) {
	var req imagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.ImageURLs) == 0 {
		s.respondError(w, http.StatusBadRequest, "imageUrls must not be empty")
		return
	}

	session := media.SessionContext{Cookies: req.Cookies, UserAgent: req.UserAgent, Referer: req.VideoURL}
	results := make([]ImageResult, 0, len(req.ImageURLs))
	for i, imageURL := range req.ImageURLs {
		path, err := s.fetcher.FetchToPath(r.Context(), imageURL, session, req.VideoURL, req.VideoURL, fetch.RouteDirect)
		if err != nil {
			s.logger.Debug("Bulk image download failed.", zap.Int("index", i), zap.Error(err))
			results = append(results, ImageResult{Index: i, Status: statusFailed, Error: err.Error()})
			continue
		}
		results = append(results, ImageResult{Index: i, Status: statusSuccess, Filename: filepath.Base(path)})
	}
	s.respondJSON(w, http.StatusOK, results)
}

// handleImageDownload fetches one image into memory and returns it as an
// attachment.
func (s *Server) handleImageDownload(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageURL == "" {
		s.respondError(w, http.StatusBadRequest, "request body must carry imageUrl")
		return
	}

	contentType, data, err := s.fetcher.FetchToBuffer(r.Context(), req.ImageURL, media.SessionContext{}, "")
	if err != nil {
		s.respondExtractionError(w, err)
		return
	}
	serveAttachment(w, contentType, imageFilename(contentType), data)
}

// handleInstagramDownload extracts an Instagram post and returns its images:
// a single image directly, several as a ZIP bundle. Video posts belong to
// the video endpoint.
func (s *Server) handleInstagramDownload(w http.ResponseWriter, r *http.Request) {
	var req instagramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostURL == "" {
		s.respondError(w, http.StatusBadRequest, "request body must carry postUrl")
		return
	}

	descriptor, err := s.extractor.Extract(r.Context(), req.PostURL, req.BrowserCookies)
	if err != nil {
		if errors.Is(err, media.ErrNoMediaFound) || errors.Is(err, media.ErrLoginWalled) {
			s.respondHeaderError(w, http.StatusNotFound, "no media found in post")
			return
		}
		s.respondExtractionError(w, err)
		return
	}

	if descriptor.Kind == media.KindVideo {
		s.respondHeaderError(w, http.StatusBadRequest, "post is a video, use /api/video/download")
		return
	}
	if len(descriptor.ImageURLs) == 0 {
		s.respondHeaderError(w, http.StatusNotFound, "no media found in post")
		return
	}

	if len(descriptor.ImageURLs) == 1 {
		contentType, data, err := s.fetcher.FetchToBuffer(r.Context(), descriptor.ImageURLs[0],
			descriptor.Session, descriptor.Session.Referer)
		if err != nil {
			s.respondExtractionError(w, err)
			return
		}
		serveAttachment(w, contentType, imageFilename(contentType), data)
		return
	}

	s.serveImageBundle(w, r, descriptor)
}

// serveImageBundle streams a ZIP of the carousel's images. Per-image fetch
// failures are logged and skipped; the bundle succeeds if anything landed.
func (s *Server) serveImageBundle(w http.ResponseWriter, r *http.Request, descriptor *media.Descriptor) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="instagram_images.zip"`)

	zw := zip.NewWriter(w)
	written := 0
	for i, imageURL := range descriptor.ImageURLs {
		contentType, data, err := s.fetcher.FetchToBuffer(r.Context(), imageURL,
			descriptor.Session, descriptor.Session.Referer)
		if err != nil {
			s.logger.Debug("Skipping carousel image.", zap.Int("index", i), zap.Error(err))
			continue
		}
		entry, err := zw.Create(fmt.Sprintf("image_%d%s", i+1, extensionFor(contentType)))
		if err != nil {
			s.logger.Error("ZIP entry creation failed.", zap.Error(err))
			break
		}
		if _, err := entry.Write(data); err != nil {
			s.logger.Error("ZIP entry write failed.", zap.Error(err))
			break
		}
		written++
	}
	if err := zw.Close(); err != nil {
		s.logger.Error("ZIP finalization failed.", zap.Error(err))
	}
	s.logger.Info("Served image bundle.",
		zap.Int("images", written), zap.Int("requested", len(descriptor.ImageURLs)))
}

// handleImageProxy fetches an image server-side so a browser page can embed
// CDN assets that block cross-origin hotlinking.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		s.respondError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	if decoded, err := url.QueryUnescape(rawURL); err == nil {
		rawURL = decoded
	}

	resp, err := s.fetcher.ProxyFetch(r.Context(), rawURL)
	if err != nil {
		if errors.Is(err, media.ErrInvalidInput) {
			s.respondError(w, http.StatusBadRequest, "url is not a valid http(s) URL")
			return
		}
		s.respondError(w, http.StatusBadGateway, "upstream fetch failed")
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("Proxy body copy interrupted.", zap.Error(err))
	}
}

// serveFile streams a downloaded file back as an attachment.
func (s *Server) serveFile(w http.ResponseWriter, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "downloaded file could not be opened")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	}
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Debug("File stream interrupted.", zap.Error(err))
	}
}

func serveAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}

// extensionFor maps an image content type to a file extension, defaulting
// to .jpg for anything unrecognized.
func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

func imageFilename(contentType string) string {
	return fmt.Sprintf("instagram_image_%d%s", time.Now().UnixMilli(), extensionFor(contentType))
}

// respondExtractionError maps domain errors onto the HTTP status policy.
func (s *Server) respondExtractionError(w http.ResponseWriter, err error) {
	var rejected *media.UpstreamRejectedError
	switch {
	case errors.Is(err, media.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rejected):
		s.respondError(w, http.StatusInternalServerError,
			fmt.Sprintf("upstream rejected the request with status %d", rejected.Status))
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

// respondHeaderError carries the cause in an X-Error header so binary-minded
// clients can branch without parsing the body.
func (s *Server) respondHeaderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("X-Error", message)
	http.Error(w, message, status)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Response encoding failed.", zap.Error(err))
	}
}
