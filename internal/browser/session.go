// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session wraps one dedicated Chrome process. All chromedp actions for the
// session must run through Run so they target the right browser and still
// honor the caller's deadline.
type Session struct {
	id       string
	ctx      context.Context
	logger   *zap.Logger
	headless bool

	probe *Probe

	onClose   func()
	closeOnce sync.Once
}

func newSession(ctx context.Context, logger *zap.Logger, headless bool) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:       sessionID,
		ctx:      ctx,
		logger:   logger.With(zap.String("session_id", sessionID)),
		headless: headless,
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Context returns the session's chromedp context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Probe returns the network probe, or nil when the session was acquired
// without capture.
func (s *Session) Probe() *Probe {
	return s.probe
}

// Start launches the browser process and enables the network domain so
// header overrides and the probe work from the first navigation on.
func (s *Session) Start(ctx context.Context) error {
	return s.Run(ctx, network.Enable())
}

// Run executes chromedp actions against this session, bounded by both the
// session lifetime and the incoming request context.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// SetExtraHeaders applies headers to every subsequent request the browser
// makes, including media fetches triggered by the page.
func (s *Session) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	h := make(network.Headers, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	if err := s.Run(ctx, network.SetExtraHTTPHeaders(h)); err != nil {
		return fmt.Errorf("failed to set extra headers: %w", err)
	}
	return nil
}

// AllowDownloads instructs the browser to save downloads into dir instead of
// prompting.
func (s *Session) AllowDownloads(ctx context.Context, dir string) error {
	err := s.Run(ctx, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
		WithDownloadPath(dir))
	if err != nil {
		return fmt.Errorf("failed to allow downloads into %s: %w", dir, err)
	}
	return nil
}

// Release tears down the browser process. It is safe to call more than once
// and never fails; a session that cannot be closed cleanly is logged and
// abandoned to the allocator cancel.
func (s *Session) Release() {
	s.closeOnce.Do(func() {
		s.logger.Debug("Releasing browser session.")
		if s.probe != nil {
			s.probe.stop()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
}
