// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dipshanrana/clipfetch/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager hands out isolated browser sessions. Every session owns its own
// Chrome process, and a weighted semaphore bounds how many run at once so a
// burst of requests cannot exhaust the host.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	gate   *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// SessionOptions selects per-session behavior.
type SessionOptions struct {
	// CaptureNetwork attaches a devtools probe that records every outgoing
	// request the page makes.
	CaptureNetwork bool
	// AllowGUI requests a visible browser window. It is honored only when
	// the HEADLESS environment variable is not "true".
	AllowGUI bool
}

// NewManager creates a new browser manager.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser"),
		gate:     semaphore.NewWeighted(cfg.Concurrency),
		sessions: make(map[string]*Session),
	}
}

// Acquire blocks until a browser slot is free, then launches a fresh Chrome
// process and returns a session bound to it. The caller must call Release
// exactly once.
func (m *Manager) Acquire(ctx context.Context, opts SessionOptions) (*Session, error) {
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for browser slot: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.gate.Release(1)
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	session, err := m.launch(ctx, opts)
	if err != nil {
		// launch releases the failed session itself, and that close path
		// already returns the slot and settles the wait group.
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Debug("Browser session acquired.",
		zap.String("session_id", session.ID()),
		zap.Bool("headless", session.headless))
	return session, nil
}

func (m *Manager) launch(ctx context.Context, opts SessionOptions) (*Session, error) {
	headless := m.resolveHeadless(opts)

	// The allocator hangs off the background context so the browser process
	// lives until Release, not until the request that created it returns.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), m.execOptions(headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	session := newSession(browserCtx, m.logger, headless)
	session.onClose = func() {
		browserCancel()
		allocCancel()
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.wg.Done()
		m.mu.Unlock()
		m.gate.Release(1)
	}

	if opts.CaptureNetwork {
		session.probe = newProbe(browserCtx, m.logger)
	}

	// The first Run starts the browser process and connects CDP.
	if err := session.Start(ctx); err != nil {
		session.Release()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return session, nil
}

// resolveHeadless decides the rendering mode for one session. HEADLESS=true
// wins over everything; otherwise a GUI is granted only to callers that ask
// for one.
func (m *Manager) resolveHeadless(opts SessionOptions) bool {
	if strings.EqualFold(os.Getenv("HEADLESS"), "true") {
		return true
	}
	if opts.AllowGUI {
		return false
	}
	return m.cfg.Headless
}

// execOptions translates the browser config into chromedp allocator options.
func (m *Manager) execOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened systems where the Chrome sandbox cannot start.
		chromedp.NoSandbox,
		// Recommended for stability in containers and headless environments.
		chromedp.Flag("disable-dev-shm-usage", true),
		// Strips the navigator.webdriver fingerprint the platforms key off.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("lang", "en-US"),
		// Media pages must start playback without a gesture so the player
		// requests its stream URLs.
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("allow-running-insecure-content", true),
		chromedp.IgnoreCertErrors,
	)

	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}
	if m.cfg.WindowWidth > 0 && m.cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(m.cfg.WindowWidth, m.cfg.WindowHeight))
	}

	// DefaultExecAllocatorOptions already enables headless; it has to be
	// switched off explicitly for a visible window.
	if !headless {
		opts = append(opts, chromedp.Flag("headless", false))
		opts = append(opts, chromedp.Flag("start-maximized", true))
	}
	return opts
}

// Shutdown releases all live sessions and waits for them to finish closing.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser manager.", zap.Int("open_sessions", len(sessionsToClose)))

	for _, s := range sessionsToClose {
		go s.Release()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All browser sessions closed.")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for browser sessions to close.", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
