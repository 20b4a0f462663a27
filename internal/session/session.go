// Package session obtains the site session via a full headless-browser
// pass. The deals site hands out its session cookie and anti-forgery tokens
// only to a real browser, so the watcher drives Chrome once at startup and
// reuses the captured credentials for every subsequent request.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/mjaros/dealwatch/internal/config"
)

// Cookie names and the CSRF meta tag the site exposes.
const (
	sessionCookie = "gg-session"
	csrfCookie    = "gg_csrf"
	csrfMetaTag   = `meta[name="csrf-token"]`
)

// Session holds the credentials captured from one browser pass.
type Session struct {
	Token      string // gg-session cookie value
	CSRFCookie string // gg_csrf cookie value
	CSRFToken  string // per-session form/header token from the csrf-token meta tag
	CapturedAt time.Time
}

// Bootstrapper captures site sessions with a headless browser.
type Bootstrapper struct {
	cfg     config.SessionConfig
	baseURL string
	logger  *slog.Logger
}

// NewBootstrapper returns a Bootstrapper for the given site.
func NewBootstrapper(cfg config.SessionConfig, baseURL string, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{cfg: cfg, baseURL: baseURL, logger: logger}
}

// Bootstrap launches Chrome, navigates to the site root and captures the
// session cookie pair plus the CSRF token. The browser is torn down before
// returning; the steady-state loop never touches it again.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.BootstrapTimeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browserFlags(b.cfg.Headless)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var (
		csrfToken string
		tokenOK   bool
		cookies   []*network.Cookie
	)

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(b.baseURL),
		chromedp.WaitReady("body"),
		chromedp.AttributeValue(csrfMetaTag, "content", &csrfToken, &tokenOK, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("driving browser to %s: %w", b.baseURL, err)
	}
	if !tokenOK || csrfToken == "" {
		return nil, fmt.Errorf("no csrf-token meta tag on %s", b.baseURL)
	}

	s := &Session{CSRFToken: csrfToken, CapturedAt: time.Now()}
	for _, c := range cookies {
		switch c.Name {
		case sessionCookie:
			s.Token = c.Value
		case csrfCookie:
			s.CSRFCookie = c.Value
		}
	}
	if s.Token == "" || s.CSRFCookie == "" {
		return nil, fmt.Errorf("session cookies missing after browser pass (got %d cookies)", len(cookies))
	}

	b.logger.InfoContext(ctx, "captured site session",
		slog.Time("captured_at", s.CapturedAt),
	)
	return s, nil
}
