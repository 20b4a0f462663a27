// Package scrape retrieves and parses the deals site's new-deals page and
// per-game keyshop offers. Parsing is kept in standalone functions over an
// io.Reader so the markup coupling stays in one swappable place.
package scrape

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/mjaros/dealwatch/internal/session"
)

const (
	listingsPath    = "/deals/new-deals/"
	keyshopsPathFmt = "/pl/games/keyshopsDeals/%s/"

	keyshopAttempts   = 3
	keyshopRetryPause = 2 * time.Second
)

var (
	// ErrFetch covers network failures and non-2xx responses on the
	// listings page. The current cycle yields no listings; the loop
	// continues.
	ErrFetch = errors.New("fetch failed")

	// ErrKeyshopUnavailable means all keyshop fetch attempts were
	// exhausted. The listing is skipped for this cycle, nothing more.
	ErrKeyshopUnavailable = errors.New("keyshop data unavailable")

	// ErrUnauthorized marks a 401/403 keyshop response, which usually
	// means the captured session has expired.
	ErrUnauthorized = errors.New("keyshop request unauthorized")
)

// Client is the shared HTTP client for all site requests in a run.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *slog.Logger
	tracer  trace.Tracer

	mu   sync.RWMutex
	sess *session.Session
}

// NewClient returns a Client for the given site using the captured session.
func NewClient(baseURL string, sess *session.Session, logger *slog.Logger, tp trace.TracerProvider) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(20 * time.Second).
			SetHeader("User-Agent", session.UserAgent),
		baseURL: baseURL,
		logger:  logger,
		tracer:  tp.Tracer("github.com/mjaros/dealwatch/internal/scrape"),
		sess:    sess,
	}
}

// SetSession swaps in a freshly bootstrapped session.
func (c *Client) SetSession(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = sess
}

func (c *Client) session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}
