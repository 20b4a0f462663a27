package watcher

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/mjaros/dealwatch/internal/clock"
	"github.com/mjaros/dealwatch/internal/config"
	"github.com/mjaros/dealwatch/internal/rates"
	"github.com/mjaros/dealwatch/internal/scrape"
)

// ListingSource fetches the current page of deals.
type ListingSource interface {
	FetchListings(ctx context.Context) ([]scrape.Listing, error)
}

// RateSource supplies the current exchange rate snapshot.
type RateSource interface {
	Get(ctx context.Context) (rates.Snapshot, error)
}

// SessionRefresher re-bootstraps the site session after repeated
// authorization failures.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// Poller drives the watch loop. It tracks a high-water mark over listing
// timestamps so each listing is evaluated at most once per run, and fans
// each cycle's new listings out to the Processor with bounded concurrency.
type Poller struct {
	cfg       config.WatcherConfig
	sessCfg   config.SessionConfig
	source    ListingSource
	rates     RateSource
	processor *Processor
	refresher SessionRefresher // nil disables mid-run session refresh
	clock     clock.Clock
	logger    *slog.Logger

	minPrice decimal.Decimal

	cycles        metric.Int64Counter
	evaluated     metric.Int64Counter
	keyshopErrors metric.Int64Counter

	mu           sync.Mutex
	mark         time.Time
	authFailures int
}

// NewPoller builds a Poller. The high-water mark starts Lookback before
// now, so the first cycle picks up listings posted shortly before startup.
func NewPoller(
	cfg config.WatcherConfig,
	sessCfg config.SessionConfig,
	source ListingSource,
	rateSource RateSource,
	processor *Processor,
	refresher SessionRefresher,
	clk clock.Clock,
	logger *slog.Logger,
	meter metric.Meter,
) (*Poller, error) {
	cycles, err := meter.Int64Counter("dealwatch.cycles",
		metric.WithDescription("Completed watch cycles"))
	if err != nil {
		return nil, err
	}
	evaluated, err := meter.Int64Counter("dealwatch.listings.evaluated",
		metric.WithDescription("Listings passed to the processor"))
	if err != nil {
		return nil, err
	}
	keyshopErrors, err := meter.Int64Counter("dealwatch.keyshop.errors",
		metric.WithDescription("Failed keyshop evaluations"))
	if err != nil {
		return nil, err
	}

	return &Poller{
		cfg:           cfg,
		sessCfg:       sessCfg,
		source:        source,
		rates:         rateSource,
		processor:     processor,
		refresher:     refresher,
		clock:         clk,
		logger:        logger,
		minPrice:      decimal.NewFromFloat(cfg.MinPrice),
		cycles:        cycles,
		evaluated:     evaluated,
		keyshopErrors: keyshopErrors,
		mark:          clk.Now().Add(-cfg.Lookback),
	}, nil
}

// Run executes cycles until ctx is cancelled, RefreshInterval apart.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "watch loop started",
		slog.Duration("interval", p.cfg.RefreshInterval),
		slog.Time("high_water_mark", p.HighWaterMark()),
	)
	for {
		p.Cycle(ctx)
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "watch loop stopped")
			return ctx.Err()
		case <-time.After(p.cfg.RefreshInterval):
		}
	}
}

// Cycle performs one poll: fetch, filter against the high-water mark,
// advance the mark, evaluate. Failures are contained to the cycle.
func (p *Poller) Cycle(ctx context.Context) {
	defer p.cycles.Add(ctx, 1)

	listings, err := p.source.FetchListings(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "fetching listings failed",
			slog.String("error", err.Error()),
		)
		return
	}

	fresh := p.takeFresh(listings)
	if len(fresh) == 0 {
		p.logger.DebugContext(ctx, "no new listings",
			slog.Int("page_total", len(listings)),
		)
		return
	}
	p.logger.InfoContext(ctx, "new listings found",
		slog.Int("count", len(fresh)),
		slog.Int("page_total", len(listings)),
	)

	// One snapshot serves the whole cycle. Without rates the cycle still
	// records listings; only profit evaluation is skipped.
	var snap *rates.Snapshot
	if s, err := p.rates.Get(ctx); err != nil {
		p.logger.WarnContext(ctx, "exchange rates unavailable",
			slog.String("error", err.Error()),
		)
	} else {
		snap = &s
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, listing := range fresh {
		g.Go(func() error {
			p.evaluated.Add(gctx, 1)
			if err := p.processor.Process(gctx, listing, snap); err != nil {
				p.keyshopErrors.Add(gctx, 1)
				p.logger.ErrorContext(gctx, "listing evaluation failed",
					slog.String("game_id", listing.GameID),
					slog.String("error", err.Error()),
				)
				p.noteFailure(gctx, err)
			} else {
				p.noteSuccess()
			}
			// One listing's failure must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()
}

// takeFresh filters the page down to listings past the high-water mark
// with an allowed DRM and a price at or above the floor, then advances the
// mark to the newest timestamp among the kept listings. An empty result
// leaves the mark untouched.
func (p *Poller) takeFresh(listings []scrape.Listing) []scrape.Listing {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fresh []scrape.Listing
	newest := p.mark
	for _, l := range listings {
		if !l.ObservedAt.After(p.mark) {
			continue
		}
		if l.Price.LessThan(p.minPrice) {
			continue
		}
		if len(p.cfg.AllowedDRMs) > 0 && !slices.Contains(p.cfg.AllowedDRMs, l.DRM) {
			continue
		}
		fresh = append(fresh, l)
		if l.ObservedAt.After(newest) {
			newest = l.ObservedAt
		}
	}
	if len(fresh) > 0 {
		p.mark = newest
	}
	return fresh
}

// HighWaterMark returns the newest listing timestamp already processed.
func (p *Poller) HighWaterMark() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mark
}

// noteFailure counts consecutive authorization failures and triggers a
// session refresh once the configured threshold is reached.
func (p *Poller) noteFailure(ctx context.Context, err error) {
	if !errors.Is(err, scrape.ErrUnauthorized) {
		return
	}

	p.mu.Lock()
	p.authFailures++
	count := p.authFailures
	threshold := p.sessCfg.RefreshAfterAuthFailures
	refresh := threshold > 0 && count >= threshold && p.refresher != nil
	if refresh {
		p.authFailures = 0
	}
	p.mu.Unlock()

	if !refresh {
		return
	}

	p.logger.WarnContext(ctx, "refreshing session after authorization failures",
		slog.Int("failures", count),
	)
	if err := p.refresher.Refresh(ctx); err != nil {
		p.logger.ErrorContext(ctx, "session refresh failed",
			slog.String("error", err.Error()),
		)
	}
}

func (p *Poller) noteSuccess() {
	p.mu.Lock()
	p.authFailures = 0
	p.mu.Unlock()
}
