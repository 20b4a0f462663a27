// Package rates provides a read-through cache of the EUR→USD and USD→PLN
// exchange rates used for profit evaluation. The snapshot is persisted to a
// single JSON file that is replaced wholesale on refresh.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/mjaros/dealwatch/internal/clock"
	"github.com/mjaros/dealwatch/internal/config"
)

// ErrUnavailable is returned when either rate endpoint fails. There is no
// partial update: callers must not evaluate profits for the cycle, though a
// still-fresh cached snapshot remains usable.
var ErrUnavailable = errors.New("exchange rates unavailable")

// Snapshot is one fetched pair of exchange rates.
type Snapshot struct {
	FetchedAt time.Time
	EURToUSD  decimal.Decimal
	USDToPLN  decimal.Decimal
}

// Combined returns the EUR→PLN conversion factor.
func (s Snapshot) Combined() decimal.Decimal {
	return s.EURToUSD.Mul(s.USDToPLN)
}

// snapshotFile is the on-disk representation. Rates are written as plain
// JSON numbers.
type snapshotFile struct {
	FetchedAt string      `json:"fetched_at"`
	EURToUSD  json.Number `json:"eur_to_usd"`
	USDToPLN  json.Number `json:"usd_to_pln"`
}

// rateResponse is the shape of both rate endpoints.
type rateResponse struct {
	Rates map[string]json.Number `json:"rates"`
}

// Cache is a read-through exchange rate cache with a fixed TTL.
// Safe for concurrent use; concurrent refreshes are last-writer-wins.
type Cache struct {
	mu     sync.Mutex
	cfg    config.RatesConfig
	http   *resty.Client
	clock  clock.Clock
	logger *slog.Logger
}

// NewCache returns a Cache using the endpoints and cache file from cfg.
func NewCache(cfg config.RatesConfig, clk clock.Clock, logger *slog.Logger) *Cache {
	return &Cache{
		cfg:    cfg,
		http:   resty.New().SetTimeout(15 * time.Second),
		clock:  clk,
		logger: logger,
	}
}

// Get returns the cached snapshot if it is younger than the TTL, otherwise
// fetches both rates, persists the new snapshot and returns it. Both
// endpoints must succeed or ErrUnavailable is returned and the cache file is
// left untouched.
func (c *Cache) Get(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	if snap, err := c.read(); err == nil {
		if now.Sub(snap.FetchedAt) < c.cfg.CacheTTL {
			return snap, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		c.logger.WarnContext(ctx, "unreadable rate cache file, refetching",
			slog.String("path", c.cfg.CacheFile),
			slog.Any("error", err),
		)
	}

	eurToUSD, err := c.fetchRate(ctx, c.cfg.EURToUSDURL, "USD")
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: EUR→USD: %v", ErrUnavailable, err)
	}
	usdToPLN, err := c.fetchRate(ctx, c.cfg.USDToPLNURL, "PLN")
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: USD→PLN: %v", ErrUnavailable, err)
	}

	snap := Snapshot{FetchedAt: now, EURToUSD: eurToUSD, USDToPLN: usdToPLN}
	if err := c.write(snap); err != nil {
		return Snapshot{}, fmt.Errorf("persisting rate snapshot: %w", err)
	}

	c.logger.InfoContext(ctx, "refreshed exchange rates",
		slog.String("eur_to_usd", eurToUSD.String()),
		slog.String("usd_to_pln", usdToPLN.String()),
	)
	return snap, nil
}

// fetchRate fetches one endpoint and extracts the rate for currency.
func (c *Cache) fetchRate(ctx context.Context, url, currency string) (decimal.Decimal, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("requesting %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return decimal.Zero, fmt.Errorf("requesting %s: status %d", url, resp.StatusCode())
	}

	var body rateResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return decimal.Zero, fmt.Errorf("decoding %s: %w", url, err)
	}
	raw, ok := body.Rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("response from %s has no %s rate", url, currency)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s rate %q: %w", currency, raw.String(), err)
	}
	return rate, nil
}

func (c *Cache) read() (Snapshot, error) {
	data, err := os.ReadFile(c.cfg.CacheFile)
	if err != nil {
		return Snapshot{}, err
	}
	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Snapshot{}, fmt.Errorf("decoding cache file: %w", err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, f.FetchedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parsing fetched_at: %w", err)
	}
	eurToUSD, err := decimal.NewFromString(f.EURToUSD.String())
	if err != nil {
		return Snapshot{}, fmt.Errorf("parsing eur_to_usd: %w", err)
	}
	usdToPLN, err := decimal.NewFromString(f.USDToPLN.String())
	if err != nil {
		return Snapshot{}, fmt.Errorf("parsing usd_to_pln: %w", err)
	}
	return Snapshot{FetchedAt: fetchedAt, EURToUSD: eurToUSD, USDToPLN: usdToPLN}, nil
}

// write replaces the cache file atomically via temp file + rename.
func (c *Cache) write(snap Snapshot) error {
	f := snapshotFile{
		FetchedAt: snap.FetchedAt.UTC().Format(time.RFC3339Nano),
		EURToUSD:  json.Number(snap.EURToUSD.String()),
		USDToPLN:  json.Number(snap.USDToPLN.String()),
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.cfg.CacheFile)
	tmp, err := os.CreateTemp(dir, ".rates-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.cfg.CacheFile)
}
