// Package watcher runs the steady-state deal loop: poll the new-deals page,
// keep only listings not yet seen, and evaluate each against keyshop resale
// prices. Persistence, notifications and session handling hang off it
// through small consumer-side interfaces.
package watcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mjaros/dealwatch/internal/notify"
	"github.com/mjaros/dealwatch/internal/rates"
	"github.com/mjaros/dealwatch/internal/scrape"
	"github.com/mjaros/dealwatch/internal/store"
	"github.com/mjaros/dealwatch/internal/tax"
)

// KeyshopFetcher retrieves resale quotes for one game, filtered by DRM.
type KeyshopFetcher interface {
	FetchKeyshops(ctx context.Context, gameID, drm string) (scrape.Quotes, error)
}

// Notifier delivers a deal alert. Implementations must not return delivery
// failures into the watch loop.
type Notifier interface {
	Notify(ctx context.Context, deal notify.Deal)
}

// Sounder plays the local alert sound.
type Sounder interface {
	Play(ctx context.Context)
}

// Processor evaluates one listing end to end: persist, cross-reference
// keyshops, compute net resale profit, alert.
type Processor struct {
	repo     store.ListingRepository
	keyshops KeyshopFetcher
	notifier Notifier // nil disables chat alerts
	sounder  Sounder  // nil disables sound alerts
	logger   *slog.Logger

	minPrice    decimal.Decimal
	minProfit   decimal.Decimal
	soundProfit decimal.Decimal
}

// NewProcessor wires a Processor. notifier and sounder may be nil.
func NewProcessor(
	repo store.ListingRepository,
	keyshops KeyshopFetcher,
	notifier Notifier,
	sounder Sounder,
	minPrice, minProfit, soundProfit float64,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		repo:        repo,
		keyshops:    keyshops,
		notifier:    notifier,
		sounder:     sounder,
		logger:      logger,
		minPrice:    decimal.NewFromFloat(minPrice),
		minProfit:   decimal.NewFromFloat(minProfit),
		soundProfit: decimal.NewFromFloat(soundProfit),
	}
}

// Process handles one listing. The returned error covers only the keyshop
// fetch; every other outcome (below-floor price, no quotes, missing rates,
// unprofitable) ends the listing's evaluation without error.
func (p *Processor) Process(ctx context.Context, listing scrape.Listing, snap *rates.Snapshot) error {
	logger := p.logger.With(
		slog.String("game_id", listing.GameID),
		slog.String("name", listing.Name),
		slog.String("drm", listing.DRM),
	)

	if listing.Price.LessThan(p.minPrice) {
		logger.DebugContext(ctx, "listing below price floor",
			slog.String("price", listing.Price.String()),
		)
		return nil
	}

	row := &store.Listing{
		GameID: listing.GameID,
		Name:   listing.Name,
		DRM:    listing.DRM,
		Price:  listing.Price,
		URL:    listing.URL,
	}
	if err := p.repo.Append(ctx, row); err != nil {
		// The evaluation is still worth finishing; a deal alert matters
		// more than the historical record.
		logger.ErrorContext(ctx, "persisting listing failed",
			slog.String("error", err.Error()),
		)
	}

	quotes, err := p.keyshops.FetchKeyshops(ctx, listing.GameID, listing.DRM)
	if err != nil {
		return fmt.Errorf("fetching keyshops for %s: %w", listing.GameID, err)
	}
	if quotes.Empty() {
		logger.DebugContext(ctx, "no keyshop offers for drm")
		return nil
	}
	if snap == nil {
		logger.WarnContext(ctx, "skipping profit evaluation, no exchange rates")
		return nil
	}

	listingPLN := listing.Price.Mul(snap.USDToPLN)

	var kinguinNet, g2aNet *decimal.Decimal
	if quotes.Kinguin != nil {
		net, err := netProfit(*quotes.Kinguin, tax.Kinguin, listingPLN, *snap)
		if err != nil {
			return err
		}
		kinguinNet = &net
	}
	if quotes.G2A != nil {
		net, err := netProfit(*quotes.G2A, tax.G2A, listingPLN, *snap)
		if err != nil {
			return err
		}
		g2aNet = &net
	}

	// Chat alerts go out when either present resale route clears the
	// profit bar; a shop with no offer never counts.
	best := maxPresent(kinguinNet, g2aNet)
	if best != nil && best.GreaterThanOrEqual(p.minProfit) {
		logger.InfoContext(ctx, "profitable deal",
			slog.String("net_profit_pln", best.String()),
		)
		if p.notifier != nil {
			p.notifier.Notify(ctx, notify.Deal{
				Name:          listing.Name,
				Price:         listing.Price,
				KinguinProfit: kinguinNet,
				G2AProfit:     g2aNet,
				DRM:           listing.DRM,
				URL:           listing.URL,
			})
		}
	}

	// The sound bar treats a missing quote as zero profit, so it can only
	// trigger for thresholds at or below zero when quotes are absent.
	if p.sounder != nil && maxOrZero(kinguinNet, g2aNet).GreaterThanOrEqual(p.soundProfit) {
		p.sounder.Play(ctx)
	}

	return nil
}

// netProfit converts a keyshop quote (already PLN) into net profit after
// platform fees and the listing's own cost.
func netProfit(quote decimal.Decimal, platform tax.Platform, listingPLN decimal.Decimal, snap rates.Snapshot) (decimal.Decimal, error) {
	gross, err := tax.Profit(quote, platform, snap)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("computing %s profit: %w", platform, err)
	}
	return gross.Sub(listingPLN), nil
}

// maxPresent returns the larger of the non-nil values, or nil when both
// are absent.
func maxPresent(a, b *decimal.Decimal) *decimal.Decimal {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.GreaterThanOrEqual(*b):
		return a
	default:
		return b
	}
}

// maxOrZero returns the larger of the values with nil counting as zero.
// A present negative value is kept as-is, it is absence that defaults.
func maxOrZero(a, b *decimal.Decimal) decimal.Decimal {
	av, bv := decimal.Zero, decimal.Zero
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	if av.GreaterThanOrEqual(bv) {
		return av
	}
	return bv
}
