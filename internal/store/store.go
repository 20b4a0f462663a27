package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Listing is one persisted price observation. Rows are append-only: they
// are never updated or deleted.
type Listing struct {
	ID        int64           `db:"id"`
	GameID    string          `db:"game_id"`
	Name      string          `db:"name"`
	DRM       string          `db:"drm"`
	Price     decimal.Decimal `db:"price"`
	CreatedAt time.Time       `db:"created_at"`
	URL       string          `db:"url"`
}

// ListingRepository defines listing persistence operations.
type ListingRepository interface {
	// Append inserts a new observation and sets its ID.
	Append(ctx context.Context, l *Listing) error
	// Recent returns the most recent observations for (gameID, drm),
	// newest first, at most limit rows.
	Recent(ctx context.Context, gameID, drm string, limit int) ([]Listing, error)
	// AveragePrice returns the mean observed price for (gameID, drm),
	// zero when there are no observations.
	AveragePrice(ctx context.Context, gameID, drm string) (decimal.Decimal, error)
}
