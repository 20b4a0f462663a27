package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/mjaros/dealwatch/internal/clock"
	"github.com/mjaros/dealwatch/internal/store"
)

// ListingRepo implements store.ListingRepository with sqlx.
type ListingRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(db *sqlx.DB, clk clock.Clock) *ListingRepo {
	return &ListingRepo{db: db, clock: clk}
}

func (r *ListingRepo) Append(ctx context.Context, l *store.Listing) error {
	l.CreatedAt = r.clock.Now()
	query := `INSERT INTO listings (game_id, name, drm, price, created_at, url)
	           VALUES ($1, $2, $3, $4, $5, $6)
	           RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		l.GameID, l.Name, l.DRM, l.Price, l.CreatedAt, l.URL,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) Recent(ctx context.Context, gameID, drm string, limit int) ([]store.Listing, error) {
	var listings []store.Listing
	err := r.db.SelectContext(ctx, &listings,
		`SELECT * FROM listings WHERE game_id = $1 AND drm = $2
		 ORDER BY created_at DESC, id DESC LIMIT $3`,
		gameID, drm, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent observations: %w", err)
	}
	return listings, nil
}

func (r *ListingRepo) AveragePrice(ctx context.Context, gameID, drm string) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := r.db.GetContext(ctx, &avg,
		`SELECT COALESCE(AVG(price), 0) FROM listings WHERE game_id = $1 AND drm = $2`,
		gameID, drm,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("averaging prices: %w", err)
	}
	return avg, nil
}
