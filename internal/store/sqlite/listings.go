package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/mjaros/dealwatch/internal/clock"
	"github.com/mjaros/dealwatch/internal/store"
)

// createdAtLayout matches the human-readable local timestamp format the
// listings table has always used.
const createdAtLayout = "2006-01-02 15:04:05"

// ListingRepo implements store.ListingRepository with sqlx over SQLite.
type ListingRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(db *sqlx.DB, clk clock.Clock) *ListingRepo {
	return &ListingRepo{db: db, clock: clk}
}

// row mirrors the table; created_at is stored as TEXT.
type row struct {
	ID        int64           `db:"id"`
	GameID    string          `db:"game_id"`
	Name      string          `db:"name"`
	DRM       string          `db:"drm"`
	Price     decimal.Decimal `db:"price"`
	CreatedAt string          `db:"created_at"`
	URL       string          `db:"url"`
}

func (r *ListingRepo) Append(ctx context.Context, l *store.Listing) error {
	l.CreatedAt = r.clock.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO listings (game_id, name, drm, price, created_at, url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.GameID, l.Name, l.DRM, l.Price, l.CreatedAt.Format(createdAtLayout), l.URL,
	)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted listing id: %w", err)
	}
	l.ID = id
	return nil
}

func (r *ListingRepo) Recent(ctx context.Context, gameID, drm string, limit int) ([]store.Listing, error) {
	var rows []row
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM listings WHERE game_id = ? AND drm = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		gameID, drm, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent observations: %w", err)
	}

	listings := make([]store.Listing, 0, len(rows))
	for _, rw := range rows {
		createdAt, err := time.ParseInLocation(createdAtLayout, rw.CreatedAt, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", rw.CreatedAt, err)
		}
		listings = append(listings, store.Listing{
			ID:        rw.ID,
			GameID:    rw.GameID,
			Name:      rw.Name,
			DRM:       rw.DRM,
			Price:     rw.Price,
			CreatedAt: createdAt,
			URL:       rw.URL,
		})
	}
	return listings, nil
}

func (r *ListingRepo) AveragePrice(ctx context.Context, gameID, drm string) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := r.db.GetContext(ctx, &avg,
		`SELECT COALESCE(AVG(price), 0) FROM listings WHERE game_id = ? AND drm = ?`,
		gameID, drm,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("averaging prices: %w", err)
	}
	return avg, nil
}
