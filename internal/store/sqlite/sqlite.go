// Package sqlite implements the listing store on a local SQLite file using
// the pure-Go driver, matching the single-process deployment model: no
// server, one writer.
package sqlite

import (
	"context"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"

	"github.com/mjaros/dealwatch/internal/clock"
	"github.com/mjaros/dealwatch/internal/config"
	"github.com/mjaros/dealwatch/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id    TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	drm        TEXT    NOT NULL,
	price      NUMERIC NOT NULL,
	created_at TEXT    NOT NULL,
	url        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_game_drm ON listings (game_id, drm);
`

func init() {
	store.Register("sqlite", open)
}

func open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", cfg.Path, err)
	}

	// The driver is not safe for concurrent writes over multiple conns.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}

	return &store.Repositories{
		Listings: NewListingRepo(db, clk),
		Closer:   db,
		Ping:     db.PingContext,
	}, nil
}
