package scrape_test

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mjaros/dealwatch/internal/scrape"
	"github.com/mjaros/dealwatch/internal/session"
)

func testSession() *session.Session {
	return &session.Session{
		Token:      "sess-token",
		CSRFCookie: "csrf-cookie",
		CSRFToken:  "csrf-token",
		CapturedAt: time.Now(),
	}
}

func testClient(t *testing.T, baseURL string) *scrape.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return scrape.NewClient(baseURL, testSession(), logger, noop.NewTracerProvider())
}

func TestParseListings(t *testing.T) {
	f, err := os.Open("testdata/new_deals.html")
	if err != nil {
		t.Fatalf("opening fixture: %v", err)
	}
	defer f.Close()

	listings, err := scrape.ParseListings(f, "https://gg.deals")
	if err != nil {
		t.Fatalf("ParseListings() error = %v", err)
	}

	// Of the seven blocks in the fixture, four are malformed in various
	// ways and must be dropped silently.
	if len(listings) != 3 {
		t.Fatalf("got %d listings, want 3", len(listings))
	}

	first := listings[0]
	if first.GameID != "101" {
		t.Errorf("GameID = %q, want %q", first.GameID, "101")
	}
	if first.Name != "Half-Life 3" {
		t.Errorf("Name = %q, want aria-label stripped of prefix", first.Name)
	}
	if first.URL != "https://gg.deals/game/half-life-3/" {
		t.Errorf("URL = %q, want absolute", first.URL)
	}
	if first.DRM != "Steam" {
		t.Errorf("DRM = %q, want %q", first.DRM, "Steam")
	}
	if !first.Price.Equal(decimal.RequireFromString("12.49")) {
		t.Errorf("Price = %s, want 12.49", first.Price)
	}
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if !first.ObservedAt.Equal(want) {
		t.Errorf("ObservedAt = %s, want %s", first.ObservedAt, want)
	}

	// Offset timestamps are normalized to UTC.
	second := listings[1]
	if second.ObservedAt.Location() != time.UTC {
		t.Errorf("ObservedAt location = %v, want UTC", second.ObservedAt.Location())
	}
	if !second.ObservedAt.Equal(time.Date(2026, 8, 30, 10, 5, 30, 0, time.UTC)) {
		t.Errorf("ObservedAt = %s, offset not applied", second.ObservedAt)
	}

	// A block without an aria-label still yields a listing.
	third := listings[2]
	if third.Name != "Unknown Game" {
		t.Errorf("Name = %q, want fallback", third.Name)
	}
}

func TestParseListings_Empty(t *testing.T) {
	listings, err := scrape.ParseListings(
		strings.NewReader("<html><body><p>no deals</p></body></html>"), "https://gg.deals")
	if err != nil {
		t.Fatalf("ParseListings() error = %v", err)
	}
	if len(listings) != 0 {
		t.Errorf("got %d listings from dealless page, want 0", len(listings))
	}
}

func TestFetchListings(t *testing.T) {
	page, err := os.ReadFile("testdata/new_deals.html")
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deals/new-deals/" {
			t.Errorf("path = %q, want /deals/new-deals/", r.URL.Path)
		}
		w.Write(page)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	listings, err := client.FetchListings(t.Context())
	if err != nil {
		t.Fatalf("FetchListings() error = %v", err)
	}
	if len(listings) != 3 {
		t.Errorf("got %d listings, want 3", len(listings))
	}
}

func TestFetchListings_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	_, err := client.FetchListings(t.Context())
	if !errors.Is(err, scrape.ErrFetch) {
		t.Errorf("FetchListings() error = %v, want ErrFetch", err)
	}
}
