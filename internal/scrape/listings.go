package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Listing is one deal block scraped from the new-deals page.
type Listing struct {
	GameID     string
	Name       string
	URL        string
	DRM        string
	Price      decimal.Decimal // source-site currency (USD)
	ObservedAt time.Time       // page timestamp, UTC
}

// FetchListings retrieves one page of current deals in document order.
// Callers must not assume any ordering by time or price.
func (c *Client) FetchListings(ctx context.Context) ([]Listing, error) {
	ctx, span := c.tracer.Start(ctx, "Client.FetchListings")
	defer span.End()

	url := c.baseURL + listingsPath
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetch, url, resp.StatusCode())
	}

	listings, err := ParseListings(bytes.NewReader(resp.Body()), c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing listings page: %w", err)
	}

	span.SetAttributes(attribute.Int("listings", len(listings)))
	return listings, nil
}

// ParseListings extracts listings from the new-deals page HTML. Blocks
// missing a DRM tag, a timestamp or a price are malformed and dropped
// without error.
func ParseListings(r io.Reader, baseURL string) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var listings []Listing
	doc.Find("div.hoverable-box").Each(func(_ int, block *goquery.Selection) {
		gameID, ok := block.Attr("data-container-game-id")
		if !ok || gameID == "" {
			return
		}

		drm := drmTag(block)
		if drm == "" {
			return
		}

		rawTime, ok := block.Find("time").First().Attr("datetime")
		if !ok {
			return
		}
		observedAt, err := time.Parse(time.RFC3339, rawTime)
		if err != nil {
			return
		}

		rawPrice, ok := block.Attr("data-deal-value")
		if !ok {
			return
		}
		price, err := decimal.NewFromString(rawPrice)
		if err != nil {
			return
		}

		link := block.Find("a.full-link").First()
		name := strings.TrimSpace(strings.TrimPrefix(link.AttrOr("aria-label", ""), "Go to: "))
		if name == "" {
			name = "Unknown Game"
		}

		listings = append(listings, Listing{
			GameID:     gameID,
			Name:       name,
			URL:        baseURL + link.AttrOr("href", ""),
			DRM:        drm,
			Price:      price,
			ObservedAt: observedAt.UTC(),
		})
	})

	return listings, nil
}

// drmTag extracts the activation platform from a block's platform-icon
// annotation, e.g. `<div class="tag-drm"><svg title="Activates on Steam">`.
func drmTag(block *goquery.Selection) string {
	title, ok := block.Find("div.tag-drm svg").First().Attr("title")
	if !ok {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(title, "Activates on "))
}
