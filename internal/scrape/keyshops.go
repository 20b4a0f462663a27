package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mjaros/dealwatch/internal/session"
)

// Quotes holds the first matching offer per supported keyshop. Both fields
// are independently optional; prices are in the settlement currency (the
// keyshop endpoint is the PLN-localized page).
type Quotes struct {
	Kinguin *decimal.Decimal
	G2A     *decimal.Decimal
}

// Empty reports whether no supported keyshop had a matching offer.
func (q Quotes) Empty() bool {
	return q.Kinguin == nil && q.G2A == nil
}

// FetchKeyshops retrieves third-party offers for a game and keeps only
// quotes matching the listing's DRM. Transport errors and non-2xx responses
// are retried up to a fixed bound with a short pause in between; exhaustion
// yields ErrKeyshopUnavailable, wrapping ErrUnauthorized when the last
// response was a 401/403.
func (c *Client) FetchKeyshops(ctx context.Context, gameID, drm string) (Quotes, error) {
	ctx, span := c.tracer.Start(ctx, "Client.FetchKeyshops",
		trace.WithAttributes(
			attribute.String("game_id", gameID),
			attribute.String("drm", drm),
		))
	defer span.End()

	sess := c.session()
	url := c.baseURL + fmt.Sprintf(keyshopsPathFmt, gameID)

	var lastErr error
	for attempt := 1; attempt <= keyshopAttempts; attempt++ {
		resp, err := c.keyshopRequest(ctx, sess, url)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
			lastErr = fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode())
		case !resp.IsSuccess():
			lastErr = fmt.Errorf("status %d", resp.StatusCode())
		default:
			return ParseKeyshops(bytes.NewReader(resp.Body()), drm)
		}

		if attempt < keyshopAttempts {
			select {
			case <-time.After(keyshopRetryPause):
			case <-ctx.Done():
				return Quotes{}, fmt.Errorf("%w: %w", ErrKeyshopUnavailable, ctx.Err())
			}
		}
	}

	return Quotes{}, fmt.Errorf("%w: game %s after %d attempts: %w",
		ErrKeyshopUnavailable, gameID, keyshopAttempts, lastErr)
}

// keyshopRequest issues the authenticated form POST the keyshop panel
// expects: CSRF token as form field and header, the session cookie pair,
// and XHR markers.
func (c *Client) keyshopRequest(ctx context.Context, sess *session.Session, url string) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.baseURL+listingsPath).
		SetHeader("X-CSRF-Token", sess.CSRFToken).
		SetHeader("X-Requested-With", "XMLHttpRequest").
		SetHeader("Origin", c.baseURL).
		SetCookies([]*http.Cookie{
			{Name: "gg-session", Value: sess.Token},
			{Name: "gg_csrf", Value: sess.CSRFCookie},
		}).
		SetFormData(map[string]string{"gg_csrf": sess.CSRFToken}).
		Post(url)
}

// ParseKeyshops extracts seller offers from the keyshop panel HTML.
// Quotes whose DRM is missing or differs from drm are discarded: prices
// across activation platforms are not comparable. Sellers other than
// Kinguin and G2A are ignored; the first match per shop wins.
func ParseKeyshops(r io.Reader, drm string) (Quotes, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Quotes{}, fmt.Errorf("parsing HTML: %w", err)
	}

	var quotes Quotes
	doc.Find("div[data-shop-name]").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		shop := strings.ToLower(block.AttrOr("data-shop-name", ""))
		if shop != "kinguin" && shop != "g2a" {
			return true
		}
		if drmTag(block) != drm {
			return true
		}

		price, err := decimal.NewFromString(block.AttrOr("data-deal-value", ""))
		if err != nil {
			return true
		}

		switch shop {
		case "kinguin":
			if quotes.Kinguin == nil {
				quotes.Kinguin = &price
			}
		case "g2a":
			if quotes.G2A == nil {
				quotes.G2A = &price
			}
		}
		return quotes.Kinguin == nil || quotes.G2A == nil
	})

	return quotes, nil
}
