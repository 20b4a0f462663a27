package tax_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mjaros/dealwatch/internal/rates"
	"github.com/mjaros/dealwatch/internal/tax"
)

func snap(eurToUSD, usdToPLN string) rates.Snapshot {
	return rates.Snapshot{
		FetchedAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		EURToUSD:  decimal.RequireFromString(eurToUSD),
		USDToPLN:  decimal.RequireFromString(usdToPLN),
	}
}

func TestProfit(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		platform tax.Platform
		snap     rates.Snapshot
		want     string
	}{
		{
			// 60 - 0.15*4.2 - 0.14*60 = 60 - 0.63 - 8.4 = 50.97
			name:     "kinguin reference case",
			price:    "60",
			platform: tax.Kinguin,
			snap:     snap("1.05", "4.0"),
			want:     "50.97",
		},
		{
			// 100 - 0.35*4.2 - 0.21*100 = 100 - 1.47 - 21 = 77.53
			name:     "g2a reference case",
			price:    "100",
			platform: tax.G2A,
			snap:     snap("1.05", "4.0"),
			want:     "77.53",
		},
		{
			name:     "zero price goes negative by the fixed fee",
			price:    "0",
			platform: tax.Kinguin,
			snap:     snap("1.05", "4.0"),
			want:     "-0.63",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tax.Profit(decimal.RequireFromString(tt.price), tt.platform, tt.snap)
			if err != nil {
				t.Fatalf("Profit() error = %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Profit() = %s, want %s", got, tt.want)
			}
		})
	}
}

// Profit is linear in price: fixed part constant, variable part proportional.
func TestProfit_Linearity(t *testing.T) {
	s := snap("1.05", "4.0")
	for _, platform := range []tax.Platform{tax.Kinguin, tax.G2A} {
		p1, err := tax.Profit(decimal.RequireFromString("10"), platform, s)
		if err != nil {
			t.Fatalf("Profit(10, %s) error = %v", platform, err)
		}
		p2, err := tax.Profit(decimal.RequireFromString("20"), platform, s)
		if err != nil {
			t.Fatalf("Profit(20, %s) error = %v", platform, err)
		}
		p3, err := tax.Profit(decimal.RequireFromString("30"), platform, s)
		if err != nil {
			t.Fatalf("Profit(30, %s) error = %v", platform, err)
		}

		// Equal price increments produce equal profit increments.
		if !p2.Sub(p1).Equal(p3.Sub(p2)) {
			t.Errorf("%s: non-linear: %s vs %s", platform, p2.Sub(p1), p3.Sub(p2))
		}
	}
}

func TestProfit_Deterministic(t *testing.T) {
	s := snap("1.1234", "3.9876")
	price := decimal.RequireFromString("123.45")
	first, err := tax.Profit(price, tax.G2A, s)
	if err != nil {
		t.Fatalf("Profit() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := tax.Profit(price, tax.G2A, s)
		if err != nil {
			t.Fatalf("Profit() error = %v", err)
		}
		if !got.Equal(first) {
			t.Fatalf("Profit() = %s on repeat, want %s", got, first)
		}
	}
}

func TestProfit_UnknownPlatform(t *testing.T) {
	for _, platform := range []tax.Platform{"", "steam", "Kinguin", "ebay"} {
		_, err := tax.Profit(decimal.RequireFromString("50"), platform, snap("1.05", "4.0"))
		if !errors.Is(err, tax.ErrUnknownPlatform) {
			t.Errorf("Profit(%q) error = %v, want ErrUnknownPlatform", platform, err)
		}
	}
}
