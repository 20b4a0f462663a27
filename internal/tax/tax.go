// Package tax computes after-tax keyshop sale proceeds. All math is done
// with decimals; the calculator is pure and performs no I/O.
package tax

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mjaros/dealwatch/internal/rates"
)

// ErrUnknownPlatform is returned for a platform outside the fixed fee table.
// The watcher only ever passes the two known platforms, so hitting this at
// runtime indicates a programming error, not a recoverable condition.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform is a keyshop selling platform.
type Platform string

// The two supported keyshops.
const (
	Kinguin Platform = "kinguin"
	G2A     Platform = "g2a"
)

// fees holds a platform's sale fee structure: a fixed fee in EUR plus a
// fraction of the selling price.
type fees struct {
	FixedEUR decimal.Decimal
	Variable decimal.Decimal
}

var feeTable = map[Platform]fees{
	Kinguin: {FixedEUR: decimal.NewFromFloat(0.15), Variable: decimal.NewFromFloat(0.14)},
	G2A:     {FixedEUR: decimal.NewFromFloat(0.35), Variable: decimal.NewFromFloat(0.21)},
}

// Profit returns the after-tax proceeds of selling at price (settlement
// currency, PLN) on the given platform:
//
//	price - fixed_fee_eur * (eur_to_usd * usd_to_pln) - variable_fee * price
func Profit(price decimal.Decimal, platform Platform, snap rates.Snapshot) (decimal.Decimal, error) {
	f, ok := feeTable[platform]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}

	fixed := f.FixedEUR.Mul(snap.Combined())
	variable := f.Variable.Mul(price)
	return price.Sub(fixed).Sub(variable), nil
}
