package data

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Decimals of the gift token (MNT-like, 18 decimals).
const Decimals = 18

// ParseAmount converts a decimal token amount ("1.5") into the smallest unit.
func ParseAmount(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", amount)
	}

	wei := d.Shift(Decimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, errors.Errorf("amount %q has too many decimals", amount)
	}

	if wei.Sign() <= 0 {
		return nil, errors.Errorf("amount %q must be positive", amount)
	}

	return wei.BigInt(), nil
}

// FormatAmount renders a smallest-unit amount as a decimal token amount.
func FormatAmount(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -Decimals).String()
}
