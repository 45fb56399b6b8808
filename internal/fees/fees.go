package fees

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DomesticCountryCode marks a shipping destination as domestic.
const DomesticCountryCode = "JP"

var hundred = decimal.NewFromInt(100)

// TransferFees is the split of one order's total between the shop and the platform.
type TransferFees struct {
	TotalAmount         int64
	TransferAmount      int64
	PlatformFee         int64
	PlatformFeePercents decimal.Decimal
}

// CalcPaymentTransferFees computes the shop transfer with round-half-up and
// takes the platform fee as the residual, so the two always sum to total.
func CalcPaymentTransferFees(total int64, shopPercents, stripePercents decimal.Decimal) TransferFees {
	pct := clampPercent(shopPercents.Add(stripePercents))
	transfer := decimal.NewFromInt(total).
		Mul(hundred.Sub(pct)).
		Div(hundred).
		Round(0).
		IntPart()
	return TransferFees{
		TotalAmount:         total,
		TransferAmount:      transfer,
		PlatformFee:         total - transfer,
		PlatformFeePercents: pct,
	}
}

// ProcessorFee is the gateway's cut of amount, rounded half-up.
func ProcessorFee(amount int64, stripePercents decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).
		Mul(clampPercent(stripePercents)).
		Div(hundred).
		Round(0).
		IntPart()
}

// CoinReward is floor(fiat * rate / 100).
func CoinReward(fiat int64, rate decimal.Decimal) int64 {
	if fiat <= 0 || rate.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(fiat).Mul(rate).Div(hundred).Floor().IntPart()
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.Sign() < 0 {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// LegShare is the part of an order's transfer and platform fee carried by one
// payment leg.
type LegShare struct {
	TransferAmount int64
	PlatformFee    int64
}

// LegSplit is an order's allocation across the fiat and coin legs.
type LegSplit struct {
	Fiat LegShare
	Coin LegShare
}

// LegTransfers returns the transfer carried by each leg of a checkout: the fiat
// leg moves min(fiat, totalTransfer) and the coin leg the remainder.
func LegTransfers(fiatAmount, totalTransfer int64) (fiat, coin int64) {
	fiat = min(max(fiatAmount, 0), totalTransfer)
	return fiat, totalTransfer - fiat
}

// SplitLegs allocates the fiat leg's transfer budget across orders in the
// given order, fiat first. Each order's platform fee follows its transfer
// split proportionally; the coin leg takes every residual so per-order sums
// reconcile exactly.
func SplitLegs(orders []TransferFees, fiatTransfer int64, hasFiat bool) []LegSplit {
	out := make([]LegSplit, len(orders))
	remaining := max(fiatTransfer, 0)
	for i, o := range orders {
		share := min(remaining, o.TransferAmount)
		remaining -= share

		var fiatFee int64
		switch {
		case o.TransferAmount > 0:
			fiatFee = decimal.NewFromInt(o.PlatformFee).
				Mul(decimal.NewFromInt(share)).
				Div(decimal.NewFromInt(o.TransferAmount)).
				Round(0).
				IntPart()
		case hasFiat:
			fiatFee = o.PlatformFee
		}

		out[i] = LegSplit{
			Fiat: LegShare{TransferAmount: share, PlatformFee: fiatFee},
			Coin: LegShare{TransferAmount: o.TransferAmount - share, PlatformFee: o.PlatformFee - fiatFee},
		}
	}
	return out
}

// IsDomestic reports whether a destination country ships at domestic rates.
func IsDomestic(countryCode string) bool {
	return strings.EqualFold(strings.TrimSpace(countryCode), DomesticCountryCode)
}

// ShippingLine is one cart line's shipping inputs.
type ShippingLine struct {
	DomesticFee int64
	OverseasFee int64
	Disabled    bool
}

// ShippingPolicy carries the shop-level shipping settings.
type ShippingPolicy struct {
	Enabled           bool
	DomesticThreshold *int64
	OverseasThreshold *int64
}

// ShippingFee sums per-line fees for the destination and waives the total when
// the subtotal meets the applicable free-shipping threshold. A nil threshold
// never waives.
func ShippingFee(lines []ShippingLine, policy ShippingPolicy, subtotal int64, countryCode string) int64 {
	if !policy.Enabled {
		return 0
	}
	domestic := IsDomestic(countryCode)
	threshold := policy.OverseasThreshold
	if domestic {
		threshold = policy.DomesticThreshold
	}
	if threshold != nil && subtotal >= *threshold {
		return 0
	}

	var total int64
	for _, line := range lines {
		if line.Disabled {
			continue
		}
		if domestic {
			total += line.DomesticFee
		} else {
			total += line.OverseasFee
		}
	}
	return total
}
