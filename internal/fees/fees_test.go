package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalcPaymentTransferFees(t *testing.T) {
	cases := []struct {
		name     string
		total    int64
		shop     string
		stripe   string
		transfer int64
		fee      int64
	}{
		{name: "round half up", total: 1005, shop: "10", stripe: "0", transfer: 905, fee: 100},
		{name: "fractional percent", total: 1000, shop: "10", stripe: "3.6", transfer: 864, fee: 136},
		{name: "zero total", total: 0, shop: "10", stripe: "3", transfer: 0, fee: 0},
		{name: "full platform cut", total: 500, shop: "97", stripe: "3", transfer: 0, fee: 500},
		{name: "over one hundred clamps", total: 500, shop: "99", stripe: "3", transfer: 0, fee: 500},
		{name: "no fees", total: 777, shop: "0", stripe: "0", transfer: 777, fee: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalcPaymentTransferFees(tc.total, pct(tc.shop), pct(tc.stripe))
			assert.Equal(t, tc.transfer, got.TransferAmount)
			assert.Equal(t, tc.fee, got.PlatformFee)
		})
	}
}

func TestCalcPaymentTransferFeesAlwaysReconciles(t *testing.T) {
	percents := []string{"0", "0.5", "3", "3.6", "12.5", "33.33", "50", "99.99", "100"}
	for total := int64(0); total <= 2500; total += 7 {
		for _, p := range percents {
			got := CalcPaymentTransferFees(total, pct(p), decimal.Zero)
			if got.TransferAmount+got.PlatformFee != total {
				t.Fatalf("total=%d pct=%s: %d + %d != total", total, p, got.TransferAmount, got.PlatformFee)
			}
			if got.TransferAmount < 0 || got.TransferAmount > total {
				t.Fatalf("total=%d pct=%s: transfer %d out of range", total, p, got.TransferAmount)
			}
		}
	}
}

func TestTwoShopScenario(t *testing.T) {
	stripe := pct("3")
	shopA := CalcPaymentTransferFees(600, pct("10"), stripe)
	shopB := CalcPaymentTransferFees(400, pct("15"), stripe)

	assert.Equal(t, int64(522), shopA.TransferAmount)
	assert.Equal(t, int64(78), shopA.PlatformFee)
	assert.True(t, shopA.PlatformFeePercents.Equal(pct("13")))
	assert.Equal(t, int64(328), shopB.TransferAmount)
	assert.Equal(t, int64(72), shopB.PlatformFee)

	for _, f := range []TransferFees{shopA, shopB} {
		assert.Equal(t, f.TotalAmount, f.TransferAmount+f.PlatformFee)
	}
	assert.Equal(t, int64(1000), shopA.TotalAmount+shopB.TotalAmount)

	fiat, coin := LegTransfers(1000, shopA.TransferAmount+shopB.TransferAmount)
	assert.Equal(t, int64(850), fiat)
	assert.Equal(t, int64(0), coin)
}

func TestCoinReward(t *testing.T) {
	assert.Equal(t, int64(10), CoinReward(1000, pct("1")))
	assert.Equal(t, int64(12), CoinReward(1299, pct("1")))
	assert.Equal(t, int64(0), CoinReward(0, pct("5")))
	assert.Equal(t, int64(0), CoinReward(1000, decimal.Zero))
	assert.Equal(t, int64(15), CoinReward(1000, pct("1.5")))
}

func TestProcessorFee(t *testing.T) {
	assert.Equal(t, int64(36), ProcessorFee(1000, pct("3.6")))
	assert.Equal(t, int64(4), ProcessorFee(125, pct("3")))
	assert.Equal(t, int64(0), ProcessorFee(0, pct("3.6")))
}

func TestLegTransfers(t *testing.T) {
	fiat, coin := LegTransfers(300, 850)
	assert.Equal(t, int64(300), fiat)
	assert.Equal(t, int64(550), coin)

	fiat, coin = LegTransfers(0, 850)
	assert.Equal(t, int64(0), fiat)
	assert.Equal(t, int64(850), coin)
}

func TestSplitLegsReconcilesPerOrder(t *testing.T) {
	orders := []TransferFees{
		CalcPaymentTransferFees(600, pct("10"), pct("3")),
		CalcPaymentTransferFees(400, pct("15"), pct("3")),
	}
	fiat, _ := LegTransfers(700, orders[0].TransferAmount+orders[1].TransferAmount)
	splits := SplitLegs(orders, fiat, true)

	var fiatSum int64
	for i, s := range splits {
		assert.Equal(t, orders[i].TransferAmount, s.Fiat.TransferAmount+s.Coin.TransferAmount)
		assert.Equal(t, orders[i].PlatformFee, s.Fiat.PlatformFee+s.Coin.PlatformFee)
		assert.GreaterOrEqual(t, s.Fiat.PlatformFee, int64(0))
		assert.GreaterOrEqual(t, s.Coin.PlatformFee, int64(0))
		fiatSum += s.Fiat.TransferAmount
	}
	assert.Equal(t, fiat, fiatSum)
	assert.Equal(t, int64(522), splits[0].Fiat.TransferAmount)
	assert.Equal(t, int64(178), splits[1].Fiat.TransferAmount)
}

func TestSplitLegsZeroTransferOrder(t *testing.T) {
	orders := []TransferFees{CalcPaymentTransferFees(100, pct("100"), decimal.Zero)}
	split := SplitLegs(orders, 0, true)
	assert.Equal(t, int64(100), split[0].Fiat.PlatformFee)

	split = SplitLegs(orders, 0, false)
	assert.Equal(t, int64(100), split[0].Coin.PlatformFee)
}

func TestShippingFee(t *testing.T) {
	threshold := int64(5000)
	overseas := int64(20000)
	lines := []ShippingLine{
		{DomesticFee: 500, OverseasFee: 2000},
		{DomesticFee: 300, OverseasFee: 1500},
		{DomesticFee: 900, OverseasFee: 900, Disabled: true},
	}
	policy := ShippingPolicy{Enabled: true, DomesticThreshold: &threshold, OverseasThreshold: &overseas}

	cases := []struct {
		name     string
		policy   ShippingPolicy
		subtotal int64
		country  string
		want     int64
	}{
		{name: "domestic below threshold", policy: policy, subtotal: 4999, country: "JP", want: 800},
		{name: "domestic meets threshold", policy: policy, subtotal: 5000, country: "jp", want: 0},
		{name: "overseas below its threshold", policy: policy, subtotal: 5000, country: "US", want: 3500},
		{name: "overseas meets threshold", policy: policy, subtotal: 20000, country: "US", want: 0},
		{name: "shop disabled", policy: ShippingPolicy{}, subtotal: 1, country: "JP", want: 0},
		{name: "no threshold never waives", policy: ShippingPolicy{Enabled: true}, subtotal: 1 << 40, country: "JP", want: 800},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShippingFee(lines, tc.policy, tc.subtotal, tc.country))
		})
	}
}
