package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStandardScenario(t *testing.T) {
	// 60 minutes at $100/h, 5% fee, 20% tax on subtotal+fee.
	q := Compute(10000, 60, false, 5, 0, 20)

	assert.Equal(t, int64(10000), q.SubtotalCents)
	assert.Equal(t, int64(500), q.FeeCents)
	assert.Equal(t, int64(2100), q.TaxCents)
	assert.Equal(t, int64(12600), q.TotalCents)
}

func TestComputePremiumBuyerFee(t *testing.T) {
	q := Compute(10000, 60, true, 5, 0, 20)

	assert.Equal(t, int64(0), q.FeeCents)
	assert.Equal(t, int64(2000), q.TaxCents)
	assert.Equal(t, int64(12000), q.TotalCents)
}

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute(3333, 95, false, 5, 0, 20)
	b := Compute(3333, 95, false, 5, 0, 20)
	assert.Equal(t, a, b)
	assert.Equal(t, a.SubtotalCents+a.FeeCents+a.TaxCents, a.TotalCents)
}

func TestComputeRoundsHalfUp(t *testing.T) {
	// 30 min at $0.01/h: 1*30/60 = 0.5 → rounds up to 1 cent.
	q := Compute(1, 30, false, 0, 0, 0)
	assert.Equal(t, int64(1), q.SubtotalCents)

	// 5% of 10 cents is 0.5 → 1 cent.
	assert.Equal(t, int64(1), Percent(10, 5))
	// 2.5% survives the basis-point conversion: 2.5% of 1000 = 25.
	assert.Equal(t, int64(25), Percent(1000, 2.5))
}

func TestSplitDeposit(t *testing.T) {
	deposit, remaining := SplitDeposit(12600, 30)
	assert.Equal(t, int64(3780), deposit)
	assert.Equal(t, int64(8820), remaining)
	assert.Equal(t, int64(12600), deposit+remaining)

	// Odd totals still sum back exactly.
	deposit, remaining = SplitDeposit(101, 30)
	assert.Equal(t, int64(30), deposit)
	assert.Equal(t, int64(71), remaining)
}

func TestCreatorPayout(t *testing.T) {
	assert.Equal(t, int64(11970), CreatorPayout(12600, 5))
	assert.Equal(t, int64(0), CreatorPayout(0, 5))

	// Half-up on the fee side: 5% of 10 = 0.5 → fee 1, payout 9.
	assert.Equal(t, int64(9), CreatorPayout(10, 5))
}

func TestTotalInvariantAcrossInputs(t *testing.T) {
	rates := []int64{1, 999, 10000, 123456}
	minutes := []int{1, 15, 59, 60, 61, 240}
	for _, r := range rates {
		for _, m := range minutes {
			q := Compute(r, m, false, 5, 0, 20)
			assert.Equal(t, q.TotalCents, q.SubtotalCents+q.FeeCents+q.TaxCents)

			dep, rem := SplitDeposit(q.TotalCents, 30)
			assert.Equal(t, q.TotalCents, dep+rem)
		}
	}
}
