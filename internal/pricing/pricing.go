package pricing

import "math"

// Quote is a price breakdown in cents. total = subtotal + fee + tax always
// holds; reconciliation and refund math depend on these being reproducible
// bit-for-bit, so everything here is integer arithmetic.
type Quote struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	FeeCents      int64 `json:"fee_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// halfUpDiv divides n by d rounding half-up. Amounts are never negative.
func halfUpDiv(n, d int64) int64 {
	return (2*n + d) / (2 * d)
}

// Percent converts a percentage of an amount to cents, half-up. Fractional
// percents are resolved to basis points first so 2.5% stays exact.
func Percent(amountCents int64, percent float64) int64 {
	bp := int64(math.Round(percent * 100))
	if bp == 0 {
		return 0
	}
	return halfUpDiv(amountCents*bp, 10000)
}

// Prorate converts an hourly rate into the price of a span of minutes.
func Prorate(rateCents int64, minutes int) int64 {
	return halfUpDiv(rateCents*int64(minutes), 60)
}

// Compute builds a quote from an hourly rate and booked minutes. The platform
// fee is taken from the subtotal; tax is applied to subtotal plus fee, in that
// order. Premium buyers get the premium fee percentage.
func Compute(rateCents int64, bookedMinutes int, premiumBuyer bool, feePercent, premiumFeePercent, taxPercent float64) Quote {
	subtotal := Prorate(rateCents, bookedMinutes)

	pct := feePercent
	if premiumBuyer {
		pct = premiumFeePercent
	}
	fee := Percent(subtotal, pct)
	tax := Percent(subtotal+fee, taxPercent)

	return Quote{
		SubtotalCents: subtotal,
		FeeCents:      fee,
		TaxCents:      tax,
		TotalCents:    subtotal + fee + tax,
	}
}

// SplitDeposit splits a total into the upfront deposit and the remainder due
// before deliverables unlock. The two always sum back to the total.
func SplitDeposit(totalCents int64, depositPercent float64) (depositCents, remainingCents int64) {
	depositCents = Percent(totalCents, depositPercent)
	return depositCents, totalCents - depositCents
}

// CreatorPayout is the creator's net after the platform fee. Dashboards and
// transfer creation both go through this one function so the numbers can
// never drift apart.
func CreatorPayout(totalCents int64, platformFeePercent float64) int64 {
	return totalCents - Percent(totalCents, platformFeePercent)
}
