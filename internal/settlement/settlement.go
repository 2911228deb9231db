// Package settlement splits an escrowed amount into refund, seller proceeds
// and platform fee, working entirely in integer minor units.
package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PlatformFeePercent is retained by the operator regardless of dispute
// outcome.
const PlatformFeePercent int64 = 5

// Breakdown is the settlement of a single transaction in minor units.
// SellerAmount can be negative at a 100% refund: the fee is still retained
// from the captured total, so the seller leg is -fee. Callers skip transfers
// for non-positive seller amounts.
type Breakdown struct {
	TotalAmount  int64
	RefundAmount int64
	SellerAmount int64
	PlatformFee  int64
}

// ReconciliationMismatch means the computed legs do not add back to the
// total. It must never reach the gateway; callers verify before any
// external call.
type ReconciliationMismatch struct {
	Breakdown Breakdown
}

func (e *ReconciliationMismatch) Error() string {
	b := e.Breakdown
	return fmt.Sprintf("settlement does not conserve total: refund=%d seller=%d fee=%d total=%d",
		b.RefundAmount, b.SellerAmount, b.PlatformFee, b.TotalAmount)
}

// MinorUnits converts a price in major units (decimal string, e.g. "100.00")
// to integer minor units, rounding half away from zero.
func MinorUnits(price string) (int64, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("price must be positive, got %q", price)
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// Compute splits totalMinor according to refundPercentage, which is clamped
// to [0,100]. Fee and refund are each rounded half away from zero; the
// seller amount is the remainder, never rounded independently, so the three
// legs always conserve the total.
func Compute(totalMinor int64, refundPercentage int) Breakdown {
	if refundPercentage < 0 {
		refundPercentage = 0
	}
	if refundPercentage > 100 {
		refundPercentage = 100
	}

	fee := divRound(totalMinor*PlatformFeePercent, 100)
	refund := divRound(totalMinor*int64(refundPercentage), 100)

	return Breakdown{
		TotalAmount:  totalMinor,
		RefundAmount: refund,
		SellerAmount: totalMinor - refund - fee,
		PlatformFee:  fee,
	}
}

// ComputeFromPrice is Compute over a major-unit price string.
func ComputeFromPrice(price string, refundPercentage int) (Breakdown, error) {
	total, err := MinorUnits(price)
	if err != nil {
		return Breakdown{}, err
	}
	return Compute(total, refundPercentage), nil
}

// Verify re-checks conservation. Returns a ReconciliationMismatch if the
// legs do not add back to the total.
func (b Breakdown) Verify() error {
	if b.RefundAmount+b.SellerAmount+b.PlatformFee != b.TotalAmount {
		return &ReconciliationMismatch{Breakdown: b}
	}
	return nil
}

// divRound divides and rounds half away from zero.
func divRound(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	half := denominator / 2
	if numerator < 0 {
		return (numerator - half) / denominator
	}
	return (numerator + half) / denominator
}
