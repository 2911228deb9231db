package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeKnownSplits(t *testing.T) {
	tests := []struct {
		name       string
		price      string
		percentage int
		refund     int64
		seller     int64
		fee        int64
	}{
		{name: "full refund keeps fee", price: "100", percentage: 100, refund: 10000, seller: -500, fee: 500},
		{name: "half refund", price: "100", percentage: 50, refund: 5000, seller: 4500, fee: 500},
		{name: "no refund", price: "100", percentage: 0, refund: 0, seller: 9500, fee: 500},
		{name: "odd cents round away from zero", price: "0.10", percentage: 50, refund: 5, seller: 4, fee: 1},
		{name: "sub-cent fee rounds to zero", price: "0.01", percentage: 0, refund: 0, seller: 1, fee: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeFromPrice(tt.price, tt.percentage)
			require.NoError(t, err)
			assert.Equal(t, tt.refund, got.RefundAmount, "refund")
			assert.Equal(t, tt.seller, got.SellerAmount, "seller")
			assert.Equal(t, tt.fee, got.PlatformFee, "fee")
			assert.NoError(t, got.Verify())
		})
	}
}

func TestComputeConservation(t *testing.T) {
	// Conservation must hold for every percentage on awkward totals.
	totals := []int64{1, 3, 7, 99, 101, 12345, 99999, 1000000, 333333333}
	for _, total := range totals {
		for pct := 0; pct <= 100; pct++ {
			b := Compute(total, pct)
			require.NoError(t, b.Verify(), "total=%d pct=%d", total, pct)
			assert.Equal(t, total, b.RefundAmount+b.SellerAmount+b.PlatformFee)
		}
	}
}

func TestComputeClampsPercentage(t *testing.T) {
	assert.Equal(t, Compute(10000, 0), Compute(10000, -5))
	assert.Equal(t, Compute(10000, 100), Compute(10000, 250))
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		price   string
		want    int64
		wantErr bool
	}{
		{price: "100", want: 10000},
		{price: "19.99", want: 1999},
		{price: "0.005", want: 1},
		{price: "0", wantErr: true},
		{price: "-3", wantErr: true},
		{price: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := MinorUnits(tt.price)
		if tt.wantErr {
			assert.Error(t, err, tt.price)
			continue
		}
		require.NoError(t, err, tt.price)
		assert.Equal(t, tt.want, got, tt.price)
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	b := Breakdown{TotalAmount: 10000, RefundAmount: 5000, SellerAmount: 5000, PlatformFee: 500}
	err := b.Verify()
	require.Error(t, err)
	var mismatch *ReconciliationMismatch
	assert.ErrorAs(t, err, &mismatch)
}
