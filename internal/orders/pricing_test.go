package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLine(t *testing.T) {
	t.Run("standard line with tax", func(t *testing.T) {
		amounts, err := ComputeLine(LineInput{
			Quantity:   3,
			SalePrice:  10000,
			TaxPercent: 19,
		})
		require.NoError(t, err)
		assert.Equal(t, 10000.0, amounts.Base)
		assert.Equal(t, 1900.0, amounts.Tax)
		assert.Equal(t, 11900.0, amounts.Net)
		assert.Equal(t, 35700.0, amounts.LineTotal)
	})

	t.Run("discount reduces base before tax", func(t *testing.T) {
		amounts, err := ComputeLine(LineInput{
			Quantity:     2,
			SalePrice:    1000,
			DiscountUnit: 100,
			TaxPercent:   19,
		})
		require.NoError(t, err)
		assert.Equal(t, 900.0, amounts.Base)
		assert.Equal(t, 171.0, amounts.Tax)
		assert.Equal(t, 1071.0, amounts.Net)
		assert.Equal(t, 2142.0, amounts.LineTotal)
	})

	t.Run("rounds half up at each step", func(t *testing.T) {
		// 33.33 * 19% = 6.3327 -> 6.33
		amounts, err := ComputeLine(LineInput{
			Quantity:   1,
			SalePrice:  33.33,
			TaxPercent: 19,
		})
		require.NoError(t, err)
		assert.Equal(t, 6.33, amounts.Tax)
		assert.Equal(t, 39.66, amounts.Net)
		assert.Equal(t, 39.66, amounts.LineTotal)
	})

	t.Run("zero tax rate", func(t *testing.T) {
		amounts, err := ComputeLine(LineInput{
			Quantity:  4,
			SalePrice: 250,
		})
		require.NoError(t, err)
		assert.Equal(t, 250.0, amounts.Base)
		assert.Zero(t, amounts.Tax)
		assert.Equal(t, 1000.0, amounts.LineTotal)
	})

	t.Run("fractional quantity", func(t *testing.T) {
		amounts, err := ComputeLine(LineInput{
			Quantity:   0.5,
			SalePrice:  199.99,
			TaxPercent: 19,
		})
		require.NoError(t, err)
		assert.Equal(t, 38.0, amounts.Tax)
		assert.Equal(t, 237.99, amounts.Net)
		assert.Equal(t, 119.0, amounts.LineTotal)
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		_, err := ComputeLine(LineInput{Quantity: 0, SalePrice: 100})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = ComputeLine(LineInput{Quantity: -1, SalePrice: 100})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects discount above price", func(t *testing.T) {
		_, err := ComputeLine(LineInput{Quantity: 1, SalePrice: 100, DiscountUnit: 150})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("discount equal to price yields zero amounts", func(t *testing.T) {
		amounts, err := ComputeLine(LineInput{
			Quantity: 2, SalePrice: 100, DiscountUnit: 100, TaxPercent: 19,
		})
		require.NoError(t, err)
		assert.Zero(t, amounts.Base)
		assert.Zero(t, amounts.Tax)
		assert.Zero(t, amounts.LineTotal)
	})
}
