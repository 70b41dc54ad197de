package orders

import (
	"fmt"
	"math"
)

// FallbackUnitPrice is the sentinel applied when no list price exists for a
// product on any branch. Kept for compatibility with historic documents.
const FallbackUnitPrice = 1.0

// LineInput are the resolved per-unit inputs for one line computation.
type LineInput struct {
	Quantity     float64
	SalePrice    float64
	DiscountUnit float64
	TaxPercent   float64
}

// LineAmounts are the computed per-unit monetary fields plus the extended
// line total. Base, Tax and Net are per unit.
type LineAmounts struct {
	Base      float64
	Tax       float64
	Net       float64
	LineTotal float64
}

// ComputeLine computes the monetary fields for one order line. Rounding is
// half-up to 2 decimals at each derived step.
func ComputeLine(in LineInput) (LineAmounts, error) {
	if in.Quantity <= 0 {
		return LineAmounts{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	base := in.SalePrice - in.DiscountUnit
	if base < 0 {
		return LineAmounts{}, fmt.Errorf("%w: discount exceeds price", ErrValidation)
	}
	tax := round2(base * in.TaxPercent / 100)
	net := round2(base + tax)
	return LineAmounts{
		Base:      base,
		Tax:       tax,
		Net:       net,
		LineTotal: round2(net * in.Quantity),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
