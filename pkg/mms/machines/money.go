package machines

import "math"

// UnitTax is the tax on price in cents, rounded half to even
func UnitTax(price int64, taxInPercent float64) int64 {
	return int64(math.RoundToEven(float64(price) * taxInPercent / 100))
}

// PriceWithTax is price plus its unit tax
func PriceWithTax(price int64, taxInPercent float64) int64 {
	return price + UnitTax(price, taxInPercent)
}

// ValidTaxPercent reports whether pct lies in [0, 100]
func ValidTaxPercent(pct float64) bool {
	return !math.IsNaN(pct) && pct >= 0 && pct <= 100
}
