package model

// Thresholds control scoring and classification for one match run.
// Supplied per run and never mutated during it. Values are accepted as-is:
// validation is the caller's responsibility, not the evaluator's.
type Thresholds struct {
	VendorMin              int
	ProductMin             int
	OverallAccept          int
	WeightVendor           float64
	WeightProduct          float64
	SKUExactBoost          int
	NumericMismatchPenalty int
}

// DefaultThresholds returns the stock configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VendorMin:              80,
		ProductMin:             75,
		OverallAccept:          85,
		WeightVendor:           0.6,
		WeightProduct:          0.4,
		SKUExactBoost:          10,
		NumericMismatchPenalty: 8,
	}
}
