package acquisition

import "github.com/shopspring/decimal"

// YieldPerMu is the expected harvest in kilograms per mu of planted acreage.
var YieldPerMu = decimal.NewFromInt(300)

var abnormalDeviation = decimal.RequireFromString("0.5")

// EstimateYield returns the expected net weight for a farmer's acreage.
func EstimateYield(acreage decimal.Decimal) decimal.Decimal {
	if !acreage.IsPositive() {
		return decimal.Zero
	}
	return acreage.Mul(YieldPerMu).Round(2)
}

// IsAbnormal flags a net weight deviating more than 50% from the estimate.
// It is advisory only and never blocks an acquisition.
func IsAbnormal(netWeight, estimated decimal.Decimal) bool {
	if !estimated.IsPositive() {
		return false
	}
	deviation := netWeight.Sub(estimated).Abs().Div(estimated)
	return deviation.GreaterThan(abnormalDeviation)
}
