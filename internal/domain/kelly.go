package domain

import "github.com/shopspring/decimal"

// Volatility tier table. Boundaries are left-closed: a volatility exactly on
// a boundary selects the lower (more aggressive) tier.
const (
	MinKellyFraction = 0.10
	MaxKellyFraction = 0.50

	// MinOrderFloorKRW is the smallest allocation worth sending to an
	// exchange; also Upbit's minimum order amount.
	MinOrderFloorKRW = 5000

	// FixedKelly and AggressiveKelly are informational reference fractions
	// carried on the decision record; they never drive sizing.
	FixedKelly      = 0.25
	AggressiveKelly = 0.50
)

type kellyTier struct {
	maxVol   float64
	fraction float64
	name     string
}

var kellyTiers = []kellyTier{
	{0.01, 0.40, "low_volatility_aggressive"},
	{0.02, 0.30, "moderate_balanced"},
	{0.03, 0.20, "elevated_conservative"},
}

const (
	highVolFraction = 0.15
	highVolName     = "high_volatility_safe"
)

// SelectTier maps a daily-return volatility to its capital-allocation
// fraction and tier name.
func SelectTier(volatility float64) (float64, string) {
	for _, t := range kellyTiers {
		if volatility <= t.maxVol {
			return t.fraction, t.name
		}
	}
	return highVolFraction, highVolName
}

// ClampFraction bounds a fraction to the [MinKellyFraction, MaxKellyFraction]
// safety band. Tier values already lie inside; the clamp is defensive.
func ClampFraction(f float64) float64 {
	if f < MinKellyFraction {
		return MinKellyFraction
	}
	if f > MaxKellyFraction {
		return MaxKellyFraction
	}
	return f
}

// VolatilityScaledFraction is the informational alternative fraction exposed
// on the decision record: a base 0.25 scaled by 0.02/vol and clamped to the
// safety band. Volatility is floored at 0.005 to keep the ratio bounded.
func VolatilityScaledFraction(volatility float64) float64 {
	v := volatility
	if v < 0.005 {
		v = 0.005
	}
	return ClampFraction(FixedKelly * (0.02 / v))
}

// BoundAmount applies the allocation bounds: raw = available * fraction,
// floored at MinOrderFloorKRW when capital permits and never above the
// available capital.
func BoundAmount(available decimal.Decimal, fraction float64) (raw, final decimal.Decimal) {
	raw = available.Mul(decimal.NewFromFloat(fraction))
	final = raw
	floor := decimal.NewFromInt(MinOrderFloorKRW)
	if final.LessThan(floor) {
		final = floor
	}
	if final.GreaterThan(available) {
		final = available
	}
	return raw, final
}

// KellyDecision is the record produced by one sizing call. Field names mirror
// the stats block returned to webhook callers.
type KellyDecision struct {
	Method          string          `json:"method"`
	Volatility      float64         `json:"volatility"`
	VolatilityKelly float64         `json:"volatility_kelly"`
	FixedKelly      float64         `json:"fixed_kelly"`
	AggressiveKelly float64         `json:"aggressive_kelly"`
	TierKelly       float64         `json:"tier_kelly"`
	TierName        string          `json:"tier_name"`
	KellyFraction   float64         `json:"kelly_fraction"`
	KellyAmount     decimal.Decimal `json:"kelly_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	AvailableKRW    decimal.Decimal `json:"available_krw"`
	MinThreshold    float64         `json:"min_threshold"`
	MaxThreshold    float64         `json:"max_threshold"`

	// Degraded marks that the volatility fetch failed and the default was
	// used. Informational; the amount is still valid for sizing.
	Degraded bool `json:"degraded,omitempty"`
}
