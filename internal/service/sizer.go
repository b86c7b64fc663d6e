package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
)

// Sizer selects a capital-allocation fraction from return volatility and
// turns it into a bounded KRW amount. Size never fails: every failure path
// collapses into a safe allocation with a tagged decision record, so the
// caller always has a usable amount.
type Sizer struct {
	est *Estimator
	log *slog.Logger
}

// NewSizer creates a position sizer on top of a volatility estimator.
func NewSizer(est *Estimator, log *slog.Logger) *Sizer {
	if log == nil {
		log = slog.Default()
	}
	return &Sizer{est: est, log: log}
}

// Size computes the KRW amount to allocate for a buy of symbol given the
// available capital. volSymbol overrides the volatility source when non-empty
// (e.g. sizing an equity trade off a benchmark instead of itself).
func (s *Sizer) Size(ctx context.Context, symbol string, available decimal.Decimal, volSymbol string) (decimal.Decimal, domain.KellyDecision) {
	if available.IsNegative() {
		// Bad balance data; fall back to the fixed safe allocation.
		return s.safeDefault(available)
	}

	src := symbol
	if volSymbol != "" {
		src = volSymbol
	}
	kind := domain.Classify(src)

	vol, degraded := s.est.Estimate(ctx, src, kind)

	tierFraction, tierName := domain.SelectTier(vol)
	fraction := domain.ClampFraction(tierFraction)
	raw, final := domain.BoundAmount(available, fraction)

	decision := domain.KellyDecision{
		Method:          "tiered_kelly_" + tierName,
		Volatility:      vol,
		VolatilityKelly: domain.VolatilityScaledFraction(vol),
		FixedKelly:      domain.FixedKelly,
		AggressiveKelly: domain.AggressiveKelly,
		TierKelly:       tierFraction,
		TierName:        tierName,
		KellyFraction:   fraction,
		KellyAmount:     raw,
		FinalAmount:     final,
		AvailableKRW:    available,
		MinThreshold:    domain.MinKellyFraction,
		MaxThreshold:    domain.MaxKellyFraction,
		Degraded:        degraded,
	}

	s.log.Info("kelly sizing decided",
		slog.String("symbol", symbol),
		slog.String("tier", tierName),
		slog.Float64("volatility", vol),
		slog.Float64("fraction", fraction),
		slog.String("amount", final.StringFixed(0)),
		slog.Bool("degraded", degraded),
	)

	return final, decision
}

// safeDefault mirrors the historic error path: a quarter of capital with the
// minimum-order floor, tagged so the caller can see sizing was degraded.
func (s *Sizer) safeDefault(available decimal.Decimal) (decimal.Decimal, domain.KellyDecision) {
	amount := available.Mul(decimal.NewFromFloat(domain.FixedKelly))
	floor := decimal.NewFromInt(domain.MinOrderFloorKRW)
	if amount.LessThan(floor) {
		amount = floor
	}

	s.log.Error("kelly sizing failed, using safe default",
		slog.String("available", available.String()),
		slog.String("amount", amount.StringFixed(0)),
	)

	return amount, domain.KellyDecision{
		Method:        "error",
		KellyFraction: domain.FixedKelly,
		FinalAmount:   amount,
		AvailableKRW:  available,
		MinThreshold:  domain.MinKellyFraction,
		MaxThreshold:  domain.MaxKellyFraction,
		Degraded:      true,
	}
}
