package service

import (
	"context"
	"log/slog"
	"math"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
)

const (
	// DefaultVolatility is used whenever a history fetch fails or yields
	// too few rows. 2% daily volatility lands in the balanced tier.
	DefaultVolatility = 0.02

	// HistoryDays is the target window of daily closes.
	HistoryDays = 30
)

// Estimator computes daily-return volatility from recent price history.
// All fetch failures are absorbed into the default; Estimate never fails.
type Estimator struct {
	crypto domain.CandleSource
	equity domain.CloseSource
	log    *slog.Logger
}

// NewEstimator creates an estimator over the market-appropriate sources.
// Either source may be nil; the matching market then degrades to the default.
func NewEstimator(crypto domain.CandleSource, equity domain.CloseSource, log *slog.Logger) *Estimator {
	if log == nil {
		log = slog.Default()
	}
	return &Estimator{crypto: crypto, equity: equity, log: log}
}

// Estimate returns the sample standard deviation of daily percentage returns
// over the last HistoryDays closes, and whether the default had to be used.
func (e *Estimator) Estimate(ctx context.Context, symbol string, kind domain.MarketKind) (float64, bool) {
	candles, err := e.fetch(ctx, symbol, kind)
	if err != nil {
		e.log.Warn("volatility history fetch failed, using default",
			slog.String("symbol", symbol),
			slog.String("market", kind.String()),
			slog.Any("error", err),
		)
		return DefaultVolatility, true
	}

	returns := domain.Returns(candles)
	// Sample stddev needs at least two observations; a single price point
	// produces an empty return series.
	if len(returns) < 2 {
		e.log.Warn("volatility history too short, using default",
			slog.String("symbol", symbol),
			slog.Int("candles", len(candles)),
		)
		return DefaultVolatility, true
	}

	vol := sampleStdDev(returns)
	e.log.Info("volatility estimated",
		slog.String("symbol", symbol),
		slog.Int("candles", len(candles)),
		slog.Float64("volatility", vol),
	)
	return vol, false
}

func (e *Estimator) fetch(ctx context.Context, symbol string, kind domain.MarketKind) ([]domain.Candle, error) {
	switch kind {
	case domain.MarketCrypto:
		if e.crypto == nil {
			return nil, errNoSource
		}
		return e.crypto.DailyCandles(ctx, symbol, HistoryDays)
	case domain.MarketEquity:
		if e.equity == nil {
			return nil, errNoSource
		}
		return e.equity.DailyCloses(ctx, symbol, HistoryDays)
	default:
		// Unrecognized volatility source: no fetch attempted.
		return nil, errNoSource
	}
}

type sourceError string

func (s sourceError) Error() string { return string(s) }

const errNoSource = sourceError("no history source for market kind")

// sampleStdDev computes the standard deviation with Bessel's correction
// (ddof=1), matching the sample statistic over daily returns.
func sampleStdDev(xs []float64) float64 {
	n := float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}
