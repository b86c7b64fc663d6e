package domain

import "time"

// Candle is a single daily price observation. Only the closing price is
// relevant to volatility estimation; other OHLC fields are dropped at the
// adapter boundary.
type Candle struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// Returns computes consecutive close-over-close percentage changes in
// chronological order. The first row has no defined change and is dropped;
// rows following a zero close are skipped to avoid division by zero.
func Returns(candles []Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, (candles[i].Close-prev)/prev)
	}
	return out
}
