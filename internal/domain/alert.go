package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AlertKind is the resolved intent of an inbound alert.
type AlertKind int

const (
	KindManual AlertKind = iota
	KindBuy
	KindExit
)

func (k AlertKind) String() string {
	switch k {
	case KindBuy:
		return "buy"
	case KindExit:
		return "exit"
	default:
		return "manual"
	}
}

// Alert is the inbound TradingView webhook payload. Several fields accept
// alternate spellings used by different alert templates; the Label helpers
// resolve them.
type Alert struct {
	AlertName  string `json:"alert_name"`
	Symbol     string `json:"symbol"`
	Passphrase string `json:"passphrase"`

	// Manual mode only.
	Side     string           `json:"side"`
	Quantity *decimal.Decimal `json:"quantity"`

	Strategy  string `json:"strategy"`
	Condition string `json:"condition"`
	Interval  string `json:"interval"`
	Timeframe string `json:"timeframe"`
	TF        string `json:"tf"`

	// Raw is the original request body, kept for the journal. Set by the
	// HTTP handler, never unmarshaled.
	Raw []byte `json:"-"`
}

// Kind resolves the alert intent: any name containing "buy" selects the buy
// path, "exit" or "sell" the exit path, and anything else (including an
// empty name) falls to the manual pass-through path.
func (a *Alert) Kind() AlertKind {
	name := strings.ToLower(a.AlertName)
	switch {
	case name == "":
		return KindManual
	case strings.Contains(name, "buy"):
		return KindBuy
	case strings.Contains(name, "exit") || strings.Contains(name, "sell"):
		return KindExit
	default:
		return KindManual
	}
}

// StrategyLabel returns the strategy tag for journaling, falling back from
// strategy to condition to the default label.
func (a *Alert) StrategyLabel() string {
	if a.Strategy != "" {
		return a.Strategy
	}
	if a.Condition != "" {
		return a.Condition
	}
	return "Kelly"
}

// IntervalLabel returns the timeframe tag, accepting the interval/timeframe/tf
// spellings. Empty when none was sent.
func (a *Alert) IntervalLabel() string {
	if a.Interval != "" {
		return a.Interval
	}
	if a.Timeframe != "" {
		return a.Timeframe
	}
	return a.TF
}
