package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeStatus is the lifecycle state of a trade attempt.
type TradeStatus string

const (
	StatusPlaced  TradeStatus = "Placed"
	StatusFilled  TradeStatus = "Filled"
	StatusSkipped TradeStatus = "Skipped"
	StatusError   TradeStatus = "Error"
)

// TradeAttempt is one journaled routing attempt. The dispatcher owns its
// lifecycle; the journal and the local store only persist snapshots.
type TradeAttempt struct {
	ID       string `gorm:"primaryKey" json:"id"`
	Symbol   string `gorm:"index" json:"symbol"`
	Exchange string `json:"exchange"` // "upbit", "kis"
	Kind     string `json:"kind"`     // "buy", "exit", "manual"
	Side     string `json:"side"`     // "buy", "sell"
	Strategy string `json:"strategy"`
	Interval string `json:"interval"`

	Status TradeStatus `gorm:"index" json:"status"`
	Reason string      `json:"reason,omitempty"`

	EntryPrice *decimal.Decimal `json:"entry_price,omitempty"`
	ExitPrice  *decimal.Decimal `json:"exit_price,omitempty"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	OrderID    string           `json:"order_id,omitempty"`

	JournalPageID string `json:"journal_page_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTradeAttempt creates a Placed attempt for an alert.
func NewTradeAttempt(symbol, exchange, kind, side, strategy, interval string) *TradeAttempt {
	return &TradeAttempt{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Exchange: exchange,
		Kind:     kind,
		Side:     side,
		Strategy: strategy,
		Interval: interval,
		Status:   StatusPlaced,
	}
}

// Resolved reports whether the attempt reached a terminal state.
// Filled and Error are terminal; Skipped attempts were never in flight.
func (t *TradeAttempt) Resolved() bool {
	return t.Status == StatusFilled || t.Status == StatusError
}

// Transition moves the attempt to a new status and reports whether the move
// was applied. Status is monotonic: once Filled or Error, later transitions
// from the same alert are ignored.
func (t *TradeAttempt) Transition(to TradeStatus) bool {
	if t.Resolved() {
		return false
	}
	t.Status = to
	return true
}
