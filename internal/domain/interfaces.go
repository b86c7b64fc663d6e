package domain

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// OrderResult is what an exchange adapter returns for a placed order.
type OrderResult struct {
	OrderID string
	// Raw is the exchange response body, passed through to the caller.
	Raw json.RawMessage
}

// CryptoExchange places spot market orders on the crypto exchange. Market
// buys spend a KRW amount; market sells dispose a coin quantity.
type CryptoExchange interface {
	AvailableKRW(ctx context.Context) (decimal.Decimal, error)
	Position(ctx context.Context, symbol string) (decimal.Decimal, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	BuyMarket(ctx context.Context, symbol string, amountKRW decimal.Decimal) (*OrderResult, error)
	SellMarket(ctx context.Context, symbol string, quantity decimal.Decimal) (*OrderResult, error)
}

// EquityBroker places whole-share market orders with the equities broker.
type EquityBroker interface {
	AvailableCash(ctx context.Context) (decimal.Decimal, error)
	Position(ctx context.Context, ticker string) (decimal.Decimal, error)
	CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	PlaceMarketOrder(ctx context.Context, ticker, side string, quantity int64) (*OrderResult, error)
}

// CandleSource fetches recent daily candles for a crypto pair,
// most-recent-last.
type CandleSource interface {
	DailyCandles(ctx context.Context, symbol string, count int) ([]Candle, error)
}

// CloseSource fetches recent daily closes for an equity ticker,
// most-recent-last. Implementations query a wider date window and trim to
// the last `days` rows to tolerate non-trading days.
type CloseSource interface {
	DailyCloses(ctx context.Context, ticker string, days int) ([]Candle, error)
}

// JournalUpdate is a partial update applied to an existing journal record.
// Zero/nil fields are skipped.
type JournalUpdate struct {
	Status     TradeStatus
	Position   string
	Strategy   string
	Interval   string
	EntryPrice *decimal.Decimal
	ExitPrice  *decimal.Decimal
	Quantity   *decimal.Decimal
	OrderID    string
}

// Journal persists trade attempts to the external record-keeping service.
// All calls are best-effort from the dispatcher's point of view.
type Journal interface {
	CreateTrade(ctx context.Context, t *TradeAttempt, webhook []byte) (pageID string, err error)
	UpdateTrade(ctx context.Context, pageID string, u JournalUpdate) error
}

// TradeStore is the local trade-attempt history.
type TradeStore interface {
	Insert(ctx context.Context, t *TradeAttempt) error
	Update(ctx context.Context, t *TradeAttempt) error
	Recent(ctx context.Context, limit int) ([]TradeAttempt, error)
}
