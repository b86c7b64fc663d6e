package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
)

// Dispatcher routes one inbound alert end-to-end: classification, gates,
// sizing, order placement, journaling. Each call runs independently; the
// existing-position gate is read-then-act and concurrent alerts for the same
// instrument may race past it.
type Dispatcher struct {
	crypto  domain.CryptoExchange
	equity  domain.EquityBroker
	sizer   *Sizer
	journal domain.Journal
	store   domain.TradeStore
	hours   *MarketHours
	prices  *PriceCache

	passphrase        string
	allowDuplicateBuy bool
	minCryptoKRW      decimal.Decimal
	minEquityKRW      decimal.Decimal

	log *slog.Logger
}

// DispatcherConfig carries the dispatcher's collaborators and policy. Crypto,
// Equity, Journal, Store and Prices may be nil when unconfigured; the matching
// paths then reject or degrade.
type DispatcherConfig struct {
	Crypto  domain.CryptoExchange
	Equity  domain.EquityBroker
	Sizer   *Sizer
	Journal domain.Journal
	Store   domain.TradeStore
	Hours   *MarketHours
	Prices  *PriceCache

	Passphrase        string
	AllowDuplicateBuy bool
	MinCryptoOrderKRW int64
	MinEquityOrderKRW int64
}

// NewDispatcher wires a dispatcher from its collaborators.
func NewDispatcher(cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		crypto:            cfg.Crypto,
		equity:            cfg.Equity,
		sizer:             cfg.Sizer,
		journal:           cfg.Journal,
		store:             cfg.Store,
		hours:             cfg.Hours,
		prices:            cfg.Prices,
		passphrase:        cfg.Passphrase,
		allowDuplicateBuy: cfg.AllowDuplicateBuy,
		minCryptoKRW:      decimal.NewFromInt(cfg.MinCryptoOrderKRW),
		minEquityKRW:      decimal.NewFromInt(cfg.MinEquityOrderKRW),
		log:               log,
	}
}

// Result is the structured webhook response for a dispatched alert.
type Result struct {
	Status          string                `json:"status"` // "success" or "skipped"
	Strategy        string                `json:"strategy,omitempty"`
	Symbol          string                `json:"symbol"`
	Exchange        string                `json:"exchange"`
	Side            string                `json:"side,omitempty"`
	Reason          string                `json:"reason,omitempty"`
	Message         string                `json:"message,omitempty"`
	CurrentPosition *decimal.Decimal      `json:"current_position,omitempty"`
	Quantity        *decimal.Decimal      `json:"quantity,omitempty"`
	Price           *decimal.Decimal      `json:"price,omitempty"`
	TotalAmount     *decimal.Decimal      `json:"total_amount,omitempty"`
	KellyStats      *domain.KellyDecision `json:"kelly_stats,omitempty"`
	Details         json.RawMessage       `json:"details,omitempty"`
}

const marketClosedMessage = "Korean stock market is closed. Trading hours: 09:00-15:30 KST, Mon-Fri"

// Dispatch interprets and executes one alert. Errors carry the HTTP status
// to surface; skipped gates return a Result with status "skipped".
func (d *Dispatcher) Dispatch(ctx context.Context, alert *domain.Alert) (*Result, error) {
	if alert.Passphrase != d.passphrase {
		d.log.Warn("webhook passphrase mismatch", slog.String("symbol", alert.Symbol))
		return nil, domain.Unauthorized("Invalid passphrase")
	}
	if alert.Symbol == "" {
		return nil, domain.BadRequest("Missing symbol")
	}

	kind := domain.Classify(alert.Symbol)
	if kind == domain.MarketUnrecognized {
		return nil, domain.BadRequest(
			"Unsupported symbol format: %s. Expected: KRW-BTC (crypto) or 005930 (stock)", alert.Symbol)
	}
	if kind == domain.MarketCrypto && !domain.ValidPair(alert.Symbol) {
		return nil, domain.BadRequest("Unsupported market pair: %s", alert.Symbol)
	}

	d.log.Info("alert received",
		slog.String("symbol", alert.Symbol),
		slog.String("market", kind.String()),
		slog.String("alert", alert.AlertName),
		slog.String("kind", alert.Kind().String()),
	)

	switch alert.Kind() {
	case domain.KindBuy:
		return d.handleBuy(ctx, alert, kind)
	case domain.KindExit:
		return d.handleExit(ctx, alert, kind)
	default:
		return d.handleManual(ctx, alert, kind)
	}
}

// --- buy path ---

func (d *Dispatcher) handleBuy(ctx context.Context, alert *domain.Alert, kind domain.MarketKind) (*Result, error) {
	if kind == domain.MarketCrypto {
		return d.buyCrypto(ctx, alert)
	}
	return d.buyEquity(ctx, alert)
}

func (d *Dispatcher) buyCrypto(ctx context.Context, alert *domain.Alert) (*Result, error) {
	symbol := alert.Symbol
	attempt := domain.NewTradeAttempt(symbol, "upbit", "buy", "buy", alert.StrategyLabel(), alert.IntervalLabel())
	d.openRecord(ctx, attempt, alert.Raw)

	if d.crypto == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("Upbit client is not configured")
	}

	pos := d.cryptoPosition(ctx, symbol)
	if pos.IsPositive() && !d.allowDuplicateBuy {
		d.log.Info("existing crypto position, skipping buy",
			slog.String("symbol", symbol), slog.String("position", pos.String()))
		d.skipRecord(ctx, attempt, "existing_position", "Long")
		return &Result{
			Status:          "skipped",
			Reason:          "existing_position",
			Symbol:          symbol,
			Exchange:        "upbit",
			CurrentPosition: &pos,
		}, nil
	}

	available := d.cryptoAvailable(ctx)
	if available.LessThan(d.minCryptoKRW) {
		d.failRecord(ctx, attempt)
		return nil, domain.BadRequest("Insufficient Upbit KRW balance: %s", available)
	}

	amount, stats := d.sizer.Size(ctx, symbol, available, "")

	entry := d.cryptoLastPrice(ctx, symbol)
	res, err := d.crypto.BuyMarket(ctx, symbol, amount)
	if err != nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("Upbit buy order failed: %v", err)
	}

	// Quantity estimate for the journal; fills settle asynchronously so the
	// last trade price is the best approximation available here.
	qty := amount
	if entry != nil && entry.IsPositive() {
		qty = amount.Div(*entry)
	}

	attempt.EntryPrice = entry
	attempt.Quantity = &qty
	attempt.OrderID = res.OrderID
	d.fillRecord(ctx, attempt, domain.JournalUpdate{
		Status:     domain.StatusFilled,
		Position:   "Long",
		Strategy:   attempt.Strategy,
		Interval:   attempt.Interval,
		EntryPrice: entry,
		Quantity:   &qty,
		OrderID:    res.OrderID,
	})

	return &Result{
		Status:     "success",
		Strategy:   "signal_buy",
		Symbol:     symbol,
		Exchange:   "upbit",
		Side:       "buy",
		Quantity:   &amount,
		KellyStats: &stats,
		Details:    res.Raw,
	}, nil
}

func (d *Dispatcher) buyEquity(ctx context.Context, alert *domain.Alert) (*Result, error) {
	symbol := alert.Symbol
	attempt := domain.NewTradeAttempt(symbol, "kis", "buy", "buy", alert.StrategyLabel(), alert.IntervalLabel())
	d.openRecord(ctx, attempt, alert.Raw)

	if d.equity == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("KIS client is not configured")
	}

	// Market-hours gate runs before any balance or price work.
	if !d.hours.IsOpen() {
		d.skipRecord(ctx, attempt, "market_closed", "")
		return &Result{
			Status:   "skipped",
			Reason:   "market_closed",
			Symbol:   symbol,
			Exchange: "kis",
			Message:  marketClosedMessage,
		}, nil
	}

	pos := d.equityPosition(ctx, symbol)
	if pos.IsPositive() && !d.allowDuplicateBuy {
		d.log.Info("existing equity position, skipping buy",
			slog.String("symbol", symbol), slog.String("position", pos.String()))
		d.skipRecord(ctx, attempt, "existing_position", "Long")
		return &Result{
			Status:          "skipped",
			Reason:          "existing_position",
			Symbol:          symbol,
			Exchange:        "kis",
			CurrentPosition: &pos,
		}, nil
	}

	available := d.equityAvailable(ctx)
	if available.LessThan(d.minEquityKRW) {
		d.failRecord(ctx, attempt)
		return nil, domain.BadRequest("Insufficient KIS KRW balance: %s", available)
	}

	amount, stats := d.sizer.Size(ctx, symbol, available, "")

	price, err := d.equity.CurrentPrice(ctx, symbol)
	if err != nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("failed to fetch stock price for %s: %v", symbol, err)
	}
	if !price.IsPositive() {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("invalid stock price for %s", symbol)
	}

	shares := amount.Div(price).IntPart()
	if shares == 0 {
		d.failRecord(ctx, attempt)
		return nil, domain.BadRequest(
			"allocation too small to buy a single share of %s: price %s, allocated %s",
			symbol, price.StringFixed(0), amount.StringFixed(0))
	}

	res, err := d.equity.PlaceMarketOrder(ctx, symbol, "buy", shares)
	if err != nil || res == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("KIS buy order failed for %s: %v", symbol, err)
	}

	qty := decimal.NewFromInt(shares)
	total := price.Mul(qty)

	attempt.EntryPrice = &price
	attempt.Quantity = &qty
	attempt.OrderID = res.OrderID
	d.fillRecord(ctx, attempt, domain.JournalUpdate{
		Status:     domain.StatusFilled,
		Position:   "Long",
		Strategy:   attempt.Strategy,
		Interval:   attempt.Interval,
		EntryPrice: &price,
		Quantity:   &qty,
		OrderID:    res.OrderID,
	})

	return &Result{
		Status:      "success",
		Strategy:    "signal_buy",
		Symbol:      symbol,
		Exchange:    "kis",
		Side:        "buy",
		Quantity:    &qty,
		Price:       &price,
		TotalAmount: &total,
		KellyStats:  &stats,
		Details:     res.Raw,
	}, nil
}

// --- exit path ---

func (d *Dispatcher) handleExit(ctx context.Context, alert *domain.Alert, kind domain.MarketKind) (*Result, error) {
	if kind == domain.MarketCrypto {
		return d.exitCrypto(ctx, alert)
	}
	return d.exitEquity(ctx, alert)
}

func (d *Dispatcher) exitCrypto(ctx context.Context, alert *domain.Alert) (*Result, error) {
	symbol := alert.Symbol
	attempt := domain.NewTradeAttempt(symbol, "upbit", "exit", "sell", alert.StrategyLabel(), alert.IntervalLabel())
	d.openRecord(ctx, attempt, alert.Raw)

	if d.crypto == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("Upbit client is not configured")
	}

	pos := d.cryptoPosition(ctx, symbol)
	if !pos.IsPositive() {
		d.skipRecord(ctx, attempt, "no_position", "Exit")
		return &Result{
			Status:          "skipped",
			Reason:          "no_position",
			Symbol:          symbol,
			Exchange:        "upbit",
			CurrentPosition: &pos,
		}, nil
	}

	exit := d.cryptoLastPrice(ctx, symbol)
	res, err := d.crypto.SellMarket(ctx, symbol, pos)
	if err != nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("Upbit sell order failed: %v", err)
	}

	attempt.ExitPrice = exit
	attempt.Quantity = &pos
	attempt.OrderID = res.OrderID
	d.fillRecord(ctx, attempt, domain.JournalUpdate{
		Status:    domain.StatusFilled,
		Position:  "Exit",
		Strategy:  attempt.Strategy,
		Interval:  attempt.Interval,
		ExitPrice: exit,
		Quantity:  &pos,
		OrderID:   res.OrderID,
	})

	return &Result{
		Status:   "success",
		Strategy: "signal_exit",
		Symbol:   symbol,
		Exchange: "upbit",
		Side:     "sell",
		Quantity: &pos,
		Details:  res.Raw,
	}, nil
}

func (d *Dispatcher) exitEquity(ctx context.Context, alert *domain.Alert) (*Result, error) {
	symbol := alert.Symbol
	attempt := domain.NewTradeAttempt(symbol, "kis", "exit", "sell", alert.StrategyLabel(), alert.IntervalLabel())
	d.openRecord(ctx, attempt, alert.Raw)

	if d.equity == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("KIS client is not configured")
	}

	if !d.hours.IsOpen() {
		d.skipRecord(ctx, attempt, "market_closed", "")
		return &Result{
			Status:   "skipped",
			Reason:   "market_closed",
			Symbol:   symbol,
			Exchange: "kis",
			Message:  marketClosedMessage,
		}, nil
	}

	pos := d.equityPosition(ctx, symbol)
	if !pos.IsPositive() {
		d.skipRecord(ctx, attempt, "no_position", "Exit")
		return &Result{
			Status:          "skipped",
			Reason:          "no_position",
			Symbol:          symbol,
			Exchange:        "kis",
			CurrentPosition: &pos,
		}, nil
	}

	shares := pos.IntPart()
	res, err := d.equity.PlaceMarketOrder(ctx, symbol, "sell", shares)
	if err != nil || res == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("KIS sell order failed for %s: %v", symbol, err)
	}

	qty := decimal.NewFromInt(shares)
	attempt.Quantity = &qty
	attempt.OrderID = res.OrderID
	d.fillRecord(ctx, attempt, domain.JournalUpdate{
		Status:   domain.StatusFilled,
		Position: "Exit",
		Strategy: attempt.Strategy,
		Interval: attempt.Interval,
		Quantity: &qty,
		OrderID:  res.OrderID,
	})

	return &Result{
		Status:   "success",
		Strategy: "signal_exit",
		Symbol:   symbol,
		Exchange: "kis",
		Side:     "sell",
		Quantity: &qty,
		Details:  res.Raw,
	}, nil
}

// --- manual path ---

func (d *Dispatcher) handleManual(ctx context.Context, alert *domain.Alert, kind domain.MarketKind) (*Result, error) {
	if alert.Side == "" {
		return nil, domain.BadRequest("Missing required field: side")
	}
	if alert.Quantity == nil {
		return nil, domain.BadRequest("Missing required field: quantity")
	}
	qty := *alert.Quantity
	if !qty.IsPositive() {
		return nil, domain.BadRequest("Quantity must be positive")
	}

	side := strings.ToLower(alert.Side)
	if side != "buy" && side != "sell" {
		return nil, domain.BadRequest("Unsupported order side: %s", alert.Side)
	}

	if kind == domain.MarketCrypto {
		return d.manualCrypto(ctx, alert, side, qty)
	}
	return d.manualEquity(ctx, alert, side, qty)
}

func (d *Dispatcher) manualCrypto(ctx context.Context, alert *domain.Alert, side string, qty decimal.Decimal) (*Result, error) {
	symbol := alert.Symbol
	attempt := domain.NewTradeAttempt(symbol, "upbit", "manual", side, alert.StrategyLabel(), alert.IntervalLabel())
	d.openRecord(ctx, attempt, alert.Raw)

	if d.crypto == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("Upbit client is not configured")
	}

	var (
		res *domain.OrderResult
		err error
	)
	if side == "buy" {
		// Manual buys pass the KRW amount through unsized.
		res, err = d.crypto.BuyMarket(ctx, symbol, qty)
	} else {
		res, err = d.crypto.SellMarket(ctx, symbol, qty)
	}
	if err != nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("Upbit %s order failed: %v", side, err)
	}

	attempt.Quantity = &qty
	attempt.OrderID = res.OrderID
	d.fillRecord(ctx, attempt, domain.JournalUpdate{
		Status:   domain.StatusFilled,
		Position: manualPosition(side),
		Quantity: &qty,
		OrderID:  res.OrderID,
	})

	return &Result{
		Status:   "success",
		Symbol:   symbol,
		Exchange: "upbit",
		Side:     side,
		Quantity: &qty,
		Details:  res.Raw,
	}, nil
}

func (d *Dispatcher) manualEquity(ctx context.Context, alert *domain.Alert, side string, qty decimal.Decimal) (*Result, error) {
	symbol := alert.Symbol
	attempt := domain.NewTradeAttempt(symbol, "kis", "manual", side, alert.StrategyLabel(), alert.IntervalLabel())
	d.openRecord(ctx, attempt, alert.Raw)

	if d.equity == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("KIS client is not configured")
	}

	if !d.hours.IsOpen() {
		d.skipRecord(ctx, attempt, "market_closed", "")
		return &Result{
			Status:   "skipped",
			Reason:   "market_closed",
			Symbol:   symbol,
			Exchange: "kis",
			Message:  marketClosedMessage,
		}, nil
	}

	shares := qty.IntPart()
	if shares <= 0 {
		d.failRecord(ctx, attempt)
		return nil, domain.BadRequest("Stock quantity must be a positive integer")
	}

	res, err := d.equity.PlaceMarketOrder(ctx, symbol, side, shares)
	if err != nil || res == nil {
		d.failRecord(ctx, attempt)
		return nil, domain.Unavailable("KIS %s order failed for %s: %v", side, symbol, err)
	}

	sq := decimal.NewFromInt(shares)
	attempt.Quantity = &sq
	attempt.OrderID = res.OrderID
	d.fillRecord(ctx, attempt, domain.JournalUpdate{
		Status:   domain.StatusFilled,
		Position: manualPosition(side),
		Quantity: &sq,
		OrderID:  res.OrderID,
	})

	return &Result{
		Status:   "success",
		Symbol:   symbol,
		Exchange: "kis",
		Side:     side,
		Quantity: &sq,
		Details:  res.Raw,
	}, nil
}

func manualPosition(side string) string {
	if side == "buy" {
		return "Long"
	}
	return "Exit"
}

// --- gate reads; adapter failures here degrade instead of aborting ---

func (d *Dispatcher) cryptoPosition(ctx context.Context, symbol string) decimal.Decimal {
	pos, err := d.crypto.Position(ctx, symbol)
	if err != nil {
		d.log.Warn("crypto position query failed, assuming flat",
			slog.String("symbol", symbol), slog.Any("error", err))
		return decimal.Zero
	}
	return pos
}

func (d *Dispatcher) cryptoAvailable(ctx context.Context) decimal.Decimal {
	krw, err := d.crypto.AvailableKRW(ctx)
	if err != nil {
		d.log.Warn("crypto balance query failed", slog.Any("error", err))
		return decimal.Zero
	}
	return krw
}

func (d *Dispatcher) equityPosition(ctx context.Context, ticker string) decimal.Decimal {
	pos, err := d.equity.Position(ctx, ticker)
	if err != nil {
		d.log.Warn("equity position query failed, assuming flat",
			slog.String("ticker", ticker), slog.Any("error", err))
		return decimal.Zero
	}
	return pos
}

func (d *Dispatcher) equityAvailable(ctx context.Context) decimal.Decimal {
	cash, err := d.equity.AvailableCash(ctx)
	if err != nil {
		d.log.Warn("equity cash query failed", slog.Any("error", err))
		return decimal.Zero
	}
	return cash
}

// cryptoLastPrice estimates the current trade price: streamed cache first,
// REST quote as fallback. Returns nil when neither is available.
func (d *Dispatcher) cryptoLastPrice(ctx context.Context, symbol string) *decimal.Decimal {
	if d.prices != nil {
		if p, ok := d.prices.Get(symbol); ok {
			return &p
		}
	}
	p, err := d.crypto.LastPrice(ctx, symbol)
	if err != nil {
		d.log.Warn("last price query failed", slog.String("symbol", symbol), slog.Any("error", err))
		return nil
	}
	if !p.IsPositive() {
		return nil
	}
	return &p
}

// --- best-effort record keeping ---

// openRecord creates the journal page and the local row for a fresh attempt.
func (d *Dispatcher) openRecord(ctx context.Context, t *domain.TradeAttempt, webhook []byte) {
	if d.journal != nil {
		d.nonCritical("journal create", func() error {
			pageID, err := d.journal.CreateTrade(ctx, t, webhook)
			if err != nil {
				return err
			}
			t.JournalPageID = pageID
			return nil
		})
	}
	if d.store != nil {
		d.nonCritical("store insert", func() error {
			return d.store.Insert(ctx, t)
		})
	}
}

func (d *Dispatcher) skipRecord(ctx context.Context, t *domain.TradeAttempt, reason, position string) {
	t.Transition(domain.StatusSkipped)
	t.Reason = reason
	d.updateRecord(ctx, t, domain.JournalUpdate{Status: domain.StatusSkipped, Position: position})
}

func (d *Dispatcher) failRecord(ctx context.Context, t *domain.TradeAttempt) {
	t.Transition(domain.StatusError)
	d.updateRecord(ctx, t, domain.JournalUpdate{Status: domain.StatusError})
}

func (d *Dispatcher) fillRecord(ctx context.Context, t *domain.TradeAttempt, u domain.JournalUpdate) {
	t.Transition(domain.StatusFilled)
	d.updateRecord(ctx, t, u)
}

func (d *Dispatcher) updateRecord(ctx context.Context, t *domain.TradeAttempt, u domain.JournalUpdate) {
	if d.journal != nil && t.JournalPageID != "" {
		d.nonCritical("journal update", func() error {
			return d.journal.UpdateTrade(ctx, t.JournalPageID, u)
		})
	}
	if d.store != nil {
		d.nonCritical("store update", func() error {
			return d.store.Update(ctx, t)
		})
	}
}

// nonCritical runs a side call whose failure must never change the request
// outcome: errors become warnings.
func (d *Dispatcher) nonCritical(op string, fn func() error) {
	if err := fn(); err != nil {
		d.log.Warn("non-critical side call failed", slog.String("op", op), slog.Any("error", err))
	}
}
