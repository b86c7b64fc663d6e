package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
)

// Client is the Upbit spot REST adapter. Market buys spend KRW (ord_type
// "price"); market sells dispose a coin quantity (ord_type "market").
type Client struct {
	baseURL   string
	accessKey string
	secretKey string
	http      *http.Client
	log       *slog.Logger
}

// NewClient creates an Upbit client against baseURL.
func NewClient(baseURL, accessKey, secretKey string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

type account struct {
	Currency    string          `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
	Locked      decimal.Decimal `json:"locked"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
}

// AvailableKRW returns the unlocked KRW balance.
func (c *Client) AvailableKRW(ctx context.Context) (decimal.Decimal, error) {
	accounts, err := c.accounts(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, a := range accounts {
		if a.Currency == "KRW" {
			return a.Balance, nil
		}
	}
	return decimal.Zero, nil
}

// Position returns the held quantity of the pair's coin, zero when flat.
func (c *Client) Position(ctx context.Context, symbol string) (decimal.Decimal, error) {
	coin := domain.Coin(symbol)
	if coin == "" {
		return decimal.Zero, fmt.Errorf("invalid market code: %s", symbol)
	}
	accounts, err := c.accounts(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, a := range accounts {
		if a.Currency == coin {
			return a.Balance, nil
		}
	}
	return decimal.Zero, nil
}

func (c *Client) accounts(ctx context.Context) ([]account, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/accounts", nil, true)
	if err != nil {
		return nil, err
	}
	var accounts []account
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

// LastPrice returns the latest trade price for a market. Public endpoint.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{"markets": {symbol}}
	body, err := c.request(ctx, http.MethodGet, "/v1/ticker", params, false)
	if err != nil {
		return decimal.Zero, err
	}
	var ticks []struct {
		TradePrice float64 `json:"trade_price"`
	}
	if err := json.Unmarshal(body, &ticks); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}
	if len(ticks) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker data for %s", symbol)
	}
	return decimal.NewFromFloat(ticks[0].TradePrice), nil
}

// BuyMarket places a market buy spending amountKRW.
func (c *Client) BuyMarket(ctx context.Context, symbol string, amountKRW decimal.Decimal) (*domain.OrderResult, error) {
	params := url.Values{
		"market":   {symbol},
		"side":     {"bid"},
		"ord_type": {"price"},
		"price":    {amountKRW.StringFixed(0)},
	}
	return c.placeOrder(ctx, params)
}

// SellMarket places a market sell disposing quantity of the coin.
func (c *Client) SellMarket(ctx context.Context, symbol string, quantity decimal.Decimal) (*domain.OrderResult, error) {
	params := url.Values{
		"market":   {symbol},
		"side":     {"ask"},
		"ord_type": {"market"},
		"volume":   {quantity.String()},
	}
	return c.placeOrder(ctx, params)
}

func (c *Client) placeOrder(ctx context.Context, params url.Values) (*domain.OrderResult, error) {
	body, err := c.request(ctx, http.MethodPost, "/v1/orders", params, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	c.log.Info("upbit order placed",
		slog.String("market", params.Get("market")),
		slog.String("side", params.Get("side")),
		slog.String("uuid", resp.UUID),
	)
	return &domain.OrderResult{OrderID: resp.UUID, Raw: body}, nil
}

type dayCandle struct {
	DateTimeUTC string  `json:"candle_date_time_utc"`
	TradePrice  float64 `json:"trade_price"`
}

// DailyCandles returns up to count daily candles, oldest first. The API
// serves them newest first, so the slice is reversed before returning.
func (c *Client) DailyCandles(ctx context.Context, symbol string, count int) ([]domain.Candle, error) {
	params := url.Values{
		"market": {symbol},
		"count":  {strconv.Itoa(count)},
	}
	body, err := c.request(ctx, http.MethodGet, "/v1/candles/days", params, false)
	if err != nil {
		return nil, err
	}
	var raw []dayCandle
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	out := make([]domain.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		ts, err := time.Parse("2006-01-02T15:04:05", raw[i].DateTimeUTC)
		if err != nil {
			return nil, fmt.Errorf("parse candle time %q: %w", raw[i].DateTimeUTC, err)
		}
		out = append(out, domain.Candle{Time: ts, Close: raw[i].TradePrice})
	}
	return out, nil
}

// request performs one API call. Private calls carry the JWT; the query hash
// covers the urlencoded params whether they ride the URL or the body.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, private bool) ([]byte, error) {
	encoded := ""
	if params != nil {
		encoded = params.Encode()
	}

	reqURL := c.baseURL + path
	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = strings.NewReader(encoded)
	} else if encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if private {
		token, err := authToken(c.accessKey, c.secretKey, encoded)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upbit %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
