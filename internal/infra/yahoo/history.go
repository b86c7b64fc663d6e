package yahoo

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

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
)

// Browser-like agent; the chart API rejects default Go clients.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// extraWindowDays widens the query range so weekends and holidays still leave
// enough trading days to fill the requested window.
const extraWindowDays = 10

// Client fetches daily closes from the Yahoo Finance chart API. It is the
// volatility history source for Korean equities; KRX tickers get the .KS
// suffix.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
	now     func() time.Time
}

// NewClient creates a chart API client against baseURL.
func NewClient(baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyCloses returns up to `days` daily closes for the ticker, oldest first.
// Null close entries (halted or partial days) are skipped.
func (c *Client) DailyCloses(ctx context.Context, ticker string, days int) ([]domain.Candle, error) {
	symbol := ticker
	if isNumeric(ticker) {
		symbol = ticker + ".KS"
	}

	end := c.now()
	start := end.AddDate(0, 0, -(days + extraWindowDays))

	params := url.Values{
		"period1":  {strconv.FormatInt(start.Unix(), 10)},
		"period2":  {strconv.FormatInt(end.Unix(), 10)},
		"interval": {"1d"},
	}
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart %s: status %d: %s", symbol, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out chartResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	if out.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s: %s", symbol, out.Chart.Error.Code, out.Chart.Error.Description)
	}
	if len(out.Chart.Result) == 0 || len(out.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart %s: empty result", symbol)
	}

	res := out.Chart.Result[0]
	closes := res.Indicators.Quote[0].Close

	candles := make([]domain.Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		candles = append(candles, domain.Candle{
			Time:  time.Unix(ts, 0).UTC(),
			Close: *closes[i],
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("chart %s: no usable closes", symbol)
	}
	if len(candles) > days {
		candles = candles[len(candles)-days:]
	}
	return candles, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
