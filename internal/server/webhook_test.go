package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
	"github.com/mycho0012/tradingview-loagreen/internal/service"
)

type stubCrypto struct {
	krw      decimal.Decimal
	position decimal.Decimal
	buys     int
}

func (s *stubCrypto) AvailableKRW(ctx context.Context) (decimal.Decimal, error) {
	return s.krw, nil
}

func (s *stubCrypto) Position(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return s.position, nil
}

func (s *stubCrypto) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromInt(50_000_000), nil
}

func (s *stubCrypto) BuyMarket(ctx context.Context, symbol string, amountKRW decimal.Decimal) (*domain.OrderResult, error) {
	s.buys++
	return &domain.OrderResult{OrderID: "order-1", Raw: []byte(`{"uuid":"order-1"}`)}, nil
}

func (s *stubCrypto) SellMarket(ctx context.Context, symbol string, quantity decimal.Decimal) (*domain.OrderResult, error) {
	return &domain.OrderResult{OrderID: "order-2", Raw: []byte(`{"uuid":"order-2"}`)}, nil
}

type stubStore struct {
	rows      []domain.TradeAttempt
	lastLimit int
}

func (s *stubStore) Insert(ctx context.Context, t *domain.TradeAttempt) error {
	s.rows = append(s.rows, *t)
	return nil
}

func (s *stubStore) Update(ctx context.Context, t *domain.TradeAttempt) error { return nil }

func (s *stubStore) Recent(ctx context.Context, limit int) ([]domain.TradeAttempt, error) {
	s.lastLimit = limit
	if limit > len(s.rows) {
		limit = len(s.rows)
	}
	return s.rows[:limit], nil
}

func newTestServer(t *testing.T) (*Server, *stubCrypto, *stubStore) {
	t.Helper()
	crypto := &stubCrypto{krw: decimal.NewFromInt(1_000_000)}
	store := &stubStore{}

	disp := service.NewDispatcher(service.DispatcherConfig{
		Crypto:            crypto,
		Sizer:             service.NewSizer(service.NewEstimator(nil, nil, nil), nil),
		Store:             store,
		Hours:             service.NewMarketHours("Asia/Seoul", nil),
		Prices:            service.NewPriceCache(0),
		Passphrase:        "secret",
		MinCryptoOrderKRW: 5_000,
		MinEquityOrderKRW: 10_000,
	}, nil)

	return &Server{
		Dispatcher: disp,
		Crypto:     crypto,
		Store:      store,
		AppName:    "order-router",
		AppVersion: "1.0.0",
	}, crypto, store
}

func postWebhook(t *testing.T, h http.Handler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhook(t *testing.T) {
	t.Run("buy alert succeeds", func(t *testing.T) {
		s, crypto, _ := newTestServer(t)
		rec := postWebhook(t, s.Handler(), `{"alert_name":"kelly_buy","symbol":"KRW-BTC","passphrase":"secret"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var res struct {
			Status     string          `json:"status"`
			Exchange   string          `json:"exchange"`
			KellyStats json.RawMessage `json:"kelly_stats"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if res.Status != "success" || res.Exchange != "upbit" {
			t.Fatalf("response = %s", rec.Body)
		}
		if len(res.KellyStats) == 0 {
			t.Fatalf("kelly_stats missing: %s", rec.Body)
		}
		if crypto.buys != 1 {
			t.Fatalf("buys = %d", crypto.buys)
		}
	})

	t.Run("wrong passphrase is 401", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		rec := postWebhook(t, s.Handler(), `{"alert_name":"kelly_buy","symbol":"KRW-BTC","passphrase":"nope"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "detail") {
			t.Fatalf("body = %s", rec.Body)
		}
	})

	t.Run("invalid json is 400", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		rec := postWebhook(t, s.Handler(), `{not json`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("existing position reports skip", func(t *testing.T) {
		s, crypto, _ := newTestServer(t)
		crypto.position = decimal.NewFromFloat(0.5)
		rec := postWebhook(t, s.Handler(), `{"alert_name":"kelly_buy","symbol":"KRW-BTC","passphrase":"secret"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"skipped"`) || !strings.Contains(rec.Body.String(), "existing_position") {
			t.Fatalf("body = %s", rec.Body)
		}
	})

	t.Run("get method not allowed", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestInspectionEndpoints(t *testing.T) {
	get := func(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
		t.Helper()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("root", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		rec := get(t, s.Handler(), "/")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "order-router") {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
	})

	t.Run("health reports adapter states", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		rec := get(t, s.Handler(), "/health")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var res struct {
			Status   string            `json:"status"`
			Services map[string]string `json:"services"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Status != "healthy" {
			t.Fatalf("status = %s", res.Status)
		}
		if res.Services["upbit"] != "connected" || res.Services["kis"] != "unconfigured" {
			t.Fatalf("services = %+v", res.Services)
		}
	})

	t.Run("trades respects limit", func(t *testing.T) {
		s, _, store := newTestServer(t)
		for i := 0; i < 5; i++ {
			store.rows = append(store.rows, *domain.NewTradeAttempt("KRW-BTC", "upbit", "buy", "buy", "Kelly", "1h"))
		}
		rec := get(t, s.Handler(), "/trades?limit=2")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var res struct {
			Trades []json.RawMessage `json:"trades"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(res.Trades) != 2 {
			t.Fatalf("trades = %d, want 2", len(res.Trades))
		}
	})

	t.Run("trades clamps oversized limit", func(t *testing.T) {
		s, _, store := newTestServer(t)
		rec := get(t, s.Handler(), "/trades?limit=100000")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if store.lastLimit != 500 {
			t.Fatalf("limit passed to store = %d, want 500", store.lastLimit)
		}
	})

	t.Run("metrics exposed", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		rec := get(t, s.Handler(), "/metrics")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}
