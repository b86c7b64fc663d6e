package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
	"github.com/mycho0012/tradingview-loagreen/internal/infra/kis"
	"github.com/mycho0012/tradingview-loagreen/internal/service"
)

const (
	defaultTradesLimit = 50
	maxTradesLimit     = 500
)

// Server is the HTTP surface: the webhook itself plus the read-only
// inspection endpoints.
type Server struct {
	Dispatcher *service.Dispatcher
	Crypto     domain.CryptoExchange
	KIS        *kis.Client
	Store      domain.TradeStore
	Log        *slog.Logger

	AppName    string
	AppVersion string
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /balances", s.handleBalances)
	mux.HandleFunc("GET /trades", s.handleTrades)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":          s.AppName,
		"version":          s.AppVersion,
		"status":           "running",
		"upbit_configured": s.Crypto != nil,
		"kis_configured":   s.KIS != nil,
	})
}

// handleHealth probes each configured adapter. Probe failures degrade the
// report to "warning"; the process itself is still serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := map[string]string{}
	healthy := true

	if s.Crypto == nil {
		services["upbit"] = "unconfigured"
	} else if _, err := s.Crypto.AvailableKRW(ctx); err != nil {
		services["upbit"] = "error: " + err.Error()
		healthy = false
	} else {
		services["upbit"] = "connected"
	}

	if s.KIS == nil {
		services["kis"] = "unconfigured"
	} else if _, err := s.KIS.AvailableCash(ctx); err != nil {
		services["kis"] = "error: " + err.Error()
		healthy = false
	} else {
		services["kis"] = "connected"
	}

	status := "healthy"
	if !healthy {
		status = "warning"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"services": services,
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out := map[string]any{}

	if s.Crypto != nil {
		if krw, err := s.Crypto.AvailableKRW(ctx); err != nil {
			out["upbit"] = map[string]string{"error": err.Error()}
		} else {
			out["upbit"] = map[string]any{"krw_balance": krw}
		}
	}
	if s.KIS != nil {
		if snap, err := s.KIS.Snapshot(ctx); err != nil {
			out["kis"] = map[string]string{"error": err.Error()}
		} else {
			out["kis"] = snap
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"trades": []any{}})
		return
	}

	limit := defaultTradesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxTradesLimit {
		limit = maxTradesLimit
	}

	rows, err := s.Store.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": rows})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
