package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
	"github.com/mycho0012/tradingview-loagreen/internal/infra"
	"github.com/mycho0012/tradingview-loagreen/internal/service"
)

const maxBodyBytes = 1 << 20

// handleWebhook decodes the alert, dispatches it, and translates the outcome
// to the JSON wire shape. Errors become {"detail": ...} with the carried
// status code.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		infra.WebhookDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		infra.WebhookRequests.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unreadable request body"})
		return
	}

	var alert domain.Alert
	if err := json.Unmarshal(body, &alert); err != nil {
		infra.WebhookRequests.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON payload"})
		return
	}
	alert.Raw = body

	res, err := s.Dispatcher.Dispatch(r.Context(), &alert)
	if err != nil {
		status := domain.StatusOf(err)
		if status >= 500 {
			infra.WebhookRequests.WithLabelValues("error").Inc()
		} else {
			infra.WebhookRequests.WithLabelValues("rejected").Inc()
		}
		s.log().Warn("webhook rejected",
			slog.String("symbol", alert.Symbol),
			slog.Int("status", status),
			slog.Any("error", err),
		)
		writeJSON(w, status, map[string]string{"detail": err.Error()})
		return
	}

	s.record(res)
	writeJSON(w, http.StatusOK, res)
}

// record derives the metric updates from a dispatched result.
func (s *Server) record(res *service.Result) {
	infra.WebhookRequests.WithLabelValues(res.Status).Inc()
	if res.Status == "skipped" {
		infra.SkippedAlerts.WithLabelValues(res.Reason).Inc()
		return
	}
	if res.Side != "" {
		infra.OrdersPlaced.WithLabelValues(res.Exchange, res.Side).Inc()
	}
	if res.KellyStats != nil && res.KellyStats.Degraded {
		infra.SizingDegraded.Inc()
	}
}

func (s *Server) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
