package service

import (
	"log/slog"
	"time"
)

// Korean equities trade 09:00-15:30 KST, Monday through Friday. The holiday
// calendar is not modeled.
const (
	sessionOpenHour  = 9
	sessionCloseHour = 15
	sessionCloseMin  = 30
)

// MarketHours is the equity-market session gate. A timezone resolution
// failure fails open: blocking every trade on a missing tzdata entry is worse
// than letting the broker reject an off-hours order.
type MarketHours struct {
	timezone string
	now      func() time.Time
	log      *slog.Logger
}

// NewMarketHours creates a gate for the given IANA timezone (normally
// "Asia/Seoul").
func NewMarketHours(timezone string, log *slog.Logger) *MarketHours {
	if log == nil {
		log = slog.Default()
	}
	return &MarketHours{timezone: timezone, now: time.Now, log: log}
}

// IsOpen reports whether the equity market session is currently open.
func (h *MarketHours) IsOpen() bool {
	loc, err := time.LoadLocation(h.timezone)
	if err != nil {
		h.log.Error("market hours timezone lookup failed, failing open",
			slog.String("timezone", h.timezone),
			slog.Any("error", err),
		)
		return true
	}

	now := h.now().In(loc)
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	sessionStart := time.Date(now.Year(), now.Month(), now.Day(), sessionOpenHour, 0, 0, 0, loc)
	sessionEnd := time.Date(now.Year(), now.Month(), now.Day(), sessionCloseHour, sessionCloseMin, 0, 0, loc)
	return !now.Before(sessionStart) && !now.After(sessionEnd)
}
