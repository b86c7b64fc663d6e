package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDailyCloses(t *testing.T) {
	ctx := context.Background()

	t.Run("krx ticker gets KS suffix", func(t *testing.T) {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			if r.Header.Get("User-Agent") == "" || strings.Contains(r.Header.Get("User-Agent"), "Go-http-client") {
				t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
			}
			q := r.URL.Query()
			if q.Get("interval") != "1d" || q.Get("period1") == "" || q.Get("period2") == "" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"chart":{"result":[{
				"timestamp":[1755993600,1756080000,1756166400],
				"indicators":{"quote":[{"close":[70000,null,70700]}]}
			}],"error":null}}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, nil)
		candles, err := c.DailyCloses(ctx, "005930", 30)
		if err != nil {
			t.Fatalf("DailyCloses: %v", err)
		}
		if gotPath != "/v8/finance/chart/005930.KS" {
			t.Fatalf("path = %s", gotPath)
		}
		// The null close is dropped.
		if len(candles) != 2 {
			t.Fatalf("candles = %d, want 2", len(candles))
		}
		if candles[0].Close != 70000 || candles[1].Close != 70700 {
			t.Fatalf("closes = %+v", candles)
		}
		if !candles[0].Time.Before(candles[1].Time) {
			t.Fatalf("timestamps out of order")
		}
	})

	t.Run("trims to requested days", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chart":{"result":[{
				"timestamp":[1,2,3,4,5],
				"indicators":{"quote":[{"close":[10,11,12,13,14]}]}
			}],"error":null}}`))
		}))
		defer srv.Close()

		candles, err := NewClient(srv.URL, nil).DailyCloses(ctx, "005930", 3)
		if err != nil {
			t.Fatalf("DailyCloses: %v", err)
		}
		if len(candles) != 3 {
			t.Fatalf("candles = %d, want 3", len(candles))
		}
		// The most recent rows survive the trim.
		if candles[0].Close != 12 || candles[2].Close != 14 {
			t.Fatalf("closes = %+v", candles)
		}
	})

	t.Run("api error surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
		}))
		defer srv.Close()

		if _, err := NewClient(srv.URL, nil).DailyCloses(ctx, "999999", 30); err == nil {
			t.Fatalf("want error")
		}
	})

	t.Run("all null closes is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chart":{"result":[{
				"timestamp":[1,2],
				"indicators":{"quote":[{"close":[null,null]}]}
			}],"error":null}}`))
		}))
		defer srv.Close()

		if _, err := NewClient(srv.URL, nil).DailyCloses(ctx, "005930", 30); err == nil {
			t.Fatalf("want error")
		}
	})

	t.Run("window is widened", func(t *testing.T) {
		var p1, p2 int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			p1, _ = parseUnix(q.Get("period1"))
			p2, _ = parseUnix(q.Get("period2"))
			w.Write([]byte(`{"chart":{"result":[{
				"timestamp":[1],
				"indicators":{"quote":[{"close":[10]}]}
			}],"error":null}}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, nil)
		c.now = func() time.Time { return time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC) }
		if _, err := c.DailyCloses(ctx, "005930", 30); err != nil {
			t.Fatalf("DailyCloses: %v", err)
		}
		if got := (p2 - p1) / 86400; got != 40 {
			t.Fatalf("window = %d days, want 40", got)
		}
	})
}

func parseUnix(s string) (int64, error) {
	var v int64
	for _, r := range s {
		v = v*10 + int64(r-'0')
	}
	return v, nil
}
