package kis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestFileTokenProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("issues and caches", func(t *testing.T) {
		issued := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/oauth2/tokenP" {
				t.Errorf("path = %s", r.URL.Path)
			}
			issued++
			w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":86400}`))
		}))
		defer srv.Close()

		path := filepath.Join(t.TempDir(), "token.json")
		p := NewFileTokenProvider(srv.URL, "ak", "as", path, nil)

		for i := 0; i < 3; i++ {
			tok, err := p.Token(ctx)
			if err != nil {
				t.Fatalf("Token: %v", err)
			}
			if tok != "tok-1" {
				t.Fatalf("token = %q", tok)
			}
		}
		if issued != 1 {
			t.Fatalf("issued = %d, want 1", issued)
		}

		// A fresh provider on the same file reuses the stored token.
		p2 := NewFileTokenProvider(srv.URL, "ak", "as", path, nil)
		tok, err := p2.Token(ctx)
		if err != nil || tok != "tok-1" {
			t.Fatalf("token = %q, err = %v", tok, err)
		}
		if issued != 1 {
			t.Fatalf("issued = %d after file reuse, want 1", issued)
		}
	})

	t.Run("refreshes near expiry", func(t *testing.T) {
		issued := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			issued++
			if issued == 1 {
				w.Write([]byte(`{"access_token":"tok-1"}`))
			} else {
				w.Write([]byte(`{"access_token":"tok-2"}`))
			}
		}))
		defer srv.Close()

		p := NewFileTokenProvider(srv.URL, "ak", "as", filepath.Join(t.TempDir(), "token.json"), nil)
		base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
		now := base
		p.now = func() time.Time { return now }

		if tok, _ := p.Token(ctx); tok != "tok-1" {
			t.Fatalf("token = %q", tok)
		}

		// Inside the 24h-10m window the cached token holds.
		now = base.Add(23 * time.Hour)
		if tok, _ := p.Token(ctx); tok != "tok-1" {
			t.Fatalf("token = %q, want cached", tok)
		}

		// Past the margin boundary a new token is issued.
		now = base.Add(24 * time.Hour)
		if tok, _ := p.Token(ctx); tok != "tok-2" {
			t.Fatalf("token = %q, want refreshed", tok)
		}
	})

	t.Run("forbidden keeps stale token", func(t *testing.T) {
		issued := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			issued++
			if issued == 1 {
				w.Write([]byte(`{"access_token":"tok-1"}`))
				return
			}
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error_code":"EGW00133"}`))
		}))
		defer srv.Close()

		p := NewFileTokenProvider(srv.URL, "ak", "as", filepath.Join(t.TempDir(), "token.json"), nil)
		base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
		now := base
		p.now = func() time.Time { return now }

		if tok, _ := p.Token(ctx); tok != "tok-1" {
			t.Fatalf("token = %q", tok)
		}

		now = base.Add(25 * time.Hour)
		tok, err := p.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("token = %q, want stale token on 403", tok)
		}
	})

	t.Run("failure without stale token errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := NewFileTokenProvider(srv.URL, "ak", "as", filepath.Join(t.TempDir(), "token.json"), nil)
		if _, err := p.Token(ctx); err == nil {
			t.Fatalf("want error")
		}
	})
}
