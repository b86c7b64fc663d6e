package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// KIS issues access tokens valid for 24 hours and rate-limits issuance.
	// The margin forces a refresh shortly before real expiry.
	tokenTTL      = 24 * time.Hour
	refreshMargin = 10 * time.Minute
)

// TokenProvider supplies a valid KIS access token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (t cachedToken) validAt(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// FileTokenProvider caches the access token in a JSON file so restarts do not
// burn the issuance rate limit. Safe for concurrent use.
type FileTokenProvider struct {
	baseURL   string
	appKey    string
	appSecret string
	path      string
	http      *http.Client
	log       *slog.Logger

	mu     sync.Mutex
	cached cachedToken
	loaded bool
	now    func() time.Time
}

// NewFileTokenProvider creates a provider caching tokens at path.
func NewFileTokenProvider(baseURL, appKey, appSecret, path string, log *slog.Logger) *FileTokenProvider {
	if log == nil {
		log = slog.Default()
	}
	return &FileTokenProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		appKey:    appKey,
		appSecret: appSecret,
		path:      path,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

// Token returns a cached token when still fresh, otherwise requests a new one.
// An issuance 403 with a stale token on hand returns the stale token: the
// issuance rate limit trips before the old token actually dies.
func (p *FileTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clock := p.now
	if clock == nil {
		clock = time.Now
	}
	now := clock()

	if !p.loaded {
		p.loadFile()
		p.loaded = true
	}
	if p.cached.validAt(now) {
		return p.cached.AccessToken, nil
	}

	token, err := p.issue(ctx)
	if err != nil {
		if isForbidden(err) && p.cached.AccessToken != "" {
			p.log.Warn("token issuance throttled, reusing cached token", slog.Any("error", err))
			return p.cached.AccessToken, nil
		}
		return "", err
	}

	p.cached = cachedToken{
		AccessToken: token,
		ExpiresAt:   now.Add(tokenTTL - refreshMargin),
	}
	p.saveFile()
	return token, nil
}

func (p *FileTokenProvider) loadFile() {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return
	}
	var t cachedToken
	if err := json.Unmarshal(data, &t); err != nil {
		p.log.Warn("token file unreadable, ignoring", slog.String("path", p.path), slog.Any("error", err))
		return
	}
	p.cached = t
}

func (p *FileTokenProvider) saveFile() {
	data, err := json.Marshal(p.cached)
	if err != nil {
		return
	}
	if err := os.WriteFile(p.path, data, 0600); err != nil {
		p.log.Warn("token file write failed", slog.String("path", p.path), slog.Any("error", err))
	}
}

type forbiddenError struct{ msg string }

func (e forbiddenError) Error() string { return e.msg }

func isForbidden(err error) bool {
	_, ok := err.(forbiddenError)
	return ok
}

func (p *FileTokenProvider) issue(ctx context.Context) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     p.appKey,
		"appsecret":  p.appSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/oauth2/tokenP", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusForbidden {
		return "", forbiddenError{msg: fmt.Sprintf("token issuance forbidden: %s", strings.TrimSpace(string(body)))}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token issuance failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return out.AccessToken, nil
}
