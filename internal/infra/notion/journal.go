package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
	"github.com/mycho0012/tradingview-loagreen/internal/infra"
)

const notionVersion = "2022-06-28"

// webhookDataLimit caps the raw payload stored per page; Notion rejects
// rich_text content above 2000 characters.
const webhookDataLimit = 2000

// Journal writes trade attempts to a Notion database. Database schemas vary
// between users, so the property map is discovered once and writes only touch
// properties that actually exist.
type Journal struct {
	baseURL    string
	apiKey     string
	databaseID string
	http       *http.Client
	log        *slog.Logger

	mu           sync.Mutex
	schema       map[string]property
	schemaLoaded bool
}

type option struct {
	Name string `json:"name"`
}

type property struct {
	Type   string `json:"type"`
	Select *struct {
		Options []option `json:"options"`
	} `json:"select"`
	Status *struct {
		Options []option `json:"options"`
	} `json:"status"`
}

// NewJournal creates a journal against baseURL for the given database.
func NewJournal(baseURL, apiKey, databaseID string, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		databaseID: databaseID,
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// ensureSchema discovers the database property map. Discovery runs at most
// once per process; a failed discovery leaves the schema nil and writes fall
// back to the standard property set.
func (j *Journal) ensureSchema(ctx context.Context) map[string]property {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.schemaLoaded {
		return j.schema
	}
	j.schemaLoaded = true

	body, err := j.request(ctx, http.MethodGet, "/v1/databases/"+j.databaseID, nil)
	if err != nil {
		infra.JournalErrors.Inc()
		j.log.Warn("notion schema discovery failed, using standard property set", slog.Any("error", err))
		return nil
	}

	var out struct {
		Properties map[string]property `json:"properties"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		infra.JournalErrors.Inc()
		j.log.Warn("notion schema unreadable, using standard property set", slog.Any("error", err))
		return nil
	}

	j.schema = out.Properties
	j.log.Info("notion schema discovered", slog.Int("properties", len(out.Properties)))
	return j.schema
}

// has reports whether the discovered schema carries a property of the given
// type. With no schema on hand the standard set is assumed present.
func has(schema map[string]property, name, typ string) bool {
	if schema == nil {
		return true
	}
	p, ok := schema[name]
	return ok && p.Type == typ
}

// statusValue resolves a status/select option name against the schema: an
// unknown name falls back to the first configured option so writes never
// bounce on a renamed status.
func statusValue(schema map[string]property, name string) (string, bool) {
	if schema == nil {
		return name, true
	}
	p, ok := schema["Status"]
	if !ok {
		return "", false
	}

	var options []option
	switch p.Type {
	case "status":
		if p.Status != nil {
			options = p.Status.Options
		}
	case "select":
		if p.Select != nil {
			options = p.Select.Options
		}
	default:
		return "", false
	}
	if len(options) == 0 {
		return "", false
	}
	for _, o := range options {
		if o.Name == name {
			return name, true
		}
	}
	return options[0].Name, true
}

// CreateTrade opens a journal page for a fresh attempt and returns its page
// ID.
func (j *Journal) CreateTrade(ctx context.Context, t *domain.TradeAttempt, webhook []byte) (string, error) {
	schema := j.ensureSchema(ctx)

	props := map[string]any{}
	title := fmt.Sprintf("%s %s", t.Symbol, strings.ToUpper(t.Side))
	if has(schema, "Trade ID", "title") {
		props["Trade ID"] = map[string]any{
			"title": []any{textBlock(title)},
		}
	}
	if has(schema, "Time Stamp", "date") {
		props["Time Stamp"] = map[string]any{
			"date": map[string]string{"start": time.Now().Format(time.RFC3339)},
		}
	}
	if has(schema, "Asset", "select") {
		props["Asset"] = selectBlock(t.Symbol)
	}
	if has(schema, "Position", "select") {
		position := "Long"
		if t.Side == "sell" {
			position = "Exit"
		}
		props["Position"] = selectBlock(position)
	}
	if has(schema, "Strategy", "select") && t.Strategy != "" {
		props["Strategy"] = selectBlock(t.Strategy)
	}
	if has(schema, "Interval", "select") && t.Interval != "" {
		props["Interval"] = selectBlock(t.Interval)
	}
	if name, ok := statusValue(schema, string(t.Status)); ok {
		props["Status"] = statusBlock(schema, name)
	}
	if has(schema, "Webhook Data", "rich_text") && len(webhook) > 0 {
		data := string(webhook)
		// The limit counts characters, not bytes; cutting by byte index
		// could split a multi-byte rune.
		if utf8.RuneCountInString(data) > webhookDataLimit {
			data = string([]rune(data)[:webhookDataLimit])
		}
		props["Webhook Data"] = map[string]any{
			"rich_text": []any{textBlock(data)},
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"parent":     map[string]string{"database_id": j.databaseID},
		"properties": props,
	})

	body, err := j.request(ctx, http.MethodPost, "/v1/pages", payload)
	if err != nil {
		infra.JournalErrors.Inc()
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		infra.JournalErrors.Inc()
		return "", fmt.Errorf("decode page response: %w", err)
	}
	return out.ID, nil
}

// UpdateTrade applies a partial update to an existing page.
func (j *Journal) UpdateTrade(ctx context.Context, pageID string, u domain.JournalUpdate) error {
	schema := j.ensureSchema(ctx)

	props := map[string]any{}
	if u.Status != "" {
		if name, ok := statusValue(schema, string(u.Status)); ok {
			props["Status"] = statusBlock(schema, name)
		}
	}
	if u.Position != "" && has(schema, "Position", "select") {
		props["Position"] = selectBlock(u.Position)
	}
	if u.Strategy != "" && has(schema, "Strategy", "select") {
		props["Strategy"] = selectBlock(u.Strategy)
	}
	if u.Interval != "" && has(schema, "Interval", "select") {
		props["Interval"] = selectBlock(u.Interval)
	}
	if u.EntryPrice != nil && has(schema, "Entry Price", "number") {
		props["Entry Price"] = numberBlock(*u.EntryPrice)
	}
	if u.ExitPrice != nil && has(schema, "Exit Price", "number") {
		props["Exit Price"] = numberBlock(*u.ExitPrice)
	}
	if u.Quantity != nil && has(schema, "Quantity", "number") {
		props["Quantity"] = numberBlock(*u.Quantity)
	}
	if u.OrderID != "" && has(schema, "Order ID", "rich_text") {
		props["Order ID"] = map[string]any{
			"rich_text": []any{textBlock(u.OrderID)},
		}
	}
	if len(props) == 0 {
		return nil
	}

	payload, _ := json.Marshal(map[string]any{"properties": props})
	if _, err := j.request(ctx, http.MethodPatch, "/v1/pages/"+pageID, payload); err != nil {
		infra.JournalErrors.Inc()
		return err
	}
	return nil
}

func textBlock(content string) map[string]any {
	return map[string]any{
		"text": map[string]string{"content": content},
	}
}

func selectBlock(name string) map[string]any {
	return map[string]any{
		"select": map[string]string{"name": name},
	}
}

// statusBlock writes through the property's real type; pre-discovery the
// Notion-native status type is assumed.
func statusBlock(schema map[string]property, name string) map[string]any {
	key := "status"
	if schema != nil {
		if p, ok := schema["Status"]; ok && p.Type == "select" {
			key = "select"
		}
	}
	return map[string]any{
		key: map[string]string{"name": name},
	}
}

func numberBlock(d decimal.Decimal) map[string]any {
	return map[string]any{"number": d.InexactFloat64()}
}

func (j *Journal) request(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, j.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+j.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("notion %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
