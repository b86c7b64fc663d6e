package kis

import (
	"bytes"
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

// Domestic-stock transaction IDs for a live (non-paper) account.
const (
	trBalance = "TTTC8434R"
	trPrice   = "FHKST01010100"
	trBuy     = "TTTC0802U"
	trSell    = "TTTC0801U"
)

// Client is the KIS domestic-equities REST adapter. Orders are whole-share
// market orders (ORD_DVSN "01").
type Client struct {
	baseURL       string
	appKey        string
	appSecret     string
	accountPrefix string
	accountSuffix string
	tokens        TokenProvider
	http          *http.Client
	log           *slog.Logger
}

// NewClient creates a KIS client. accountPrefix is the 8-digit CANO,
// accountSuffix the 2-digit product code.
func NewClient(baseURL, appKey, appSecret, accountPrefix, accountSuffix string, tokens TokenProvider, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		appKey:        appKey,
		appSecret:     appSecret,
		accountPrefix: accountPrefix,
		accountSuffix: accountSuffix,
		tokens:        tokens,
		http:          &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}
}

type balanceResponse struct {
	RtCd    string `json:"rt_cd"`
	Msg1    string `json:"msg1"`
	Output1 []struct {
		PDNO        string `json:"pdno"`
		PrdtName    string `json:"prdt_name"`
		HldgQty     string `json:"hldg_qty"`
		PchsAvgPric string `json:"pchs_avg_pric"`
	} `json:"output1"`
	Output2 []struct {
		PrvsRcdlExccAmt string `json:"prvs_rcdl_excc_amt"`
	} `json:"output2"`
}

// Holding is one position row from the balance inquiry.
type Holding struct {
	Ticker   string          `json:"ticker"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// BalanceSnapshot is the account view served by the balances endpoint.
type BalanceSnapshot struct {
	Cash     decimal.Decimal `json:"cash_krw"`
	Holdings []Holding       `json:"holdings"`
}

func (c *Client) inquireBalance(ctx context.Context) (*balanceResponse, error) {
	params := url.Values{
		"CANO":                  {c.accountPrefix},
		"ACNT_PRDT_CD":          {c.accountSuffix},
		"AFHR_FLPR_YN":          {"N"},
		"OFL_YN":                {""},
		"INQR_DVSN":             {"02"},
		"UNPR_DVSN":             {"01"},
		"FUND_STTL_ICLD_YN":     {"N"},
		"FNCG_AMT_AUTO_RDPT_YN": {"N"},
		"PRCS_DVSN":             {"01"},
		"CTX_AREA_FK100":        {""},
		"CTX_AREA_NK100":        {""},
	}

	body, err := c.get(ctx, "/uapi/domestic-stock/v1/trading/inquire-balance", trBalance, params)
	if err != nil {
		return nil, err
	}
	var out balanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	if out.RtCd != "0" {
		return nil, fmt.Errorf("balance inquiry rejected: %s", out.Msg1)
	}
	return &out, nil
}

// AvailableCash returns the orderable KRW cash.
func (c *Client) AvailableCash(ctx context.Context) (decimal.Decimal, error) {
	bal, err := c.inquireBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if len(bal.Output2) == 0 {
		return decimal.Zero, nil
	}
	return parseAmount(bal.Output2[0].PrvsRcdlExccAmt)
}

// Position returns the held share count for a ticker, zero when flat.
func (c *Client) Position(ctx context.Context, ticker string) (decimal.Decimal, error) {
	bal, err := c.inquireBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, h := range bal.Output1 {
		if h.PDNO == ticker {
			return parseAmount(h.HldgQty)
		}
	}
	return decimal.Zero, nil
}

// Snapshot returns cash and all holdings in one call.
func (c *Client) Snapshot(ctx context.Context) (*BalanceSnapshot, error) {
	bal, err := c.inquireBalance(ctx)
	if err != nil {
		return nil, err
	}

	snap := &BalanceSnapshot{Holdings: make([]Holding, 0, len(bal.Output1))}
	if len(bal.Output2) > 0 {
		if snap.Cash, err = parseAmount(bal.Output2[0].PrvsRcdlExccAmt); err != nil {
			return nil, err
		}
	}
	for _, h := range bal.Output1 {
		qty, err := parseAmount(h.HldgQty)
		if err != nil || qty.IsZero() {
			continue
		}
		avg, _ := parseAmount(h.PchsAvgPric)
		snap.Holdings = append(snap.Holdings, Holding{
			Ticker:   h.PDNO,
			Name:     h.PrdtName,
			Quantity: qty,
			AvgPrice: avg,
		})
	}
	return snap, nil
}

// CurrentPrice returns the latest traded price for a ticker.
func (c *Client) CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {ticker},
	}
	body, err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-price", trPrice, params)
	if err != nil {
		return decimal.Zero, err
	}
	var out struct {
		RtCd   string `json:"rt_cd"`
		Msg1   string `json:"msg1"`
		Output struct {
			StckPrpr string `json:"stck_prpr"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("decode price: %w", err)
	}
	if out.RtCd != "0" {
		return decimal.Zero, fmt.Errorf("price inquiry rejected: %s", out.Msg1)
	}
	return parseAmount(out.Output.StckPrpr)
}

// PlaceMarketOrder submits a whole-share market order. side is "buy" or
// "sell"; the tr_id selects the direction.
func (c *Client) PlaceMarketOrder(ctx context.Context, ticker, side string, quantity int64) (*domain.OrderResult, error) {
	trID := trBuy
	if side == "sell" {
		trID = trSell
	}

	payload, _ := json.Marshal(map[string]string{
		"CANO":         c.accountPrefix,
		"ACNT_PRDT_CD": c.accountSuffix,
		"PDNO":         ticker,
		"ORD_DVSN":     "01", // market
		"ORD_QTY":      strconv.FormatInt(quantity, 10),
		"ORD_UNPR":     "0",
	})

	hash, err := c.hashKey(ctx, payload)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, "/uapi/domestic-stock/v1/trading/order-cash", trID, hash, payload)
	if err != nil {
		return nil, err
	}

	var out struct {
		RtCd   string `json:"rt_cd"`
		Msg1   string `json:"msg1"`
		Output struct {
			ODNO string `json:"ODNO"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if out.RtCd != "0" {
		return nil, fmt.Errorf("order rejected: %s", out.Msg1)
	}

	c.log.Info("kis order placed",
		slog.String("ticker", ticker),
		slog.String("side", side),
		slog.Int64("quantity", quantity),
		slog.String("order_no", out.Output.ODNO),
	)
	return &domain.OrderResult{OrderID: out.Output.ODNO, Raw: body}, nil
}

// hashKey exchanges an order payload for the integrity hash KIS requires on
// order requests.
func (c *Client) hashKey(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uapi/hashkey", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hashkey failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Hash string `json:"HASH"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode hashkey: %w", err)
	}
	return out.Hash, nil
}

func (c *Client) get(ctx context.Context, path, trID string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if err := c.setHeaders(ctx, req, trID); err != nil {
		return nil, err
	}
	return c.do(req, path)
}

func (c *Client) post(ctx context.Context, path, trID, hash string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if err := c.setHeaders(ctx, req, trID); err != nil {
		return nil, err
	}
	req.Header.Set("hashkey", hash)
	return c.do(req, path)
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, trID string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", trID)
	return nil
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
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
		return nil, fmt.Errorf("kis %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// parseAmount reads the comma-free numeric strings KIS returns. Empty means
// zero.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
