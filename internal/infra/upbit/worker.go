package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	maxRetries   = 10
	baseDelay    = 1 * time.Second
	maxDelay     = 60 * time.Second
	readTimeout  = 60 * time.Second
	maxCodeCount = 50
)

// PriceSink receives streamed trade prices. The dispatcher's price cache
// implements it.
type PriceSink interface {
	Put(symbol string, price decimal.Decimal)
}

// tickerResponse represents Upbit WebSocket ticker response
type tickerResponse struct {
	Type       string  `json:"type"` // ticker
	Code       string  `json:"code"` // KRW-BTC
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

// Worker keeps a ticker subscription open and feeds the price sink. The
// stream is an optimization; order paths fall back to REST quotes when it is
// down.
type Worker struct {
	url     string
	symbols []string
	sink    PriceSink
	log     *slog.Logger

	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a ticker worker for the given full market codes
// (e.g. "KRW-BTC").
func NewWorker(url string, symbols []string, sink PriceSink, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		url:     url,
		symbols: symbols,
		sink:    sink,
		log:     log,
	}
}

// Connect starts the WebSocket connection loop.
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.log.Warn("Upbit connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := backoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

// backoff doubles the delay per retry up to the cap.
func backoff(retry int) time.Duration {
	d := baseDelay
	for i := 0; i < retry && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)

	conn, _, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	w.log.Info("Upbit ticker stream connected", slog.Int("subs", len(w.symbols)))
	return nil
}

func (w *Worker) subscribe() error {
	codes := w.symbols
	if len(codes) > maxCodeCount {
		codes = codes[:maxCodeCount]
	}

	msg := []map[string]interface{}{
		{"ticket": fmt.Sprintf("router-%d", time.Now().UnixNano())},
		{"type": "ticker", "codes": codes},
	}
	b, _ := json.Marshal(msg)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *Worker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Copy the conn under the lock; Disconnect nils the field
		// concurrently and the blocked read must keep its own reference.
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

func (w *Worker) handleMessage(msg []byte) {
	var resp tickerResponse
	if json.Unmarshal(msg, &resp) != nil || resp.Type != "ticker" {
		return
	}
	if resp.TradePrice <= 0 {
		return
	}
	w.sink.Put(resp.Code, decimal.NewFromFloat(resp.TradePrice))
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// Disconnect stops the loop and closes the connection.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
