package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"etodesk/internal/domain"
	"etodesk/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	maxRetries   = 10
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// tickerMessage is the wire format of one feed update.
type tickerMessage struct {
	Type       string  `json:"type"`
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	ChangeRate float64 `json:"change_rate"`
	Liquidity  float64 `json:"liquidity"`
	Timestamp  int64   `json:"timestamp"` // ms
}

// Worker maintains the WebSocket subscription to the price feed and pushes
// ticker batches into the consumer channel.
type Worker struct {
	url        string
	symbols    []string
	tickerChan chan<- []*domain.Ticker
	conn       *websocket.Conn
	mu         sync.RWMutex
	writeMu    sync.Mutex
	connected  bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	log        *slog.Logger
}

// NewWorker creates a feed worker for the given symbols. The worker does
// not connect until Connect is called.
func NewWorker(url string, symbols []string, tickerChan chan<- []*domain.Ticker, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		url:        url,
		symbols:    symbols,
		tickerChan: tickerChan,
		log:        log,
	}
}

// Connect starts the connection loop with automatic reconnection. It
// returns immediately; the loop runs until the context is cancelled or
// Disconnect is called.
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("feed panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			w.log.Info("feed connection loop stopped")
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.log.Warn("feed connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)
			infra.GlobalMetrics.RecordFeedReconnect()

			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				w.log.Error("feed max retries exceeded, resetting counter")
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0

		pingCtx, stopPing := context.WithCancel(ctx)
		go w.pingLoop(pingCtx)
		w.readLoop(ctx)
		stopPing()
	}
}

// pingLoop keeps the connection alive between ticker bursts.
func (w *Worker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	infra.GlobalMetrics.IncrementConnections()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	w.log.Info("feed connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

func (w *Worker) subscribe() error {
	subscribeMsg := map[string]any{
		"op":      "subscribe",
		"channel": "ticker",
		"symbols": w.symbols,
	}

	msgBytes, err := json.Marshal(subscribeMsg)
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, msgBytes)
}

func (w *Worker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return conn.WriteMessage(messageType, data)
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.log.Warn("feed read error", slog.Any("error", err))
				infra.GlobalMetrics.RecordError()
			}
			w.closeConnection()
			return
		}

		w.handleMessage(message)
	}
}

func (w *Worker) handleMessage(message []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		w.log.Debug("feed message parse error", slog.Any("error", err))
		return
	}

	if msg.Type != "ticker" || msg.Symbol == "" {
		return
	}

	ticker := &domain.Ticker{
		Symbol:     msg.Symbol,
		Price:      decimal.NewFromFloat(msg.Price),
		ChangeRate: decimal.NewFromFloat(msg.ChangeRate),
		Liquidity:  decimal.NewFromFloat(msg.Liquidity),
		Timestamp:  time.UnixMilli(msg.Timestamp),
	}

	if w.tickerChan != nil {
		select {
		case w.tickerChan <- []*domain.Ticker{ticker}:
		default:
			w.log.Warn("ticker channel full, dropping data")
		}
	}
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		infra.GlobalMetrics.DecrementConnections()
	}
	w.connected = false
}

// Disconnect stops the connection loop and waits for it to exit.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	w.log.Info("feed disconnected")
}

// IsConnected reports whether the socket is currently up.
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
