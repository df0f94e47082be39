package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/pkg/logger"
)

// DefaultWebsocketURL is the public Upbit quotation endpoint.
const DefaultWebsocketURL = "wss://api.upbit.com/websocket/v1"

// Stream implements TickStream over the Upbit trade websocket.
type Stream struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

// NewStream creates a new Upbit tick stream.
func NewStream(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Stream {
	if websocketURL == "" {
		websocketURL = DefaultWebsocketURL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Stream{
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("upbit connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	s.log.Info("upbit: connected", logger.String("url", s.websocketURL))
	return nil
}

// Subscribe sends one request covering every configured symbol.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected.Load() {
		return fmt.Errorf("upbit not connected")
	}
	req := []map[string]interface{}{
		{"ticket": "paperquant-" + uuid.NewString()},
		{"type": "trade", "codes": s.symbols, "isOnlyRealtime": true},
		{"format": "SIMPLE"},
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("upbit: subscribed", logger.Strings("symbols", s.symbols))
	return nil
}

// trade is the SIMPLE format trade frame.
type trade struct {
	Type     string  `json:"ty"`
	Code     string  `json:"cd"`
	Price    float64 `json:"tp"`
	Volume   float64 `json:"tv"`
	AskBid   string  `json:"ab"`
	TradeTS  int64   `json:"ttms"`
	Received int64   `json:"tms"`
}

func (t trade) tick() models.Tick {
	ms := t.TradeTS
	if ms == 0 {
		ms = t.Received
	}
	return models.Tick{
		Symbol:    t.Code,
		Price:     t.Price,
		Quantity:  t.Volume,
		Side:      models.Side(t.AskBid),
		Timestamp: time.UnixMilli(ms).UTC(),
	}
}

// Read streams ticks from the current connection. Both channels close when
// the connection fails or ctx ends; a failure is reported on the error
// channel first. Call Read again after Reconnect.
func (s *Stream) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, 1024)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	done := make(chan struct{})
	if s.pingInterval > 0 && conn != nil {
		go func() {
			ticker := time.NewTicker(s.pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-done:
					return
				case <-ticker.C:
					s.mu.Lock()
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
					s.mu.Unlock()
				}
			}
		}()
	}

	go func() {
		defer close(errs)
		defer close(ticks)
		defer close(done)
		if conn == nil {
			errs <- fmt.Errorf("upbit conn nil")
			return
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					s.connected.Store(false)
					errs <- fmt.Errorf("upbit read: %w", err)
				}
				return
			}
			var m trade
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			select {
			case ticks <- m.tick():
			case <-ctx.Done():
				return
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and reconnects.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.connected.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool { return s.connected.Load() }

var _ drepo.TickStream = (*Stream)(nil)
