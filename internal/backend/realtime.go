package backend

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chatterbox-im/chatterbox/internal/bus"
	"github.com/chatterbox-im/chatterbox/internal/config"
	"github.com/chatterbox-im/chatterbox/internal/status"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second // must be < pongWait
)

// Scope is one watched table + filter predicate on the change feed.
type Scope struct {
	Table  string
	Filter string
}

// Feed consumes the backend's realtime change feed over a websocket and
// publishes decoded row events on the bus. Delivery from the backend is
// at-least-once with per-row ordering only; dedup is the sync engine's job.
// The feed owns reconnection; it never retries individual events.
type Feed struct {
	wsURL   string
	apiKey  string
	token   string
	userID  string
	scopes  []Scope
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	limiter *rate.Limiter
	cancel  context.CancelFunc
}

// NewFeed creates a change-feed client for the given scopes.
func NewFeed(cfg config.Backend, userID string, scopes []Scope, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Feed {
	wsURL := strings.TrimRight(cfg.URL, "/")
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/realtime/v1/stream"

	return &Feed{
		wsURL:   wsURL,
		apiKey:  cfg.APIKey,
		token:   cfg.AccessToken,
		userID:  userID,
		scopes:  scopes,
		bus:     b,
		machine: m,
		logger:  logger,
		// One dial every two seconds at most; a flapping backend must not
		// turn the daemon into a dial loop.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Start runs the feed until the context is cancelled or Stop is called.
func (f *Feed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	go f.run(ctx)
}

// Stop tears down the feed connection.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Feed) run(ctx context.Context) {
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return
		}

		err := f.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			f.logger.Warn("feed connection lost", zap.Error(err))
		}
		_ = f.machine.Transition(status.Reconnecting)
		f.bus.Publish(bus.Event{Kind: "feed.disconnected", Timestamp: time.Now()})
	}
}

// connectOnce dials, subscribes every scope and pumps events until the
// connection dies or the context is cancelled.
func (f *Feed) connectOnce(ctx context.Context) error {
	if cur := f.machine.Current(); cur == status.Reconnecting {
		_ = f.machine.Transition(status.Connecting)
	}

	header := http.Header{}
	header.Set("apikey", f.apiKey)
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, header)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	_ = f.machine.Transition(status.Subscribing)

	for _, scope := range f.scopes {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(subscribeFrame{Action: "subscribe", Table: scope.Table, Filter: scope.Filter}); err != nil {
			return err
		}
	}

	_ = f.machine.Transition(status.Live)
	f.bus.Publish(bus.Event{Kind: "feed.connected", Timestamp: time.Now()})
	f.logger.Info("change feed live", zap.Int("scopes", len(f.scopes)))

	// Close the connection when the context dies so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	// Ping keeps intermediaries from idling the connection out.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame changeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if evt, ok := decodeChange(frame, f.userID); ok {
			f.bus.Publish(evt)
		}
	}
}
