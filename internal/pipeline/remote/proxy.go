package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

const (
	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
)

// eventProxy streams the daemon's websocket events onto the local bus.
// The connection reconnects with bounded backoff until Stop is called.
type eventProxy struct {
	wsURL  string
	events interfaces.EventService
	logger arbor.ILogger

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func newEventProxy(baseURL string, events interfaces.EventService, logger arbor.ILogger) (*eventProxy, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported remote url scheme %q", u.Scheme)
	}
	u.Path = "/ws"

	return &eventProxy{
		wsURL:  u.String(),
		events: events,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

func (p *eventProxy) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

func (p *eventProxy) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.mu.Unlock()
	<-p.done
}

func (p *eventProxy) run(ctx context.Context) {
	defer close(p.done)

	delay := reconnectMinDelay
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.wsURL, nil)
		if err != nil {
			p.logger.Warn().Err(err).Str("url", p.wsURL).Msg("Event stream connect failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
		delay = reconnectMinDelay
		p.logger.Debug().Str("url", p.wsURL).Msg("Event stream connected")

		p.readLoop(ctx, conn)

		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
		conn.Close()
	}
}

func (p *eventProxy) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn().Err(err).Msg("Event stream read failed, reconnecting")
			}
			return
		}
		p.handleFrame(ctx, data)
	}
}

// handleFrame decodes one wire event and republishes it with a typed
// payload, matching what the in-process manager would have emitted.
func (p *eventProxy) handleFrame(ctx context.Context, data []byte) {
	var frame struct {
		Type    models.EventType `json:"type"`
		Payload json.RawMessage  `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		p.logger.Warn().Err(err).Msg("Discarding malformed event frame")
		return
	}

	switch frame.Type {
	case models.EventJobStatusChange:
		var payload models.JobStatusChangePayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			p.logger.Warn().Err(err).Msg("Discarding malformed job status payload")
			return
		}
		p.events.Publish(ctx, models.Event{Type: frame.Type, Payload: payload})

	case models.EventJobProgress:
		var payload models.JobProgressPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			p.logger.Warn().Err(err).Msg("Discarding malformed job progress payload")
			return
		}
		p.events.Publish(ctx, models.Event{Type: frame.Type, Payload: payload})

	case models.EventLibraryChange:
		p.events.Publish(ctx, models.Event{Type: frame.Type})

	default:
		p.logger.Debug().Str("type", string(frame.Type)).Msg("Ignoring unknown event type")
	}
}
