package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"floorvault/core/events"
	"floorvault/core/types"
)

const wsWriteTimeout = 10 * time.Second

// Message is the wire form of a committed event on the feed.
type Message struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type typedEvent interface {
	Event() *types.Event
}

// Broadcaster fans committed events out to feed subscribers. It is installed
// as the state manager's sink, so Emit runs while the market lock is held and
// never blocks: a subscriber whose buffer is full is disconnected.
type Broadcaster struct {
	buffer  int
	seq     atomic.Uint64
	mu      sync.Mutex
	subs    map[*subscription]struct{}
	dropped atomic.Uint64
}

type subscription struct {
	ch     chan Message
	closed bool
}

// NewBroadcaster returns a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 1
	}
	return &Broadcaster{buffer: buffer, subs: make(map[*subscription]struct{})}
}

// Emit implements events.Emitter.
func (b *Broadcaster) Emit(evt events.Event) {
	if b == nil || evt == nil {
		return
	}
	msg := Message{Sequence: b.seq.Add(1), Type: evt.EventType()}
	if typed, ok := evt.(typedEvent); ok {
		if rendered := typed.Event(); rendered != nil {
			msg.Attributes = rendered.Attributes
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- msg:
		default:
			b.dropped.Add(1)
			b.closeLocked(sub)
		}
	}
}

// Subscribe registers a subscriber. The returned channel is closed when the
// subscriber falls behind or cancel is called.
func (b *Broadcaster) Subscribe() (<-chan Message, func()) {
	sub := &subscription{ch: make(chan Message, b.buffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub.ch, func() {
		b.mu.Lock()
		b.closeLocked(sub)
		b.mu.Unlock()
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many subscribers were cut off for falling behind.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

func (b *Broadcaster) closeLocked(sub *subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subs, sub)
	close(sub.ch)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.feed.Subscribe()
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, updates); err != nil && !errors.Is(err, context.Canceled) {
		if websocket.CloseStatus(err) == -1 {
			s.logger.Debug("event stream ended", slog.String("request_id", requestIDFrom(r.Context())), slog.Any("error", err))
			_ = conn.Close(websocket.StatusPolicyViolation, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return errors.New("subscriber fell behind")
			}
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
