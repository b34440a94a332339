package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"tranche-vault/internal/eventing"
)

type message struct {
	name       string
	assetClass string
	payload    []byte
}

type client struct {
	ch         chan message
	assetClass string
}

// Broker fans out dispatched envelopes to connected SSE clients.
// Slow clients drop messages instead of blocking dispatch.
type Broker struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewBroker constructs a broker.
func NewBroker() *Broker {
	return &Broker{clients: make(map[*client]struct{})}
}

// Attach subscribes the broker to every event type on bus.
func (b *Broker) Attach(bus eventing.EventBus, eventTypes ...string) {
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, b.Handle)
	}
}

// Handle broadcasts the envelope carried in ctx, or a fresh one when absent.
func (b *Broker) Handle(ctx context.Context, event any) error {
	if b == nil {
		return nil
	}
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		built, err := eventing.BuildEnvelope(event, eventing.Meta{})
		if err != nil {
			return err
		}
		env = built
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	name := env.EventType
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	b.broadcast(message{name: name, assetClass: env.AssetClass, payload: payload})
	return nil
}

// Clients returns the number of connected clients.
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broker) subscribe(assetClass string) *client {
	c := &client{ch: make(chan message, 16), assetClass: assetClass}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	return c
}

func (b *Broker) unsubscribe(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	close(c.ch)
}

func (b *Broker) broadcast(msg message) {
	b.mu.Lock()
	targets := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		if c.assetClass == "" || c.assetClass == msg.assetClass {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()
	for _, c := range targets {
		select {
		case c.ch <- msg:
		default:
		}
	}
}

// Handler serves GET /api/v1/events/stream[?asset_class=].
type Handler struct {
	broker *Broker
}

// NewHandler constructs a stream handler.
func NewHandler(broker *Broker) *Handler {
	return &Handler{broker: broker}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := h.broker.subscribe(strings.TrimSpace(r.URL.Query().Get("asset_class")))
	defer h.broker.unsubscribe(c)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case msg := <-c.ch:
			_, _ = w.Write([]byte("event: " + msg.name + "\ndata: "))
			_, _ = w.Write(msg.payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
