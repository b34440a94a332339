package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"tranche-vault/internal/eventing"
)

// DefaultSubjectPrefix prefixes every relayed subject.
const DefaultSubjectPrefix = "vault.events"

// Conn is the subset of *nats.Conn used by the relay.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSRelay forwards dispatched envelopes to NATS subjects.
type NATSRelay struct {
	conn   Conn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS with reconnects enabled.
func Connect(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats relay: empty url")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return nats.Connect(
		url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	)
}

// NewNATSRelay constructs a relay. An empty prefix uses DefaultSubjectPrefix.
func NewNATSRelay(conn Conn, prefix string, logger *zap.Logger) (*NATSRelay, error) {
	if conn == nil {
		return nil, errors.New("nats relay: nil conn")
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSRelay{conn: conn, prefix: prefix, logger: logger}, nil
}

// Attach subscribes the relay to every event type on bus.
func (r *NATSRelay) Attach(bus eventing.EventBus, eventTypes ...string) {
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, r.Handle)
	}
}

// Handle publishes the envelope carried in ctx, or a fresh one when absent.
func (r *NATSRelay) Handle(ctx context.Context, event any) error {
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		built, err := eventing.BuildEnvelope(event, eventing.Meta{})
		if err != nil {
			return err
		}
		env = built
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	subject := r.Subject(env)
	if err := r.conn.Publish(subject, data); err != nil {
		r.logger.Warn("nats publish failed", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

// Subject builds "<prefix>.<asset class>.<event name>".
func (r *NATSRelay) Subject(env eventing.Envelope) string {
	name := env.EventType
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	assetClass := env.AssetClass
	if assetClass == "" {
		assetClass = "global"
	}
	return r.prefix + "." + sanitize(assetClass) + "." + sanitize(name)
}

func sanitize(token string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, token)
}
