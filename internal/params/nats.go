package params

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject parameter updates are published on.
const DefaultSubject = "vocalbooth.params"

// NATSSource applies parameter updates received on a NATS subject. A message
// body is either a JSON object of effect keys or a key=value document. When
// the message has a reply subject, the resulting settings are sent back as
// JSON.
type NATSSource struct {
	conn    *nats.Conn
	subject string
	store   *Store
}

// NewNATSSource returns a source subscribed to subject on conn. An empty
// subject selects [DefaultSubject].
func NewNATSSource(conn *nats.Conn, subject string, store *Store) *NATSSource {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSource{conn: conn, subject: subject, store: store}
}

// Run subscribes and applies messages until ctx is cancelled, then drains
// the subscription.
func (n *NATSSource) Run(ctx context.Context) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("params: subscribe %s: %w", n.subject, err)
	}
	slog.Info("params: subscribed to NATS subject", "subject", n.subject)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		return fmt.Errorf("params: drain %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATSSource) handleMessage(ctx context.Context, msg *nats.Msg) {
	kv, err := decodeMessage(msg.Data)
	if err != nil {
		slog.Warn("params: bad NATS message", "subject", msg.Subject, "err", err)
		n.reply(msg, map[string]any{"type": "error", "message": err.Error()})
		return
	}
	errs := n.store.Apply(ctx, "nats", kv)

	resp := map[string]any{"type": "voice_effects_updated", "effects": n.store.Load().Map()}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		resp["rejected"] = msgs
	}
	n.reply(msg, resp)
}

func (n *NATSSource) reply(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("params: marshal NATS reply", "err", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn("params: NATS reply failed", "err", err)
	}
}

// decodeMessage accepts a JSON object or a key=value document.
func decodeMessage(data []byte) (map[string]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Parse(bytes.NewReader(trimmed))
	}
	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("params: decode json: %w", err)
	}
	kv := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case float64:
			kv[k] = strconv.FormatFloat(x, 'g', -1, 64)
		case bool:
			kv[k] = strconv.FormatBool(x)
		case string:
			kv[k] = x
		default:
			return nil, fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidValue, k, v)
		}
	}
	return kv, nil
}
