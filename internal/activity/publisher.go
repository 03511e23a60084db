package activity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the root of every subject the hub publishes on.
const SubjectPrefix = "pixelhub"

// Notice kinds.
const (
	KindConnected    = "connected"
	KindDisconnected = "disconnected"
	KindJoined       = "joined"
	KindMessage      = "message"
)

// Notice is one room activity record.
type Notice struct {
	Kind     string    `json:"kind"`
	ConnID   string    `json:"connId"`
	RoomID   string    `json:"roomId,omitempty"`
	Username string    `json:"username,omitempty"`
	Color    string    `json:"color,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// Subject returns the subject a notice is published on:
// connection lifecycle under pixelhub.activity.<kind>, room activity under
// pixelhub.rooms.<room>.<kind>.
func Subject(n Notice) string {
	if n.RoomID == "" {
		return SubjectPrefix + ".activity." + n.Kind
	}
	return SubjectPrefix + ".rooms." + SubjectToken(n.RoomID) + "." + n.Kind
}

// SubjectToken makes s usable as a single subject token. Separators,
// wildcards and whitespace are replaced with '_'.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Publisher sends notices to NATS. Publishing is fire-and-forget.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes a connection to NATS.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("pixelhub"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Publisher{conn: nc}, nil
}

// Publish sends n. Errors are logged, never returned: the feed must not
// affect event delivery to connections.
func (p *Publisher) Publish(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}

	data, err := json.Marshal(n)
	if err != nil {
		slog.Error("failed to marshal notice", "error", err)
		return
	}

	subject := Subject(n)
	if err := p.conn.Publish(subject, data); err != nil {
		slog.Warn("failed to publish notice", "subject", subject, "error", err)
		return
	}

	slog.Debug("notice published", "subject", subject, "conn_id", n.ConnID)
}

// IsConnected returns true if connected to NATS.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close flushes pending notices and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		slog.Warn("NATS drain failed", "error", err)
	}
}
