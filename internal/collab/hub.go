package collab

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/pixeldraw/pixelhub/internal/activity"
	"github.com/pixeldraw/pixelhub/internal/metrics"
	"github.com/pixeldraw/pixelhub/internal/policy"
	"github.com/pixeldraw/pixelhub/internal/protocol"
)

var (
	ErrHubClosed   = errors.New("hub closed")
	ErrDuplicateID = errors.New("connection id already registered")
)

// Peer is the hub's view of one transport connection.
type Peer interface {
	ID() string
	// Send queues data without blocking. It returns false if the data was
	// dropped.
	Send(data []byte) bool
	// Close releases the outbound queue. The hub calls it exactly once,
	// after which it never calls Send again.
	Close()
}

// Feed receives room activity notices.
type Feed interface {
	Publish(n activity.Notice)
}

// PolicySource supplies the active policy.
type PolicySource interface {
	Current() *policy.Policy
}

type registration struct {
	peer  Peer
	reply chan error
}

type inbound struct {
	from string
	msg  *protocol.Message
	err  error
}

// Hub owns the connection registry and room membership. All state changes
// happen on the goroutine running Run; other goroutines reach it only
// through channels.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	router   *Router
	peers    map[string]Peer

	policy  PolicySource
	feed    Feed
	metrics *metrics.Metrics

	register   chan registration
	unregister chan string
	inbound    chan inbound
	queries    chan func()
	done       chan struct{}
	running    atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithPolicy sets the policy source. Defaults to policy.Default().
func WithPolicy(p PolicySource) Option {
	return func(h *Hub) {
		h.policy = p
	}
}

// WithFeed publishes room activity to f.
func WithFeed(f Feed) Option {
	return func(h *Hub) {
		h.feed = f
	}
}

// WithMetrics records hub metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithColorFunc overrides color assignment.
func WithColorFunc(fn func() string) Option {
	return func(h *Hub) {
		if fn != nil {
			h.registry.newColor = fn
		}
	}
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub(opts ...Option) *Hub {
	registry := NewRegistry(nil)
	rooms := NewRooms()

	h := &Hub{
		registry:   registry,
		rooms:      rooms,
		router:     NewRouter(registry, rooms),
		peers:      make(map[string]Peer),
		policy:     policy.NewStore(nil),
		register:   make(chan registration),
		unregister: make(chan string),
		inbound:    make(chan inbound),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Run starts the hub's dispatch loop. It blocks until ctx is cancelled,
// then closes every remaining peer.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.closeAll()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case reg := <-h.register:
			reg.reply <- h.connect(reg.peer)

		case id := <-h.unregister:
			h.disconnect(id)

		case in := <-h.inbound:
			if in.err != nil {
				h.reject(in.from, in.err)
			} else {
				h.dispatch(in.from, in.msg)
			}

		case q := <-h.queries:
			q()
		}
	}
}

// Running reports whether the dispatch loop is active.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// Register connects peer. The connection is live, with its color
// assigned, once Register returns nil.
func (h *Hub) Register(peer Peer) error {
	reg := registration{peer: peer, reply: make(chan error, 1)}
	select {
	case h.register <- reg:
		return <-reg.reply
	case <-h.done:
		return ErrHubClosed
	}
}

// Unregister disconnects the peer with id. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Dispatch routes one decoded event from the connection id. Events from the
// same caller are handled in call order.
func (h *Hub) Dispatch(id string, msg *protocol.Message) error {
	select {
	case h.inbound <- inbound{from: id, msg: msg}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Reject reports a bad inbound frame back to the connection id only.
func (h *Hub) Reject(id string, err error) error {
	select {
	case h.inbound <- inbound{from: id, err: err}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) connect(peer Peer) error {
	id := peer.ID()
	if _, dup := h.peers[id]; dup {
		slog.Warn("duplicate connection id, ignoring", "conn_id", id)
		return ErrDuplicateID
	}

	conn := h.registry.Connect(id)
	h.peers[id] = peer
	h.metrics.SetConnections(h.registry.Len())

	pol := h.policy.Current()
	h.deliver(Delivery{
		To:    []string{id},
		Event: protocol.EventWelcome,
		Payload: &protocol.Welcome{
			ID:       id,
			Color:    conn.Color,
			Username: h.registry.Username(id, pol.AnonymousName),
		},
	})
	h.publish(activity.Notice{Kind: activity.KindConnected, ConnID: id, Color: conn.Color})

	slog.Info("client connected", "conn_id", id, "color", conn.Color, "total", h.registry.Len())
	return nil
}

func (h *Hub) disconnect(id string) {
	peer, ok := h.peers[id]
	if !ok {
		return
	}
	delete(h.peers, id)

	pol := h.policy.Current()
	name := h.registry.Username(id, pol.AnonymousName)
	left := h.rooms.LeaveAll(id, pol.EvictEmptyRooms)
	h.registry.Disconnect(id)
	peer.Close()

	h.deliver(Delivery{
		To:      h.registry.IDs(),
		Event:   protocol.EventUserDisconnected,
		Payload: &protocol.UserDisconnected{ID: id},
	})
	h.publish(activity.Notice{Kind: activity.KindDisconnected, ConnID: id, Username: name})

	h.metrics.SetConnections(h.registry.Len())
	h.metrics.SetRooms(h.rooms.Len())

	slog.Info("client disconnected", "conn_id", id, "rooms", left, "total", h.registry.Len())
}

func (h *Hub) dispatch(from string, msg *protocol.Message) {
	out, err := h.router.Route(from, msg, h.policy.Current())
	if err != nil {
		if errors.Is(err, ErrUnknownConnection) {
			slog.Debug("event from unknown connection", "conn_id", from, "event", msg.Event)
			return
		}
		h.metrics.Dropped(metrics.DropRejected)
		h.reject(from, err)
		return
	}

	h.metrics.Received(msg.Event)
	if msg.Event == protocol.EventJoinRoom {
		h.metrics.SetRooms(h.rooms.Len())
	}

	for _, d := range out.Deliveries {
		h.deliver(d)
	}
	for _, n := range out.Notices {
		h.publish(n)
	}

	slog.Debug("event routed", "conn_id", from, "event", msg.Event, "room_id", msg.Room())
}

func (h *Hub) reject(id string, err error) {
	code := errorCode(err)
	slog.Debug("event rejected", "conn_id", id, "code", code, "error", err)
	h.deliver(Delivery{
		To:      []string{id},
		Event:   protocol.EventError,
		Payload: protocol.NewErrorMessage(code, err.Error()),
	})
}

// deliver encodes d once and queues it on every recipient. A full queue
// drops the event for that recipient only.
func (h *Hub) deliver(d Delivery) {
	if len(d.To) == 0 {
		return
	}

	data, err := protocol.Encode(d.Event, d.Payload)
	if err != nil {
		slog.Error("failed to encode event", "event", d.Event, "error", err)
		return
	}

	sent := 0
	for _, id := range d.To {
		peer, ok := h.peers[id]
		if !ok {
			continue
		}
		if !peer.Send(data) {
			h.metrics.Dropped(metrics.DropBufferFull)
			slog.Warn("client send buffer full, dropping message", "conn_id", id, "event", d.Event)
			continue
		}
		sent++
	}
	h.metrics.Delivered(d.Event, sent)
}

func (h *Hub) publish(n activity.Notice) {
	if h.feed != nil {
		h.feed.Publish(n)
	}
}

func (h *Hub) closeAll() {
	for id, peer := range h.peers {
		peer.Close()
		delete(h.peers, id)
		h.rooms.LeaveAll(id, true)
		h.registry.Disconnect(id)
	}
	h.metrics.SetConnections(0)
	h.metrics.SetRooms(h.rooms.Len())
}
