package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pixeldraw/pixelhub/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the welcome event after the handshake.
	welcomeWait = 10 * time.Second

	// Maximum reconnection attempts before giving up.
	maxReconnectAttempts = 0 // 0 = infinite

	// Initial reconnection delay.
	initialReconnectDelay = 1 * time.Second

	// Maximum reconnection delay.
	maxReconnectDelay = 30 * time.Second
)

// Payload types carried by Event.Data.
type (
	Welcome          = protocol.Welcome
	JoinedRoom       = protocol.JoinedRoom
	MouseUpdate      = protocol.MouseUpdate
	CellUpdate       = protocol.CellUpdate
	GridSizeUpdate   = protocol.GridSizeUpdate
	ReceiveMessage   = protocol.ReceiveMessage
	UserDisconnected = protocol.UserDisconnected
)

// Names of the events a session receives.
const (
	EventJoinedRoom       = protocol.EventJoinedRoom
	EventMouseUpdate      = protocol.EventMouseUpdate
	EventCellUpdate       = protocol.EventCellUpdate
	EventGridSizeUpdate   = protocol.EventGridSizeUpdate
	EventReceiveMessage   = protocol.EventReceiveMessage
	EventUserDisconnected = protocol.EventUserDisconnected
	EventPong             = protocol.EventPong
)

// Event is one event received from the hub.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Session is a live hub connection. Rooms joined and the username set are
// replayed after an automatic reconnect.
type Session struct {
	client *Client
	conn   *websocket.Conn
	connMu sync.RWMutex
	// gorilla connections allow one concurrent writer.
	writeMu sync.Mutex

	events  chan *Event
	errors  chan error
	done    chan struct{}
	closed  bool
	closeMu sync.Mutex

	stateMu  sync.Mutex
	welcome  Welcome
	username string
	rooms    []string
}

// Dial connects to the hub and waits for the welcome event.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	s := &Session{
		client: c,
		events: make(chan *Event, 256),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	go s.readPump()
	go s.writePump()

	return s, nil
}

func (s *Session) connect(ctx context.Context) error {
	// Convert HTTP URL to WebSocket URL
	wsURL := strings.Replace(s.client.server, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/ws"

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return &ConnectionError{Err: err}
	}

	welcome, err := readWelcome(conn)
	if err != nil {
		conn.Close()
		return &ConnectionError{Err: err}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.stateMu.Lock()
	s.welcome = *welcome
	username := s.username
	rooms := append([]string(nil), s.rooms...)
	s.stateMu.Unlock()

	if username != "" {
		if err := s.write(protocol.EventSetUsername, &protocol.SetUsername{Username: username}); err != nil {
			conn.Close()
			return err
		}
	}
	for _, room := range rooms {
		if err := s.write(protocol.EventJoinRoom, joinPayload(room)); err != nil {
			conn.Close()
			return err
		}
	}

	return nil
}

func readWelcome(conn *websocket.Conn) (*Welcome, error) {
	conn.SetReadDeadline(time.Now().Add(welcomeWait))

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoWelcome, err)
	}
	if ev.Name != protocol.EventWelcome {
		return nil, fmt.Errorf("%w: got %q", ErrNoWelcome, ev.Name)
	}

	var w Welcome
	if err := ev.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoWelcome, err)
	}
	return &w, nil
}

func (s *Session) reconnect() {
	if s.isClosed() {
		return
	}

	delay := s.client.reconnectDelay
	attempts := 0

	for {
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		attempts++
		if maxReconnectAttempts > 0 && attempts > maxReconnectAttempts {
			s.report(&ConnectionError{Err: ErrMaxReconnectAttempts})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.connect(ctx)
		cancel()

		if err == nil {
			s.report(&ReconnectedError{ID: s.ID()})
			go s.readPump()
			go s.writePump()
			return
		}

		s.report(err)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *Session) readPump() {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}
	defer conn.Close()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if s.isClosed() {
				return
			}

			s.connMu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.connMu.Unlock()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || !s.client.reconnect {
				s.report(&ConnectionError{Err: err})
				return
			}

			s.report(err)
			go s.reconnect()
			return
		}

		if ev.Name == protocol.EventError {
			var serverErr ServerError
			if err := ev.Decode(&serverErr); err == nil {
				s.report(&serverErr)
			}
			continue
		}

		select {
		case s.events <- &ev:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.RLock()
			current := s.conn
			s.connMu.RUnlock()

			if current != conn {
				// Replaced or lost; the new connection has its own pump.
				return
			}

			s.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				// Connection lost, readPump will handle reconnection
				return
			}
		}
	}
}

func (s *Session) write(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return &ConnectionError{Err: ErrNotConnected}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) report(err error) {
	select {
	case s.errors <- err:
	default:
	}
}

func (s *Session) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func joinPayload(room string) *protocol.JoinRoom {
	return &protocol.JoinRoom{RoomRef: protocol.RoomRef{RoomID: room}}
}

func roomRef(room string) protocol.RoomRef {
	return protocol.RoomRef{RoomID: room}
}

// ID returns the connection id assigned by the hub. It changes after a
// reconnect.
func (s *Session) ID() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.welcome.ID
}

// Color returns the cursor color assigned by the hub.
func (s *Session) Color() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.welcome.Color
}

// JoinRoom joins roomID. The hub acknowledges with a joined_room event.
func (s *Session) JoinRoom(roomID string) error {
	if err := s.write(protocol.EventJoinRoom, joinPayload(roomID)); err != nil {
		return err
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for _, r := range s.rooms {
		if r == roomID {
			return nil
		}
	}
	s.rooms = append(s.rooms, roomID)
	return nil
}

// SetUsername sets the display name used in chat.
func (s *Session) SetUsername(name string) error {
	if err := s.write(protocol.EventSetUsername, &protocol.SetUsername{Username: name}); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.username = name
	s.stateMu.Unlock()
	return nil
}

// MoveMouse reports the cursor position in roomID.
func (s *Session) MoveMouse(roomID string, x, y float64) error {
	return s.write(protocol.EventMouse, &protocol.MouseEvent{RoomRef: roomRef(roomID), X: x, Y: y})
}

// SetCell paints one cell in roomID. A nil val clears it.
func (s *Session) SetCell(roomID string, row, col int, val *string) error {
	return s.write(protocol.EventCellAction, &protocol.CellAction{RoomRef: roomRef(roomID), Row: row, Col: col, Val: val})
}

// ResizeGrid announces a new grid dimension for roomID.
func (s *Session) ResizeGrid(roomID string, size int) error {
	return s.write(protocol.EventGridSizeChange, &protocol.GridSizeChange{RoomRef: roomRef(roomID), GridSize: size})
}

// SendMessage sends chat text to every room the session has joined.
func (s *Session) SendMessage(text string) error {
	return s.write(protocol.EventSendMessage, text)
}

// Ping asks the hub for a pong event.
func (s *Session) Ping() error {
	return s.write(protocol.EventPing, &protocol.Ping{})
}

// Events returns the channel of received events.
func (s *Session) Events() <-chan *Event {
	return s.events
}

// Errors returns the channel of errors: hub error replies, connection
// failures and reconnect notices.
func (s *Session) Errors() <-chan error {
	return s.errors
}

// Close closes the session.
func (s *Session) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.done)

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn != nil {
		s.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// IsConnected returns true if the session is currently connected.
func (s *Session) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn != nil
}
