package protocol

import (
	"encoding/json"
	"fmt"
)

// Client to hub events.
const (
	EventJoinRoom       = "join_room"
	EventSetUsername    = "set_username"
	EventMouse          = "mouse_event"
	EventCellAction     = "cell_action"
	EventGridSizeChange = "grid_size_change"
	EventSendMessage    = "send_message"
	EventPing           = "ping"
)

// Hub to client events.
const (
	EventWelcome          = "welcome"
	EventJoinedRoom       = "joined_room"
	EventMouseUpdate      = "mouse_update"
	EventCellUpdate       = "cell_update"
	EventGridSizeUpdate   = "grid_size_update"
	EventReceiveMessage   = "receive_message"
	EventUserDisconnected = "user_disconnected"
	EventError            = "error"
	EventPong             = "pong"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client to hub payloads

// RoomRef identifies the room a room-scoped event targets. Older clients
// send the picture id under "pictureId"; both name the same room.
type RoomRef struct {
	RoomID    string `json:"roomId,omitempty"`
	PictureID string `json:"pictureId,omitempty"`
}

// Room returns the referenced room id, preferring roomId over pictureId.
func (r RoomRef) Room() string {
	if r.RoomID != "" {
		return r.RoomID
	}
	return r.PictureID
}

type JoinRoom struct {
	RoomRef
}

type SetUsername struct {
	Username string `json:"username"`
}

type MouseEvent struct {
	RoomRef
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CellAction struct {
	RoomRef
	Row int     `json:"row"`
	Col int     `json:"col"`
	Val *string `json:"val"`
}

type GridSizeChange struct {
	RoomRef
	GridSize int `json:"gridSize"`
}

// SendMessage carries the raw chat text.
type SendMessage struct {
	Text string
}

type Ping struct{}

// Hub to client payloads

type Welcome struct {
	ID       string `json:"id"`
	Color    string `json:"color"`
	Username string `json:"username"`
}

type JoinedRoom struct {
	RoomID string `json:"roomId"`
}

type MouseUpdate struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

type CellUpdate struct {
	ID  string  `json:"id"`
	Row int     `json:"row"`
	Col int     `json:"col"`
	Val *string `json:"val"`
}

type GridSizeUpdate struct {
	GridSize int `json:"gridSize"`
}

type ReceiveMessage struct {
	Message string `json:"message"`
}

type UserDisconnected struct {
	ID string `json:"id"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Pong struct{}

// Message is a decoded and validated inbound event.
type Message struct {
	Event   string
	Payload any
}

// Room returns the room id for room-scoped events and "" otherwise.
func (m *Message) Room() string {
	switch p := m.Payload.(type) {
	case *JoinRoom:
		return p.Room()
	case *MouseEvent:
		return p.Room()
	case *CellAction:
		return p.Room()
	case *GridSizeChange:
		return p.Room()
	}
	return ""
}

// Encode wraps payload in an envelope and serializes it.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// NewErrorMessage creates an error reply.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{Code: code, Message: message}
}
