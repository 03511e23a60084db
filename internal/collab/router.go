package collab

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/pixeldraw/pixelhub/internal/activity"
	"github.com/pixeldraw/pixelhub/internal/policy"
	"github.com/pixeldraw/pixelhub/internal/protocol"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotInRoom         = errors.New("not a member of room")
	ErrMessageTooLong    = errors.New("message too long")
)

// Error codes for routing failures reported to the sender.
const (
	CodeNotInRoom      = "NOT_IN_ROOM"
	CodeMessageTooLong = "MESSAGE_TOO_LONG"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, ErrMessageTooLong):
		return CodeMessageTooLong
	default:
		return protocol.ErrorCode(err)
	}
}

// Delivery is one outbound event and the connections that receive it.
type Delivery struct {
	To      []string
	Event   string
	Payload any
}

// Outcome is everything produced by routing one inbound event.
type Outcome struct {
	Deliveries []Delivery
	Notices    []activity.Notice
}

// Router applies the fan-out rules to inbound events. It reads and mutates
// the registry and room table, so it runs on the Hub's dispatch loop.
type Router struct {
	registry *Registry
	rooms    *Rooms
}

// NewRouter creates a router over registry and rooms.
func NewRouter(registry *Registry, rooms *Rooms) *Router {
	return &Router{registry: registry, rooms: rooms}
}

// Route determines the audience for msg sent by from.
//
//	join_room         sender only (joined_room ack)
//	set_username      nobody
//	mouse_event       room members except sender
//	cell_action       room members except sender
//	grid_size_change  room members except sender
//	send_message      sender plus members of every room the sender is in
//	ping              sender only (pong)
func (rt *Router) Route(from string, msg *protocol.Message, pol *policy.Policy) (*Outcome, error) {
	if _, ok := rt.registry.Get(from); !ok {
		return nil, ErrUnknownConnection
	}

	if room := msg.Room(); room != "" && msg.Event != protocol.EventJoinRoom {
		if pol.RoomAccess == policy.RoomAccessMember && !rt.rooms.IsMember(from, room) {
			return nil, fmt.Errorf("%w %q", ErrNotInRoom, room)
		}
	}

	out := &Outcome{}

	switch p := msg.Payload.(type) {
	case *protocol.JoinRoom:
		room := p.Room()
		if rt.rooms.Join(from, room) {
			out.Notices = append(out.Notices, activity.Notice{
				Kind:     activity.KindJoined,
				ConnID:   from,
				RoomID:   room,
				Username: rt.registry.Username(from, pol.AnonymousName),
			})
		}
		out.Deliveries = append(out.Deliveries, Delivery{
			To:      []string{from},
			Event:   protocol.EventJoinedRoom,
			Payload: &protocol.JoinedRoom{RoomID: room},
		})

	case *protocol.SetUsername:
		rt.registry.SetUsername(from, p.Username)

	case *protocol.MouseEvent:
		out.Deliveries = append(out.Deliveries, Delivery{
			To:    rt.rooms.Peers(p.Room(), from),
			Event: protocol.EventMouseUpdate,
			Payload: &protocol.MouseUpdate{
				ID:    from,
				X:     p.X,
				Y:     p.Y,
				Color: rt.registry.Color(from),
			},
		})

	case *protocol.CellAction:
		out.Deliveries = append(out.Deliveries, Delivery{
			To:    rt.rooms.Peers(p.Room(), from),
			Event: protocol.EventCellUpdate,
			Payload: &protocol.CellUpdate{
				ID:  from,
				Row: p.Row,
				Col: p.Col,
				Val: p.Val,
			},
		})

	case *protocol.GridSizeChange:
		out.Deliveries = append(out.Deliveries, Delivery{
			To:      rt.rooms.Peers(p.Room(), from),
			Event:   protocol.EventGridSizeUpdate,
			Payload: &protocol.GridSizeUpdate{GridSize: p.GridSize},
		})

	case *protocol.SendMessage:
		if pol.MaxChatLength > 0 && utf8.RuneCountInString(p.Text) > pol.MaxChatLength {
			return nil, fmt.Errorf("%w (max %d characters)", ErrMessageTooLong, pol.MaxChatLength)
		}

		name := rt.registry.Username(from, pol.AnonymousName)
		rooms := rt.rooms.RoomsOf(from)
		out.Deliveries = append(out.Deliveries, Delivery{
			To:      rt.chatAudience(from, rooms),
			Event:   protocol.EventReceiveMessage,
			Payload: &protocol.ReceiveMessage{Message: name + ": " + p.Text},
		})
		for _, room := range rooms {
			out.Notices = append(out.Notices, activity.Notice{
				Kind:     activity.KindMessage,
				ConnID:   from,
				RoomID:   room,
				Username: name,
				Message:  p.Text,
			})
		}

	case *protocol.Ping:
		out.Deliveries = append(out.Deliveries, Delivery{
			To:      []string{from},
			Event:   protocol.EventPong,
			Payload: &protocol.Pong{},
		})

	default:
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownEvent, msg.Event)
	}

	return out, nil
}

// chatAudience is the sender followed by every other member of its rooms,
// each listed once.
func (rt *Router) chatAudience(from string, rooms []string) []string {
	seen := set{from: {}}
	audience := []string{from}
	for _, room := range rooms {
		for _, id := range rt.rooms.Peers(room, from) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			audience = append(audience, id)
		}
	}
	return audience
}
