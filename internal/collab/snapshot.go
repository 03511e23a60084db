package collab

import "context"

// Member describes one connection in a room snapshot.
type Member struct {
	ID       string `json:"id"`
	Color    string `json:"color"`
	Username string `json:"username"`
}

// RoomSummary is a room id and its member count.
type RoomSummary struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}

// RoomDetail lists the members of one room.
type RoomDetail struct {
	RoomID  string   `json:"roomId"`
	Members []Member `json:"members"`
}

// Stats summarizes hub state.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// query runs fn on the dispatch loop and waits for it to finish.
func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	run := func() {
		fn()
		close(finished)
	}

	select {
	case h.queries <- run:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rooms lists every known room with its member count.
func (h *Hub) Rooms(ctx context.Context) ([]RoomSummary, error) {
	var rooms []RoomSummary
	err := h.query(ctx, func() {
		ids := h.rooms.IDs()
		rooms = make([]RoomSummary, 0, len(ids))
		for _, id := range ids {
			rooms = append(rooms, RoomSummary{RoomID: id, Members: len(h.rooms.MembersOf(id))})
		}
	})
	return rooms, err
}

// Room returns the members of roomID. The bool is false if the room is not
// known.
func (h *Hub) Room(ctx context.Context, roomID string) (*RoomDetail, bool, error) {
	var (
		detail *RoomDetail
		found  bool
	)
	err := h.query(ctx, func() {
		if _, found = h.rooms.members[roomID]; !found {
			return
		}
		anon := h.policy.Current().AnonymousName
		detail = &RoomDetail{RoomID: roomID, Members: []Member{}}
		for _, id := range h.rooms.MembersOf(roomID) {
			detail.Members = append(detail.Members, Member{
				ID:       id,
				Color:    h.registry.Color(id),
				Username: h.registry.Username(id, anon),
			})
		}
	})
	return detail, found, err
}

// Stats returns connection and room counts.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := h.query(ctx, func() {
		s = Stats{Connections: h.registry.Len(), Rooms: h.rooms.Len()}
	})
	return s, err
}
