package collab

import "sort"

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Rooms maps room ids to their member connections. Rooms are created on
// first join. Like Registry, it is owned by the Hub's dispatch loop.
type Rooms struct {
	members map[string]set // room -> connections
	joined  map[string]set // connection -> rooms
}

// NewRooms creates an empty membership table.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]set),
		joined:  make(map[string]set),
	}
}

// Join adds connID to roomID. It reports whether the connection was newly
// added; joining twice is a no-op.
func (r *Rooms) Join(connID, roomID string) bool {
	m, ok := r.members[roomID]
	if !ok {
		m = make(set)
		r.members[roomID] = m
	}
	if _, ok := m[connID]; ok {
		return false
	}
	m[connID] = struct{}{}

	j, ok := r.joined[connID]
	if !ok {
		j = make(set)
		r.joined[connID] = j
	}
	j[roomID] = struct{}{}
	return true
}

// LeaveAll removes connID from every room it belongs to and returns those
// rooms. Rooms left empty are deleted when evictEmpty is set; otherwise
// they stay as inert entries.
func (r *Rooms) LeaveAll(connID string, evictEmpty bool) []string {
	j, ok := r.joined[connID]
	if !ok {
		return nil
	}
	delete(r.joined, connID)

	left := j.sorted()
	for _, roomID := range left {
		m := r.members[roomID]
		delete(m, connID)
		if evictEmpty && len(m) == 0 {
			delete(r.members, roomID)
		}
	}
	return left
}

// MembersOf returns the members of roomID in sorted order. Unknown rooms
// have no members.
func (r *Rooms) MembersOf(roomID string) []string {
	return r.members[roomID].sorted()
}

// Peers returns the members of roomID other than exclude.
func (r *Rooms) Peers(roomID, exclude string) []string {
	m := r.members[roomID]
	out := make([]string, 0, len(m))
	for id := range m {
		if id != exclude {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RoomsOf returns the rooms connID has joined.
func (r *Rooms) RoomsOf(connID string) []string {
	return r.joined[connID].sorted()
}

// IsMember reports whether connID has joined roomID.
func (r *Rooms) IsMember(connID, roomID string) bool {
	_, ok := r.members[roomID][connID]
	return ok
}

// IDs returns all known room ids, including empty ones not yet evicted.
func (r *Rooms) IDs() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of known rooms.
func (r *Rooms) Len() int {
	return len(r.members)
}
