package collab

import (
	"fmt"
	"math/rand"
	"sort"
)

// Connection is the ephemeral state of one live connection.
type Connection struct {
	ID       string
	Color    string
	Username string // empty until set_username
}

// RandomColor returns a uniformly random "#rrggbb" color.
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(1<<24))
}

// Registry tracks live connections. It is not safe for concurrent use;
// the Hub's dispatch loop owns it.
type Registry struct {
	conns    map[string]*Connection
	newColor func() string
}

// NewRegistry creates a registry. A nil colorFn uses RandomColor.
func NewRegistry(colorFn func() string) *Registry {
	if colorFn == nil {
		colorFn = RandomColor
	}
	return &Registry{
		conns:    make(map[string]*Connection),
		newColor: colorFn,
	}
}

// Connect records id and assigns its color. Connecting an id that is
// already live returns the existing record unchanged.
func (r *Registry) Connect(id string) *Connection {
	if c, ok := r.conns[id]; ok {
		return c
	}
	c := &Connection{ID: id, Color: r.newColor()}
	r.conns[id] = c
	return c
}

// Disconnect discards all state for id.
func (r *Registry) Disconnect(id string) (*Connection, bool) {
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	return c, ok
}

// SetUsername stores name for id. Any string is accepted.
func (r *Registry) SetUsername(id, name string) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.Username = name
	return true
}

// Color returns the color assigned to id, or "" if id is not live.
func (r *Registry) Color(id string) string {
	if c, ok := r.conns[id]; ok {
		return c.Color
	}
	return ""
}

// Username returns the display name for id, or fallback when none is set.
func (r *Registry) Username(id, fallback string) string {
	if c, ok := r.conns[id]; ok && c.Username != "" {
		return c.Username
	}
	return fallback
}

// Get returns the connection record for id.
func (r *Registry) Get(id string) (*Connection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// IDs returns all live connection ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.conns)
}
