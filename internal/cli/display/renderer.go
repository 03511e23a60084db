package display

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pixeldraw/pixelhub/pkg/client"
)

// Renderer turns hub events into terminal lines. It remembers the color of
// every connection seen in cursor updates so later lines about the same
// connection use it.
type Renderer struct {
	colors *Colorizer
	known  map[string]string // connection id -> color
	now    func() time.Time
}

// NewRenderer creates a renderer.
func NewRenderer(colors *Colorizer) *Renderer {
	return &Renderer{
		colors: colors,
		known:  make(map[string]string),
		now:    time.Now,
	}
}

// Remember records the color of a connection, e.g. from the welcome event.
func (r *Renderer) Remember(id, color string) {
	if id != "" && color != "" {
		r.known[id] = color
	}
}

// Render formats one event.
func (r *Renderer) Render(ev *client.Event) (string, error) {
	body, err := r.body(ev)
	if err != nil {
		return "", err
	}
	return r.colors.Dim(r.now().Format("15:04:05")) + " " + body, nil
}

func (r *Renderer) body(ev *client.Event) (string, error) {
	switch ev.Name {
	case "joined_room":
		var p client.JoinedRoom
		if err := ev.Decode(&p); err != nil {
			return "", err
		}
		return r.colors.Color("joined "+p.RoomID, "green"), nil

	case "mouse_update":
		var p client.MouseUpdate
		if err := ev.Decode(&p); err != nil {
			return "", err
		}
		r.Remember(p.ID, p.Color)
		return fmt.Sprintf("%s cursor %s (%g, %g)", r.colors.Swatch("  ", p.Color), r.who(p.ID), p.X, p.Y), nil

	case "cell_update":
		var p client.CellUpdate
		if err := ev.Decode(&p); err != nil {
			return "", err
		}
		val := "cleared"
		swatch := "  "
		if p.Val != nil {
			val = *p.Val
			swatch = r.colors.Swatch("  ", *p.Val)
		}
		return fmt.Sprintf("%s cell [%d,%d] %s by %s", swatch, p.Row, p.Col, val, r.who(p.ID)), nil

	case "grid_size_update":
		var p client.GridSizeUpdate
		if err := ev.Decode(&p); err != nil {
			return "", err
		}
		return r.colors.Color(fmt.Sprintf("grid resized to %dx%d", p.GridSize, p.GridSize), "purple"), nil

	case "receive_message":
		var p client.ReceiveMessage
		if err := ev.Decode(&p); err != nil {
			return "", err
		}
		name, text, ok := strings.Cut(p.Message, ": ")
		if !ok {
			return p.Message, nil
		}
		return r.colors.Bold(name) + ": " + text, nil

	case "user_disconnected":
		var p client.UserDisconnected
		if err := ev.Decode(&p); err != nil {
			return "", err
		}
		line := r.who(p.ID) + " left"
		delete(r.known, p.ID)
		return r.colors.Color(line, "red"), nil

	case "pong":
		return r.colors.Dim("pong"), nil
	}

	return ev.Name + " " + string(ev.Data), nil
}

// who is a short connection label in the connection's color when known.
func (r *Renderer) who(id string) string {
	label := id
	if len(label) > 8 {
		label = label[:8]
	}
	return r.colors.Color(label, r.known[id])
}

// Line is the JSON shape of one event in --json mode.
type Line struct {
	Time  time.Time       `json:"time"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JSONLine wraps ev for streaming output.
func (r *Renderer) JSONLine(ev *client.Event) Line {
	return Line{Time: r.now().UTC(), Event: ev.Name, Data: ev.Data}
}
