package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pixeldraw/pixelhub/internal/config"
	"github.com/pixeldraw/pixelhub/internal/policy"
	"github.com/pixeldraw/pixelhub/internal/protocol"
)

type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Port:             "0",
		ShutdownTimeout:  5 * time.Second,
		CORSOrigins:      []string{"http://localhost:5173"},
		WSMaxMessageSize: 4096,
		WSSendBuffer:     64,
		UpgradeRate:      100,
		UpgradeBurst:     100,
	}

	srv := New(cfg, policy.NewStore(nil), nil)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})
	return ts
}

func dial(t *testing.T, ts *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	welcome := expect(t, conn, protocol.EventWelcome)
	id, _ := welcome.Data["id"].(string)
	if id == "" {
		t.Fatalf("welcome without id: %v", welcome.Data)
	}
	return conn, id
}

func write(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

// expect reads frames until one named event arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func joinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	write(t, conn, `{"event":"join_room","data":{"roomId":"`+room+`"}}`)
	ack := expect(t, conn, protocol.EventJoinedRoom)
	if ack.Data["roomId"] != room {
		t.Fatalf("joined_room = %v", ack.Data)
	}
}

func TestServer_WebSocketSession(t *testing.T) {
	ts := newTestServer(t)

	a, aID := dial(t, ts)
	b, _ := dial(t, ts)
	joinRoom(t, a, "abc")
	joinRoom(t, b, "abc")

	write(t, a, `{"event":"cell_action","data":{"roomId":"abc","row":2,"col":3,"val":"#ff0000"}}`)
	update := expect(t, b, protocol.EventCellUpdate)
	if update.Data["id"] != aID || update.Data["val"] != "#ff0000" {
		t.Errorf("cell_update = %v", update.Data)
	}

	write(t, a, `{"event":"set_username","data":{"username":"ana"}}`)
	write(t, a, `{"event":"send_message","data":"hello"}`)
	for _, conn := range []*websocket.Conn{a, b} {
		msg := expect(t, conn, protocol.EventReceiveMessage)
		if msg.Data["message"] != "ana: hello" {
			t.Errorf("receive_message = %v", msg.Data)
		}
	}

	a.Close()
	gone := expect(t, b, protocol.EventUserDisconnected)
	if gone.Data["id"] != aID {
		t.Errorf("user_disconnected = %v, want %s", gone.Data, aID)
	}
}

func TestServer_InvalidFrames(t *testing.T) {
	ts := newTestServer(t)
	conn, _ := dial(t, ts)

	tests := []struct {
		frame string
		code  string
	}{
		{frame: `not json`, code: protocol.CodeMalformed},
		{frame: `{"event":"teleport","data":{}}`, code: protocol.CodeUnknownEvent},
		{frame: `{"event":"mouse_event","data":{"roomId":"r"}}`, code: protocol.CodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			write(t, conn, tt.frame)
			got := expect(t, conn, protocol.EventError)
			if got.Data["code"] != tt.code {
				t.Errorf("code = %v, want %s", got.Data["code"], tt.code)
			}
		})
	}

	// The connection survives bad frames.
	write(t, conn, `{"event":"ping"}`)
	expect(t, conn, protocol.EventPong)
}

func TestServer_RoomsAPI(t *testing.T) {
	ts := newTestServer(t)
	conn, id := dial(t, ts)
	joinRoom(t, conn, "abc")

	resp, err := http.Get(ts.URL + "/api/v1/rooms")
	if err != nil {
		t.Fatalf("GET rooms error = %v", err)
	}
	defer resp.Body.Close()

	var list struct {
		Rooms []struct {
			RoomID  string `json:"roomId"`
			Members int    `json:"members"`
		} `json:"rooms"`
		Connections int `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(list.Rooms) != 1 || list.Rooms[0].RoomID != "abc" || list.Rooms[0].Members != 1 {
		t.Errorf("rooms = %+v", list.Rooms)
	}
	if list.Connections != 1 {
		t.Errorf("connections = %d", list.Connections)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/rooms/abc")
	if err != nil {
		t.Fatalf("GET room error = %v", err)
	}
	defer resp2.Body.Close()

	var detail struct {
		Members []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"members"`
	}
	json.NewDecoder(resp2.Body).Decode(&detail)
	if len(detail.Members) != 1 || detail.Members[0].ID != id || detail.Members[0].Username != "Anonymous" {
		t.Errorf("detail = %+v", detail)
	}

	resp3, err := http.Get(ts.URL + "/api/v1/rooms/missing")
	if err != nil {
		t.Fatalf("GET missing error = %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp3.StatusCode)
	}
}

func TestServer_Probes(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{path: "/health", want: http.StatusOK},
		{path: "/ready", want: http.StatusOK},
		{path: "/metrics", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_RejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v, want 403", resp)
	}

	header.Set("Origin", "http://localhost:5173")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin error = %v", err)
	}
	conn.Close()
}
