package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pixeldraw/pixelhub/internal/activity"
	"github.com/pixeldraw/pixelhub/internal/policy"
	"github.com/pixeldraw/pixelhub/internal/protocol"
)

type received struct {
	Event string
	Data  map[string]any
}

type fakePeer struct {
	id string

	mu     sync.Mutex
	frames []received
	closed bool
	full   bool
}

func newPeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		panic(err)
	}
	r := received{Event: env.Event}
	json.Unmarshal(env.Data, &r.Data)
	p.frames = append(p.frames, r)
	return true
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// events returns received frames named event.
func (p *fakePeer) events(event string) []received {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []received
	for _, f := range p.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeFeed struct {
	mu      sync.Mutex
	notices []activity.Notice
}

func (f *fakeFeed) Publish(n activity.Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
}

func (f *fakeFeed) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.notices))
	for _, n := range f.notices {
		out = append(out, n.Kind+":"+n.RoomID)
	}
	return out
}

// sequentialColors hands out #000001, #000002, ...
func sequentialColors() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("#%06x", n)
	}
}

func startHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithColorFunc(sequentialColors())}, opts...)
	h := NewHub(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

func connect(t *testing.T, h *Hub, id string) *fakePeer {
	t.Helper()
	p := newPeer(id)
	if err := h.Register(p); err != nil {
		t.Fatalf("Register(%s) error = %v", id, err)
	}
	return p
}

func send(t *testing.T, h *Hub, from, frame string) {
	t.Helper()
	msg, err := protocol.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", frame, err)
	}
	if err := h.Dispatch(from, msg); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
}

func join(t *testing.T, h *Hub, from, room string) {
	t.Helper()
	send(t, h, from, fmt.Sprintf(`{"event":"join_room","data":{"roomId":%q}}`, room))
}

// settle waits until every previously submitted event has been handled.
func settle(t *testing.T, h *Hub) {
	t.Helper()
	if _, err := h.Stats(context.Background()); err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
}

func TestHub_WelcomeAssignsColor(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	settle(t, h)

	wa := a.events(protocol.EventWelcome)
	wb := b.events(protocol.EventWelcome)
	if len(wa) != 1 || len(wb) != 1 {
		t.Fatalf("expected one welcome each, got %d and %d", len(wa), len(wb))
	}
	if wa[0].Data["id"] != "A" || wa[0].Data["username"] != "Anonymous" {
		t.Errorf("unexpected welcome %v", wa[0].Data)
	}
	if wa[0].Data["color"] == wb[0].Data["color"] {
		t.Error("independent connections should get their own colors")
	}
}

func TestHub_CellActionScenario(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	c := connect(t, h, "C")

	join(t, h, "A", "abc")
	join(t, h, "B", "abc")
	send(t, h, "A", `{"event":"cell_action","data":{"roomId":"abc","row":2,"col":3,"val":"#ff0000"}}`)
	settle(t, h)

	got := b.events(protocol.EventCellUpdate)
	if len(got) != 1 {
		t.Fatalf("B expected 1 cell_update, got %d", len(got))
	}
	want := map[string]any{"id": "A", "row": float64(2), "col": float64(3), "val": "#ff0000"}
	for k, v := range want {
		if got[0].Data[k] != v {
			t.Errorf("cell_update[%s] = %v, want %v", k, got[0].Data[k], v)
		}
	}

	if n := len(a.events(protocol.EventCellUpdate)); n != 0 {
		t.Errorf("sender received %d cell_update, want 0", n)
	}
	if n := len(c.events(protocol.EventCellUpdate)); n != 0 {
		t.Errorf("non-member received %d cell_update, want 0", n)
	}
}

func TestHub_MouseEventExcludesSender(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	c := connect(t, h, "C")

	for _, id := range []string{"A", "B", "C"} {
		join(t, h, id, "r")
	}
	send(t, h, "A", `{"event":"mouse_event","data":{"roomId":"r","x":4,"y":5}}`)
	settle(t, h)

	if n := len(a.events(protocol.EventMouseUpdate)); n != 0 {
		t.Errorf("sender received %d mouse_update", n)
	}

	color := a.events(protocol.EventWelcome)[0].Data["color"]
	for _, p := range []*fakePeer{b, c} {
		got := p.events(protocol.EventMouseUpdate)
		if len(got) != 1 {
			t.Fatalf("%s expected 1 mouse_update, got %d", p.id, len(got))
		}
		if got[0].Data["id"] != "A" || got[0].Data["x"] != float64(4) || got[0].Data["y"] != float64(5) {
			t.Errorf("%s unexpected mouse_update %v", p.id, got[0].Data)
		}
		if got[0].Data["color"] != color {
			t.Errorf("mouse_update color = %v, want sender color %v", got[0].Data["color"], color)
		}
	}
}

func TestHub_DefaultColorsWithoutUsername(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	join(t, h, "A", "r")
	join(t, h, "B", "r")

	send(t, h, "A", `{"event":"mouse_event","data":{"roomId":"r","x":1,"y":1}}`)
	send(t, h, "B", `{"event":"mouse_event","data":{"roomId":"r","x":2,"y":2}}`)
	settle(t, h)

	for _, p := range []*fakePeer{a, b} {
		if len(p.events(protocol.EventError)) != 0 {
			t.Errorf("%s received an error", p.id)
		}
		got := p.events(protocol.EventMouseUpdate)
		if len(got) != 1 {
			t.Fatalf("%s expected 1 mouse_update, got %d", p.id, len(got))
		}
		if color, _ := got[0].Data["color"].(string); color == "" {
			t.Errorf("%s saw empty color", p.id)
		}
	}
}

func TestHub_ColorStableForLifetime(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	join(t, h, "A", "r")
	join(t, h, "B", "r")

	send(t, h, "A", `{"event":"set_username","data":{"username":"ana"}}`)
	for i := 0; i < 3; i++ {
		send(t, h, "A", `{"event":"mouse_event","data":{"roomId":"r","x":1,"y":1}}`)
	}
	settle(t, h)

	welcome := a.events(protocol.EventWelcome)[0].Data["color"]
	for _, u := range b.events(protocol.EventMouseUpdate) {
		if u.Data["color"] != welcome {
			t.Errorf("color changed: %v != %v", u.Data["color"], welcome)
		}
	}
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")

	join(t, h, "A", "abc")
	join(t, h, "A", "abc")
	join(t, h, "A", "abc")

	detail, found, err := h.Room(context.Background(), "abc")
	if err != nil || !found {
		t.Fatalf("Room() = %v, %v", found, err)
	}
	if len(detail.Members) != 1 || detail.Members[0].ID != "A" {
		t.Errorf("members = %+v, want only A", detail.Members)
	}

	acks := a.events(protocol.EventJoinedRoom)
	if len(acks) != 3 {
		t.Fatalf("expected an ack per join, got %d", len(acks))
	}
	if acks[0].Data["roomId"] != "abc" {
		t.Errorf("ack roomId = %v", acks[0].Data["roomId"])
	}
}

func TestHub_JoinAckGoesToJoinerOnly(t *testing.T) {
	h := startHub(t)
	connect(t, h, "A")
	b := connect(t, h, "B")
	join(t, h, "B", "abc")
	join(t, h, "A", "abc")
	settle(t, h)

	if n := len(b.events(protocol.EventJoinedRoom)); n != 1 {
		t.Errorf("B received %d joined_room, want only its own", n)
	}
}

func TestHub_SendMessageFanout(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	c := connect(t, h, "C")
	d := connect(t, h, "D")

	join(t, h, "A", "r1")
	join(t, h, "A", "r2")
	join(t, h, "B", "r1")
	join(t, h, "B", "r2")
	join(t, h, "C", "r2")

	send(t, h, "A", `{"event":"send_message","data":"hi"}`)
	send(t, h, "A", `{"event":"set_username","data":{"username":"ana"}}`)
	send(t, h, "A", `{"event":"send_message","data":"again"}`)
	settle(t, h)

	for _, p := range []*fakePeer{a, b, c} {
		got := p.events(protocol.EventReceiveMessage)
		if len(got) != 2 {
			t.Fatalf("%s expected 2 receive_message, got %d", p.id, len(got))
		}
		if got[0].Data["message"] != "Anonymous: hi" {
			t.Errorf("%s first message = %v", p.id, got[0].Data["message"])
		}
		if got[1].Data["message"] != "ana: again" {
			t.Errorf("%s second message = %v", p.id, got[1].Data["message"])
		}
	}
	if n := len(d.events(protocol.EventReceiveMessage)); n != 0 {
		t.Errorf("outsider received %d messages", n)
	}
}

func TestHub_SendMessageWithoutRoomEchoesOnly(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")

	send(t, h, "A", `{"event":"send_message","data":"alone"}`)
	settle(t, h)

	if n := len(a.events(protocol.EventReceiveMessage)); n != 1 {
		t.Errorf("sender expected echo, got %d", n)
	}
	if n := len(b.events(protocol.EventReceiveMessage)); n != 0 {
		t.Errorf("B received %d", n)
	}
}

func TestHub_DisconnectLifecycle(t *testing.T) {
	feed := &fakeFeed{}
	h := startHub(t, WithFeed(feed))
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	c := connect(t, h, "C")

	join(t, h, "A", "r1")
	join(t, h, "A", "r2")
	join(t, h, "B", "r1")

	h.Unregister("A")
	h.Unregister("A") // second unregister is ignored
	settle(t, h)

	if !a.isClosed() {
		t.Error("departing peer should be closed")
	}
	for _, p := range []*fakePeer{b, c} {
		got := p.events(protocol.EventUserDisconnected)
		if len(got) != 1 {
			t.Fatalf("%s expected exactly 1 user_disconnected, got %d", p.id, len(got))
		}
		if got[0].Data["id"] != "A" {
			t.Errorf("%s user_disconnected id = %v", p.id, got[0].Data["id"])
		}
	}
	if n := len(a.events(protocol.EventUserDisconnected)); n != 0 {
		t.Errorf("departing peer received %d notifications", n)
	}

	detail, found, _ := h.Room(context.Background(), "r1")
	if !found || len(detail.Members) != 1 || detail.Members[0].ID != "B" {
		t.Errorf("r1 members after disconnect = %+v", detail)
	}
	if _, found, _ := h.Room(context.Background(), "r2"); found {
		t.Error("empty room r2 should be evicted by default")
	}

	stats, _ := h.Stats(context.Background())
	if stats.Connections != 2 {
		t.Errorf("connections = %d, want 2", stats.Connections)
	}

	// Events from a departed connection are ignored.
	send(t, h, "A", `{"event":"cell_action","data":{"roomId":"r1","row":0,"col":0,"val":null}}`)
	settle(t, h)
	if n := len(b.events(protocol.EventCellUpdate)); n != 0 {
		t.Errorf("B received %d updates from departed A", n)
	}

	want := []string{"connected:", "connected:", "connected:", "joined:r1", "joined:r2", "joined:r1", "disconnected:"}
	got := feed.kinds()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("feed = %v, want %v", got, want)
	}
}

func TestHub_EmptyRoomsKeptWhenEvictionDisabled(t *testing.T) {
	p := policy.Default()
	p.EvictEmptyRooms = false
	h := startHub(t, WithPolicy(policy.NewStore(p)))

	connect(t, h, "A")
	join(t, h, "A", "r")
	h.Unregister("A")

	detail, found, err := h.Room(context.Background(), "r")
	if err != nil || !found {
		t.Fatalf("Room() found=%v err=%v", found, err)
	}
	if len(detail.Members) != 0 {
		t.Errorf("members = %+v, want none", detail.Members)
	}
}

func TestHub_ReconnectIsNewIdentity(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	first := a.events(protocol.EventWelcome)[0].Data["color"]
	h.Unregister("A")

	again := connect(t, h, "A")
	settle(t, h)
	second := again.events(protocol.EventWelcome)[0].Data["color"]

	if first == second {
		t.Errorf("reconnect reused color %v", first)
	}
}

func TestHub_OpenAccessRoutesToUnjoinedRoom(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	join(t, h, "B", "abc")

	send(t, h, "A", `{"event":"grid_size_change","data":{"roomId":"abc","gridSize":16}}`)
	settle(t, h)

	got := b.events(protocol.EventGridSizeUpdate)
	if len(got) != 1 || got[0].Data["gridSize"] != float64(16) {
		t.Fatalf("B grid_size_update = %v", got)
	}
	if len(a.events(protocol.EventError)) != 0 {
		t.Error("open access should not reply with an error")
	}
}

func TestHub_MemberAccessRejectsUnjoinedRoom(t *testing.T) {
	p := policy.Default()
	p.RoomAccess = policy.RoomAccessMember
	h := startHub(t, WithPolicy(policy.NewStore(p)))

	a := connect(t, h, "A")
	b := connect(t, h, "B")
	join(t, h, "B", "abc")

	send(t, h, "A", `{"event":"cell_action","data":{"roomId":"abc","row":0,"col":0,"val":null}}`)
	settle(t, h)

	if n := len(b.events(protocol.EventCellUpdate)); n != 0 {
		t.Errorf("B received %d updates", n)
	}
	errs := a.events(protocol.EventError)
	if len(errs) != 1 || errs[0].Data["code"] != CodeNotInRoom {
		t.Errorf("A errors = %v, want NOT_IN_ROOM", errs)
	}
}

func TestHub_ChatLengthLimit(t *testing.T) {
	p := policy.Default()
	p.MaxChatLength = 3
	h := startHub(t, WithPolicy(policy.NewStore(p)))

	a := connect(t, h, "A")
	send(t, h, "A", `{"event":"send_message","data":"ééé"}`)
	send(t, h, "A", `{"event":"send_message","data":"four"}`)
	settle(t, h)

	if n := len(a.events(protocol.EventReceiveMessage)); n != 1 {
		t.Errorf("expected the 3-rune message only, got %d", n)
	}
	errs := a.events(protocol.EventError)
	if len(errs) != 1 || errs[0].Data["code"] != CodeMessageTooLong {
		t.Errorf("errors = %v", errs)
	}
}

func TestHub_RejectRepliesToSenderOnly(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	join(t, h, "A", "r")
	join(t, h, "B", "r")

	_, decodeErr := protocol.Decode([]byte(`{"event":"cell_action","data":{"roomId":"r"}}`))
	if decodeErr == nil {
		t.Fatal("expected decode error")
	}
	if err := h.Reject("A", decodeErr); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	settle(t, h)

	errs := a.events(protocol.EventError)
	if len(errs) != 1 || errs[0].Data["code"] != protocol.CodeInvalidPayload {
		t.Errorf("A errors = %v", errs)
	}
	if n := len(b.events(protocol.EventError)); n != 0 {
		t.Errorf("B received %d errors", n)
	}
}

func TestHub_FullBufferIsolated(t *testing.T) {
	h := startHub(t)
	connect(t, h, "A")
	b := connect(t, h, "B")
	c := connect(t, h, "C")
	for _, id := range []string{"A", "B", "C"} {
		join(t, h, id, "r")
	}
	settle(t, h)

	b.mu.Lock()
	b.full = true
	b.mu.Unlock()

	send(t, h, "A", `{"event":"cell_action","data":{"roomId":"r","row":1,"col":1,"val":"#000000"}}`)
	settle(t, h)

	if n := len(c.events(protocol.EventCellUpdate)); n != 1 {
		t.Errorf("C received %d updates, want 1", n)
	}
}

func TestHub_Ping(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	send(t, h, "A", `{"event":"ping"}`)
	settle(t, h)

	if n := len(a.events(protocol.EventPong)); n != 1 {
		t.Errorf("expected 1 pong, got %d", n)
	}
}

func TestHub_DuplicateID(t *testing.T) {
	h := startHub(t)
	connect(t, h, "A")

	if err := h.Register(newPeer("A")); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Register() error = %v, want ErrDuplicateID", err)
	}
}

func TestHub_ClosedAfterCancel(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	p := newPeer("A")
	if err := h.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cancel()
	<-stopped

	if h.Running() {
		t.Error("hub should not be running")
	}
	if !p.isClosed() {
		t.Error("peers should be closed on shutdown")
	}
	if err := h.Register(newPeer("B")); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Register() error = %v, want ErrHubClosed", err)
	}
	if _, err := h.Stats(context.Background()); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Stats() error = %v, want ErrHubClosed", err)
	}
}
