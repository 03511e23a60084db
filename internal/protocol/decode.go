package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrMalformed      = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Error codes sent back to clients in "error" events.
const (
	CodeMalformed      = "INVALID_JSON"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

// ValidationError lists the schema violations of one inbound payload.
type ValidationError struct {
	Event   string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Event, strings.Join(e.Details, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// ErrorCode maps a decode error to the code reported to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	case errors.Is(err, ErrInvalidPayload):
		return CodeInvalidPayload
	default:
		return CodeMalformed
	}
}

const roomRefSchema = `
	"anyOf": [{"required": ["roomId"]}, {"required": ["pictureId"]}],
	"properties": {
		"roomId": {"type": "string", "minLength": 1},
		"pictureId": {"type": "string", "minLength": 1}`

var schemaSources = map[string]string{
	EventJoinRoom: `{
		"type": "object",` + roomRefSchema + `
		}
	}`,
	EventSetUsername: `{
		"type": "object",
		"required": ["username"],
		"properties": {
			"username": {"type": "string"}
		}
	}`,
	EventMouse: `{
		"type": "object",
		"required": ["x", "y"],` + roomRefSchema + `,
			"x": {"type": "number"},
			"y": {"type": "number"}
		}
	}`,
	EventCellAction: `{
		"type": "object",
		"required": ["row", "col", "val"],` + roomRefSchema + `,
			"row": {"type": "integer", "minimum": 0},
			"col": {"type": "integer", "minimum": 0},
			"val": {"type": ["string", "null"]}
		}
	}`,
	EventGridSizeChange: `{
		"type": "object",
		"required": ["gridSize"],` + roomRefSchema + `,
			"gridSize": {"type": "integer", "minimum": 1}
		}
	}`,
	EventSendMessage: `{"type": "string"}`,
}

var schemas = compileSchemas()

func compileSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(schemaSources))
	for event, src := range schemaSources {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("protocol: compile %s schema: %v", event, err))
		}
		compiled[event] = s
	}
	return compiled
}

// Decode parses one inbound frame, validates its payload and returns the
// typed message.
func Decode(frame []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformed)
	}

	if env.Event == EventPing {
		return &Message{Event: EventPing, Payload: &Ping{}}, nil
	}

	schema, ok := schemas[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}

	data := env.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, &ValidationError{Event: env.Event, Details: details}
	}

	payload, err := newPayload(env.Event)
	if err != nil {
		return nil, err
	}

	if msg, ok := payload.(*SendMessage); ok {
		if err := json.Unmarshal(data, &msg.Text); err != nil {
			return nil, &ValidationError{Event: env.Event, Details: []string{err.Error()}}
		}
	} else if err := json.Unmarshal(data, payload); err != nil {
		// Integral floats such as 2.0 pass the schema but not int decoding.
		return nil, &ValidationError{Event: env.Event, Details: []string{err.Error()}}
	}

	return &Message{Event: env.Event, Payload: payload}, nil
}

func newPayload(event string) (any, error) {
	switch event {
	case EventJoinRoom:
		return &JoinRoom{}, nil
	case EventSetUsername:
		return &SetUsername{}, nil
	case EventMouse:
		return &MouseEvent{}, nil
	case EventCellAction:
		return &CellAction{}, nil
	case EventGridSizeChange:
		return &GridSizeChange{}, nil
	case EventSendMessage:
		return &SendMessage{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
}
