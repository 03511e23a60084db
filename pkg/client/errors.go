package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for connection handling.
var (
	ErrNotConnected         = errors.New("not connected")
	ErrNoWelcome            = errors.New("server did not send welcome")
	ErrMaxReconnectAttempts = errors.New("max reconnect attempts reached")
)

// APIError represents an error from the HTTP API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}

// ServerError is an "error" event the hub sent in reply to a rejected frame.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ConnectionError represents a connection failure.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ReconnectedError is reported on Session.Errors after a successful redial.
// The session has a new connection id; rooms and username were restored.
type ReconnectedError struct {
	ID string
}

func (e *ReconnectedError) Error() string {
	return "reconnected as " + e.ID
}
