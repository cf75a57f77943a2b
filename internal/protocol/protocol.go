// Package protocol defines the messages exchanged over the control WebSocket.
package protocol

import (
	"encoding/json"
	"time"

	"hkmacro/internal/executor"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeAuth is sent by client immediately after connection to authenticate
	TypeAuth MessageType = "auth"

	// TypeEvent carries an executor event to clients
	TypeEvent MessageType = "event"

	// TypeExecute asks the server to run a macro
	TypeExecute MessageType = "execute"

	// TypeStop, TypePause and TypeResume control the running macro
	TypeStop   MessageType = "stop"
	TypePause  MessageType = "pause"
	TypeResume MessageType = "resume"

	// TypeStatus requests, or carries, the engine status
	TypeStatus MessageType = "status"

	// TypeError reports a failed client request
	TypeError MessageType = "error"

	// TypeMacrosChanged tells clients the macro collection changed
	TypeMacrosChanged MessageType = "macros_changed"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds a message with payload encoded as JSON. A nil payload is
// omitted.
func New(t MessageType, payload any) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// AuthPayload is the payload for TypeAuth
type AuthPayload struct {
	Token string `json:"token"`
}

// ExecutePayload is the payload for TypeExecute
type ExecutePayload struct {
	MacroID   string         `json:"macro_id"`
	Variables map[string]any `json:"variables,omitempty"`
}

// ErrorPayload is the payload for TypeError
type ErrorPayload struct {
	Request MessageType `json:"request"`
	Message string      `json:"message"`
}

// MacrosChangedPayload is the payload for TypeMacrosChanged. MacroID is
// empty when the whole collection was reloaded.
type MacrosChangedPayload struct {
	Change  string `json:"change"`
	MacroID string `json:"macro_id,omitempty"`
}

// StatusPayload is the payload for TypeStatus
type StatusPayload struct {
	Status    string `json:"status"`
	RunID     string `json:"run_id,omitempty"`
	MacroID   string `json:"macro_id,omitempty"`
	MacroName string `json:"macro_name,omitempty"`
	Executed  int    `json:"actions_executed"`
}

// EventPayload is the payload for TypeEvent
type EventPayload struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	MacroID     string    `json:"macro_id"`
	MacroName   string    `json:"macro_name"`
	Description string    `json:"description,omitempty"`
	Current     int       `json:"current,omitempty"`
	Total       int       `json:"total,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// FromEvent converts an executor event.
func FromEvent(ev executor.Event) EventPayload {
	return EventPayload{
		Type:        string(ev.Type),
		RunID:       ev.RunID,
		MacroID:     ev.MacroID,
		MacroName:   ev.MacroName,
		Description: ev.Description,
		Current:     ev.Current,
		Total:       ev.Total,
		Status:      ev.Status.String(),
		Error:       ev.Error,
		Time:        ev.Time,
	}
}

// StatusFromInfo builds a status payload for a run, or an idle one.
func StatusFromInfo(info executor.Info, ok bool) StatusPayload {
	if !ok {
		return StatusPayload{Status: executor.Idle.String()}
	}
	return StatusPayload{
		Status:    info.Status.String(),
		RunID:     info.RunID,
		MacroID:   info.MacroID,
		MacroName: info.MacroName,
		Executed:  info.Executed,
	}
}
