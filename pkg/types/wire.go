// Package types is the websocket wire contract shared with clients.
package types

import "github.com/pewpew-tabletop/range-backend/internal/engine"

// Client -> server message kinds.
const (
	MsgCommand   = "command"
	MsgChat      = "chat"
	MsgHeartbeat = "heartbeat"
	MsgResync    = "resync"
)

// Server -> client message kinds.
const (
	MsgWelcome = "welcome"
	MsgEvent   = "event"
	MsgSync    = "sync"
	MsgError   = "error"
)

// ClientMessage is the single envelope clients send. Cmd selects the game
// command for type "command"; unused fields stay empty.
type ClientMessage struct {
	Type string `json:"type"`

	Cmd        string `json:"cmd,omitempty"`
	ScenarioID string `json:"scenario_id,omitempty"`
	Mode       string `json:"mode,omitempty"`
	AttackID   string `json:"attack_id,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	SourceIP   string `json:"source_ip,omitempty"`
	Tool       string `json:"tool,omitempty"`
	Target     string `json:"target,omitempty"`
	Action     string `json:"action,omitempty"`
	Note       string `json:"note,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Choice     string `json:"choice,omitempty"`
	InjectKind string `json:"inject_kind,omitempty"`

	// Chat text.
	Text string `json:"text,omitempty"`
	// Resync cursor: the last event seq the client has applied.
	LastSeq int64 `json:"last_seq,omitempty"`
}

// ServerMessage is the envelope the server sends. "welcome" and a full
// "sync" carry State and Scenario; incremental traffic is one "event" per
// message so clients apply them in seq order.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role,omitempty"`
	LastSeq   int64  `json:"last_seq,omitempty"`

	// Full marks a sync reply that replaced the client's state because the
	// requested suffix was no longer retained.
	Full     bool           `json:"full,omitempty"`
	State    *StateView     `json:"state,omitempty"`
	Scenario *ScenarioView  `json:"scenario,omitempty"`
	Event    *engine.Event  `json:"event,omitempty"`
	Events   []engine.Event `json:"events,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"` // rule_violation | validation | conflict | bad_request
}

// ErrorKindOf buckets an apply error for the wire.
func ErrorKindOf(err error) string {
	switch {
	case engine.IsRuleViolation(err):
		return "rule_violation"
	case engine.IsValidation(err):
		return "validation"
	case engine.IsConflict(err):
		return "conflict"
	default:
		return "bad_request"
	}
}
