// Package protocol defines the websocket messages exchanged between a
// connected client and the audit gateway.
package protocol

import "github.com/tinkerbelle-io/tb-audit/internal/session"

// Message types
const (
	TypeSessionOpen     = "session.open"
	TypeSessionReady    = "session.ready"
	TypeSessionClose    = "session.close"
	TypeSessionError    = "session.error"
	TypeCommandInput    = "command.input"
	TypeCommandOutput   = "command.output"
	TypeCommandRejected = "command.rejected"
)

// Envelope is used for initial JSON decode to determine message type
type Envelope struct {
	Type string `json:"type"`
}

// SessionOpenMessage carries the authorization contract for a new
// session. It arrives inside a signed envelope; the gateway verifies
// the signature before acting on it.
type SessionOpenMessage struct {
	Type string           `json:"type"`
	Auth session.AuthInfo `json:"auth"`
	Cols int              `json:"cols,omitempty"`
	Rows int              `json:"rows,omitempty"`
}

// SessionReadyMessage acknowledges session creation with the
// backend-assigned id.
type SessionReadyMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// SessionCloseMessage is sent by either side: a client request to end
// the session, or the gateway's notification that it ended.
type SessionCloseMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type SessionErrorMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error"`
}

type CommandInputMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Input     string `json:"input"`
}

type CommandOutputMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Output    string `json:"output"`
	Risk      string `json:"risk,omitempty"`
}

type CommandRejectedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Input     string `json:"input"`
	Reason    string `json:"reason,omitempty"`
}
