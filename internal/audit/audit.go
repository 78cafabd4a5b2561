package audit

import "time"

// Event types for trail entries.
const (
	EventSessionOpen  = "SESSION_OPEN"
	EventSessionClose = "SESSION_CLOSE"
	EventCommand      = "COMMAND"
	EventBlocked      = "BLOCKED"
	EventReplayUpload = "REPLAY_UPLOAD"
)

// Entry is a single local audit-trail record. The trail is the agent-side
// complement to the backend audit store: uploads there are best-effort,
// the local trail is not.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	User      string    `json:"user,omitempty"`
	Asset     string    `json:"asset,omitempty"`
	Account   string    `json:"account,omitempty"`
	Input     string    `json:"input,omitempty"`
	Risk      string    `json:"risk,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	EntryHash string    `json:"entry_hash"`
}
