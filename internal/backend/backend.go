// Package backend defines the audit-store RPC surface consumed by the
// session pipeline: session create/finish, command upload, and replay
// upload. Every response carries a boolean-status envelope; non-ok
// responses surface as the typed errors below so callers can apply the
// propagation policy (create errors are fatal, everything else is
// best-effort).
package backend

import (
	"context"
	"fmt"
	"time"
)

// LoginFrom values mirror the audit store's session origin enum.
const (
	LoginFromWebTerminal = "WT"
	LoginFromSSHTerminal = "ST"
)

// Session is the backend-tracked session record. The ID is assigned by the
// backend on creation; everything else is supplied by the agent.
type Session struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	User       string `json:"user"`
	AccountID  string `json:"account_id"`
	Account    string `json:"account"`
	OrgID      string `json:"org_id"`
	AssetID    string `json:"asset_id"`
	Asset      string `json:"asset"`
	LoginFrom  string `json:"login_from"`
	Protocol   string `json:"protocol"`
	RemoteAddr string `json:"remote_addr"`
	DateStart  int64  `json:"date_start"`
}

// CommandUpload is one audited command record, denormalized with session
// context the way the audit store expects it.
type CommandUpload struct {
	SessionID string `json:"sid"`
	OrgID     string `json:"org_id"`
	Asset     string `json:"asset"`
	Account   string `json:"account"`
	User      string `json:"user"`
	Timestamp int64  `json:"timestamp"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	RiskLevel string `json:"risk_level"`
}

// Backend is the narrow interface to the session audit store. Implementations
// must translate non-ok statuses into the typed errors in this package.
type Backend interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	FinishSession(ctx context.Context, id string, end time.Time) error
	UploadCommand(ctx context.Context, rec CommandUpload) error
	UploadReplayFile(ctx context.Context, sessionID, path string) error
}

// SessionCreateError means the backend refused to open a session. Fatal:
// no commands may run without a session record.
type SessionCreateError struct {
	Reason string
}

func (e *SessionCreateError) Error() string {
	return fmt.Sprintf("create session: %s", e.Reason)
}

// SessionCloseError means FinishSession failed. Logged; the rest of the
// close sequence still runs.
type SessionCloseError struct {
	SessionID string
	Reason    string
}

func (e *SessionCloseError) Error() string {
	return fmt.Sprintf("close session %s: %s", e.SessionID, e.Reason)
}

// CommandUploadError means the audit store rejected a command record.
// Never surfaced to the interactive user.
type CommandUploadError struct {
	SessionID string
	Reason    string
}

func (e *CommandUploadError) Error() string {
	return fmt.Sprintf("upload command for session %s: %s", e.SessionID, e.Reason)
}

// ReplayUploadError means the transcript could not be delivered. Logged;
// never blocks session teardown.
type ReplayUploadError struct {
	SessionID string
	Path      string
	Reason    string
}

func (e *ReplayUploadError) Error() string {
	return fmt.Sprintf("upload replay %s for session %s: %s", e.Path, e.SessionID, e.Reason)
}
