// Package command enforces per-command access control and persists one
// audit record per command attempt.
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinkerbelle-io/tb-audit/internal/acl"
	"github.com/tinkerbelle-io/tb-audit/internal/backend"
)

// Record is a single audited command. Output is attached once, after the
// downstream action completes or fails; the record is uploaded once and
// then discarded.
type Record struct {
	Input  string
	Output string
	Risk   acl.RiskLevel
}

// Handler evaluates the session's ACL rules and ships command records to
// the audit store with the session's denormalized context.
type Handler struct {
	backend backend.Backend
	session backend.Session
	rules   acl.RuleSet
	log     *slog.Logger
}

// NewHandler binds a command handler to one session. The rule set is
// immutable for the session's lifetime.
func NewHandler(b backend.Backend, session backend.Session, rules acl.RuleSet) *Handler {
	return &Handler{
		backend: b,
		session: session,
		rules:   rules,
		log:     slog.Default().With("component", "command", "session_id", session.ID),
	}
}

// ACLFilter decides whether the command may run. The record's risk level is
// set from the matching rule either way, so rejected attempts are audited
// with the rejection classification.
func (h *Handler) ACLFilter(rec *Record) acl.Decision {
	d := h.rules.Evaluate(rec.Input)
	rec.Risk = d.Risk
	if !d.IsContinue {
		h.log.Info("command blocked", "input", rec.Input, "risk", d.Risk.String(), "reason", d.Reason)
	}
	return d
}

// Record uploads the command's audit record stamped with the current time.
// A non-ok status comes back as a *backend.CommandUploadError; the caller
// logs it and keeps going, audit durability never breaks the command flow.
func (h *Handler) Record(ctx context.Context, rec *Record) error {
	return h.backend.UploadCommand(ctx, backend.CommandUpload{
		SessionID: h.session.ID,
		OrgID:     h.session.OrgID,
		Asset:     h.session.Asset,
		Account:   h.session.Account,
		User:      h.session.User,
		Timestamp: time.Now().Unix(),
		Input:     rec.Input,
		Output:    rec.Output,
		RiskLevel: rec.Risk.String(),
	})
}
