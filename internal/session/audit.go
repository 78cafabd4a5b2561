package session

import (
	"context"
	"errors"

	"github.com/tinkerbelle-io/tb-audit/internal/audit"
	"github.com/tinkerbelle-io/tb-audit/internal/command"
)

// ErrRejected is returned by WithAudit when the ACL filter stops a
// command before execution.
var ErrRejected = errors.New("command rejected by access-control policy")

// ErrInterrupted is returned when the session is already closing.
var ErrInterrupted = errors.New("session interrupted")

// WithAudit runs one command through the full audit pipeline:
//
//  1. Build the command record and consult the ACL filter.
//  2. Schedule the input row for the transcript; rejected attempts are
//     transcribed too.
//  3. If the filter says stop, return ErrRejected without executing.
//  4. Otherwise run fn and capture its output (or its error text) as the
//     record's output, scheduling the output row after the input row.
//  5. On every exit path, schedule exactly one command-record upload as
//     the final audit task for this command.
//
// The scheduled work runs on the session's audit queue, so transcript and
// upload latency never blocks the returned result, while input/output
// ordering per command and across commands is preserved. Errors from fn
// are returned unchanged; audit-path failures are logged and swallowed.
func (s *Session) WithAudit(ctx context.Context, input string, fn func(context.Context) (string, error)) (string, error) {
	if s.interrupted.Load() {
		return "", ErrInterrupted
	}
	s.touch()

	rec := &command.Record{Input: input}
	s.mu.Lock()
	s.history = append(s.history, input)
	s.mu.Unlock()

	decision := s.commands.ACLFilter(rec)

	s.queue.Enqueue(func() { s.replay.WriteInput(input) })
	defer s.queue.Enqueue(func() {
		if err := s.commands.Record(context.Background(), rec); err != nil {
			s.log.Error("failed to upload command record", "error", err)
		}
		event := audit.EventCommand
		if !decision.IsContinue {
			event = audit.EventBlocked
		}
		s.trail(audit.Entry{
			SessionID: s.ID(),
			EventType: event,
			User:      s.record.User,
			Asset:     s.record.Asset,
			Input:     rec.Input,
			Risk:      rec.Risk.String(),
			Reason:    decision.Reason,
		})
	})

	if !decision.IsContinue {
		return "", ErrRejected
	}

	out, err := fn(ctx)
	if err != nil {
		rec.Output = err.Error()
		s.queue.Enqueue(func() { s.replay.WriteOutput(rec.Output) })
		return "", err
	}

	rec.Output = out
	s.queue.Enqueue(func() { s.replay.WriteOutput(out) })
	return out, nil
}
