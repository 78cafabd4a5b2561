// Package session owns the lifecycle of one audited interactive session:
// backend registration, the per-command audit orchestration, and the
// close sequence that finalizes the replay artifact.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinkerbelle-io/tb-audit/internal/acl"
	"github.com/tinkerbelle-io/tb-audit/internal/audit"
	"github.com/tinkerbelle-io/tb-audit/internal/backend"
	"github.com/tinkerbelle-io/tb-audit/internal/command"
	"github.com/tinkerbelle-io/tb-audit/internal/replay"
)

// User identifies the person driving the session.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Account is the target-side login account.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Secret   string `json:"secret,omitempty"`
}

// Asset is the machine or service the session targets.
type Asset struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	OrgID   string `json:"org_id"`
}

// AuthInfo is the upstream authorization contract supplied at session
// creation: identity, target, ACL rules, and time budgets.
type AuthInfo struct {
	User           User          `json:"user"`
	Account        Account       `json:"account"`
	Asset          Asset         `json:"asset"`
	Protocol       string        `json:"protocol"`
	FilterRules    acl.RuleSet   `json:"filter_rules"`
	ExpireAt       int64         `json:"expire_at"`        // unix seconds; 0 = no expiry
	MaxIdleTime    time.Duration `json:"max_idle_time"`    // 0 = unlimited
	MaxSessionTime time.Duration `json:"max_session_time"` // 0 = unlimited
}

// Session is one tracked interactive session. It exclusively owns its
// command handler, replay handler, and audit queue; none are shared
// across sessions. Commands within a session are processed serially.
type Session struct {
	record  backend.Session
	auth    AuthInfo
	handler *Handler

	commands *command.Handler
	replay   *replay.Handler
	queue    *auditQueue
	log      *slog.Logger

	started     time.Time
	interrupted atomic.Bool
	lastActive  atomic.Int64 // unix nanos

	closeOnce sync.Once
	closed    chan struct{}

	// OnClose, when set, is invoked at the end of the close sequence with
	// the close reason (e.g. to notify a connected client).
	OnClose func(reason string)

	mu      sync.Mutex
	history []string
}

// ID returns the backend-assigned session id.
func (s *Session) ID() string { return s.record.ID }

// Record returns the backend session record.
func (s *Session) Record() backend.Session { return s.record }

// Interrupted reports whether the session has begun closing; command
// loops observe this and stop accepting input.
func (s *Session) Interrupted() bool { return s.interrupted.Load() }

// Done is closed when the close sequence has completed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// History returns a copy of the inputs submitted so far.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

// ReplayPath returns the location of the session's replay artifact.
func (s *Session) ReplayPath() string { return s.replay.Path() }

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) lastActiveTime() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Close runs the close sequence exactly once: mark interrupted, drain
// outstanding audit writes, upload the replay artifact, finish the
// backend session, and deregister. Replay upload and session finish are
// independent; both are attempted even when one fails.
func (s *Session) Close(ctx context.Context, reason string) {
	s.closeOnce.Do(func() {
		s.interrupted.Store(true)
		s.log.Info("closing session", "reason", reason)

		s.queue.Drain(s.handler.drainTimeout)

		if err := s.replay.Upload(ctx); err != nil {
			s.log.Error("replay upload failed", "error", err)
			s.trail(audit.Entry{
				SessionID: s.ID(),
				EventType: audit.EventReplayUpload,
				Reason:    err.Error(),
			})
		} else {
			s.trail(audit.Entry{
				SessionID: s.ID(),
				EventType: audit.EventReplayUpload,
			})
		}

		if err := s.handler.backend.FinishSession(ctx, s.ID(), time.Now()); err != nil {
			s.log.Error("failed to finish session", "error", err)
		}

		s.handler.registry.Unregister(s.ID())
		s.trail(audit.Entry{
			SessionID: s.ID(),
			EventType: audit.EventSessionClose,
			User:      s.record.User,
			Asset:     s.record.Asset,
			Reason:    reason,
		})
		close(s.closed)

		if s.OnClose != nil {
			s.OnClose(reason)
		}
	})
}

func (s *Session) trail(e audit.Entry) {
	if s.handler.trail == nil {
		return
	}
	if err := s.handler.trail.Log(e); err != nil {
		s.log.Warn("failed to write local audit trail", "error", err)
	}
}
