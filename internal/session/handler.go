package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tinkerbelle-io/tb-audit/internal/audit"
	"github.com/tinkerbelle-io/tb-audit/internal/backend"
	"github.com/tinkerbelle-io/tb-audit/internal/command"
	"github.com/tinkerbelle-io/tb-audit/internal/replay"
)

const defaultDrainTimeout = 10 * time.Second

// Config holds the collaborators and knobs shared by all sessions the
// handler creates.
type Config struct {
	Backend   backend.Backend
	Registry  *Registry
	ReplayDir string

	// Trail is the optional local audit trail; nil disables it.
	Trail *audit.Trail

	// DrainTimeout bounds how long session close waits for outstanding
	// audit writes. Zero means the default.
	DrainTimeout time.Duration

	// WatchdogInterval is how often idle/expiry budgets are checked.
	// Zero means the default.
	WatchdogInterval time.Duration
}

// Handler opens and closes backend-tracked sessions and wires up the
// per-session audit components.
type Handler struct {
	backend          backend.Backend
	registry         *Registry
	replayDir        string
	trail            *audit.Trail
	drainTimeout     time.Duration
	watchdogInterval time.Duration
	log              *slog.Logger
}

// NewHandler creates a session handler from cfg.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		backend:          cfg.Backend,
		registry:         cfg.Registry,
		replayDir:        cfg.ReplayDir,
		trail:            cfg.Trail,
		drainTimeout:     cfg.DrainTimeout,
		watchdogInterval: cfg.WatchdogInterval,
		log:              slog.Default().With("component", "session"),
	}
	if h.registry == nil {
		h.registry = NewRegistry()
	}
	if h.drainTimeout <= 0 {
		h.drainTimeout = defaultDrainTimeout
	}
	if h.watchdogInterval <= 0 {
		h.watchdogInterval = defaultWatchdogInterval
	}
	return h
}

// Registry returns the registry sessions are tracked in.
func (h *Handler) Registry() *Registry { return h.registry }

// CreateSession registers the session with the backend and builds the
// owning Session with its command handler, replay handler, and audit
// queue bound to the backend-assigned id. A backend refusal is fatal:
// the caller must not run commands without a session record.
func (h *Handler) CreateSession(ctx context.Context, auth AuthInfo, remoteAddr string) (*Session, error) {
	req := backend.Session{
		UserID:     auth.User.ID,
		User:       fmt.Sprintf("%s(%s)", auth.User.Name, auth.User.Username),
		AccountID:  auth.Account.ID,
		Account:    fmt.Sprintf("%s(%s)", auth.Account.Name, auth.Account.Username),
		OrgID:      auth.Asset.OrgID,
		AssetID:    auth.Asset.ID,
		Asset:      auth.Asset.Name,
		LoginFrom:  backend.LoginFromWebTerminal,
		Protocol:   auth.Protocol,
		RemoteAddr: remoteAddr,
		DateStart:  time.Now().Unix(),
	}

	created, err := h.backend.CreateSession(ctx, req)
	if err != nil {
		h.log.Error("failed to create session", "user", req.User, "asset", req.Asset, "error", err)
		return nil, err
	}
	if created.ID == "" {
		// The backend assigns ids; keep a local one if it didn't.
		created.ID = uuid.NewString()
	}

	s := &Session{
		record:   created,
		auth:     auth,
		handler:  h,
		commands: command.NewHandler(h.backend, created, auth.FilterRules),
		replay:   replay.NewHandler(h.backend, created.ID, h.replayDir),
		started:  time.Now(),
		closed:   make(chan struct{}),
	}
	s.log = slog.Default().With("component", "session", "session_id", created.ID)
	s.queue = newAuditQueue(defaultQueueSize, s.log)
	s.touch()

	h.registry.Register(s)
	s.trail(audit.Entry{
		SessionID: created.ID,
		EventType: audit.EventSessionOpen,
		User:      created.User,
		Asset:     created.Asset,
		Account:   created.Account,
	})
	s.startWatchdog(h.watchdogInterval)

	h.log.Info("session created",
		"session_id", created.ID, "user", created.User,
		"asset", created.Asset, "protocol", created.Protocol)
	return s, nil
}
