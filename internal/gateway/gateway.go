// Package gateway is the websocket front door: it authenticates
// session-open requests, drives the audited command loop, and streams
// results back to the connected client.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinkerbelle-io/tb-audit/internal/protocol"
	"github.com/tinkerbelle-io/tb-audit/internal/session"
	"github.com/tinkerbelle-io/tb-audit/internal/signing"
	"github.com/tinkerbelle-io/tb-audit/internal/term"
)

const writeTimeout = 10 * time.Second

// RunnerFactory builds the downstream executor for a session's target.
type RunnerFactory func(auth session.AuthInfo) (term.Runner, error)

// Config wires a Gateway.
type Config struct {
	Sessions *session.Handler

	// Verifier checks signatures on session.open messages. Nil disables
	// verification and accepts plain messages.
	Verifier *signing.Verifier

	// NewRunner overrides the default executor selection.
	NewRunner RunnerFactory
}

// Gateway upgrades HTTP connections and runs one audited session per
// websocket connection.
type Gateway struct {
	sessions  *session.Handler
	verifier  *signing.Verifier
	newRunner RunnerFactory
	upgrader  websocket.Upgrader
	log       *slog.Logger
}

// New creates a Gateway from cfg.
func New(cfg Config) *Gateway {
	g := &Gateway{
		sessions:  cfg.Sessions,
		verifier:  cfg.Verifier,
		newRunner: cfg.NewRunner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: slog.Default().With("component", "gateway"),
	}
	if g.newRunner == nil {
		g.newRunner = defaultRunner
	}
	return g
}

func defaultRunner(auth session.AuthInfo) (term.Runner, error) {
	switch auth.Protocol {
	case "ssh":
		return term.NewSSHRunner(term.SSHConfig{
			Addr:     auth.Asset.Address,
			User:     auth.Account.Username,
			Password: auth.Account.Secret,
		})
	case "local":
		return term.NewLocalRunner("", 0, 0), nil
	default:
		return nil, fmt.Errorf("no runner for protocol %q", auth.Protocol)
	}
}

// conn serializes writes; the command loop and the session's close
// notification write concurrently.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// ServeHTTP handles one websocket connection for its whole lifetime.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}

	s, runner, err := g.openSession(r, c)
	if err != nil {
		c.writeJSON(protocol.SessionErrorMessage{
			Type:  protocol.TypeSessionError,
			Error: err.Error(),
		})
		return
	}
	defer runner.Close()

	s.OnClose = func(reason string) {
		c.writeJSON(protocol.SessionCloseMessage{
			Type:      protocol.TypeSessionClose,
			SessionID: s.ID(),
			Reason:    reason,
		})
	}

	c.writeJSON(protocol.SessionReadyMessage{
		Type:      protocol.TypeSessionReady,
		SessionID: s.ID(),
	})

	g.commandLoop(r.Context(), c, s, runner)
}

// openSession reads and authenticates the session.open message and
// creates the backend session.
func (g *Gateway) openSession(r *http.Request, c *conn) (*session.Session, term.Runner, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return nil, nil, fmt.Errorf("read session.open: %w", err)
	}

	if g.verifier != nil {
		payload, result := g.verifier.Verify(raw)
		if !result.Valid {
			g.log.Warn("rejected session.open",
				"remote", r.RemoteAddr, "user_id", result.UserID, "reason", result.Reason)
			return nil, nil, fmt.Errorf("authentication failed: %s", result.Reason)
		}
		raw = payload
	}

	var open protocol.SessionOpenMessage
	if err := json.Unmarshal(raw, &open); err != nil {
		return nil, nil, fmt.Errorf("decode session.open: %w", err)
	}
	if open.Type != protocol.TypeSessionOpen {
		return nil, nil, fmt.Errorf("expected %s, got %q", protocol.TypeSessionOpen, open.Type)
	}
	if err := protocol.ValidateSessionOpen(&open); err != nil {
		return nil, nil, err
	}

	runner, err := g.newRunner(open.Auth)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to target: %w", err)
	}

	s, err := g.sessions.CreateSession(r.Context(), open.Auth, r.RemoteAddr)
	if err != nil {
		runner.Close()
		return nil, nil, err
	}
	return s, runner, nil
}

func (g *Gateway) commandLoop(ctx context.Context, c *conn, s *session.Session, runner term.Runner) {
	defer s.Close(context.Background(), "connection closed")

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				g.log.Warn("websocket read failed", "session_id", s.ID(), "error", err)
			}
			return
		}
		if s.Interrupted() {
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.writeJSON(protocol.SessionErrorMessage{
				Type: protocol.TypeSessionError, SessionID: s.ID(),
				Error: fmt.Sprintf("invalid message: %v", err),
			})
			continue
		}

		switch env.Type {
		case protocol.TypeCommandInput:
			var in protocol.CommandInputMessage
			if err := json.Unmarshal(raw, &in); err == nil {
				err = protocol.ValidateCommandInput(&in)
			}
			if err != nil {
				c.writeJSON(protocol.SessionErrorMessage{
					Type: protocol.TypeSessionError, SessionID: s.ID(),
					Error: err.Error(),
				})
				continue
			}
			g.runCommand(ctx, c, s, runner, in.Input)

		case protocol.TypeSessionClose:
			s.Close(context.Background(), "client requested close")
			return

		default:
			c.writeJSON(protocol.SessionErrorMessage{
				Type: protocol.TypeSessionError, SessionID: s.ID(),
				Error: fmt.Sprintf("unexpected message type %q", env.Type),
			})
		}
	}
}

// runCommand pushes one input through the audit pipeline and reports
// the result. Execution errors are delivered as output text, exactly
// what the transcript and the command record captured.
func (g *Gateway) runCommand(ctx context.Context, c *conn, s *session.Session, runner term.Runner, input string) {
	out, err := s.WithAudit(ctx, input, func(ctx context.Context) (string, error) {
		return runner.Run(ctx, input)
	})
	switch {
	case errors.Is(err, session.ErrRejected):
		c.writeJSON(protocol.CommandRejectedMessage{
			Type:      protocol.TypeCommandRejected,
			SessionID: s.ID(),
			Input:     input,
			Reason:    "command rejected by access-control policy",
		})
	case errors.Is(err, session.ErrInterrupted):
		// The close notification already went out.
	case err != nil:
		c.writeJSON(protocol.CommandOutputMessage{
			Type:      protocol.TypeCommandOutput,
			SessionID: s.ID(),
			Output:    err.Error(),
		})
	default:
		c.writeJSON(protocol.CommandOutputMessage{
			Type:      protocol.TypeCommandOutput,
			SessionID: s.ID(),
			Output:    out,
		})
	}
}
