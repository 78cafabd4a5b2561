package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

// Allowed session protocols.
var allowedProtocols = map[string]bool{
	"ssh": true, "local": true,
}

// idRe matches valid user/account/asset identifiers.
var idRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// addressRe matches hostnames or IPs with an optional port.
var addressRe = regexp.MustCompile(`^[a-zA-Z0-9.:\[\]-]+$`)

const (
	maxIDLen    = 253
	maxInputLen = 4096
)

// ValidateSessionOpen checks that the authorization fields contain
// safe, expected values before any of them reach a shell or a backend
// request.
func ValidateSessionOpen(m *SessionOpenMessage) error {
	if m == nil {
		return fmt.Errorf("missing session.open payload")
	}

	if !allowedProtocols[m.Auth.Protocol] {
		return fmt.Errorf("invalid protocol: %q", m.Auth.Protocol)
	}

	for field, val := range map[string]string{
		"user id":    m.Auth.User.ID,
		"account id": m.Auth.Account.ID,
		"asset id":   m.Auth.Asset.ID,
	} {
		if val == "" {
			return fmt.Errorf("missing %s", field)
		}
		if len(val) > maxIDLen {
			return fmt.Errorf("%s too long (%d chars, max %d)", field, len(val), maxIDLen)
		}
		if !idRe.MatchString(val) {
			return fmt.Errorf("invalid %s: %q", field, val)
		}
	}

	if m.Auth.Protocol == "ssh" {
		addr := m.Auth.Asset.Address
		if addr == "" {
			return fmt.Errorf("missing asset address for ssh session")
		}
		if len(addr) > maxIDLen || !addressRe.MatchString(addr) {
			return fmt.Errorf("invalid asset address: %q", addr)
		}
	}

	return nil
}

// ValidateCommandInput rejects empty and oversized command input.
func ValidateCommandInput(m *CommandInputMessage) error {
	if m == nil {
		return fmt.Errorf("missing command.input payload")
	}
	if m.SessionID == "" {
		return fmt.Errorf("missing session id")
	}
	if strings.TrimSpace(m.Input) == "" {
		return fmt.Errorf("empty command input")
	}
	if len(m.Input) > maxInputLen {
		return fmt.Errorf("command input too long (%d bytes, max %d)", len(m.Input), maxInputLen)
	}
	return nil
}
