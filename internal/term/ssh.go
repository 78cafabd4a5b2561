package term

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes the remote endpoint and the account to log in
// with. Password and PrivateKey are both optional but at least one must
// be set.
type SSHConfig struct {
	Addr       string // host or host:port; port defaults to 22
	User       string
	Password   string
	PrivateKey []byte // PEM-encoded
	Timeout    time.Duration
}

// SSHRunner executes commands on a remote host, reusing one connection
// for the whole session.
type SSHRunner struct {
	client *ssh.Client
	mu     sync.Mutex
}

// NewSSHRunner dials the target and returns a connected runner.
func NewSSHRunner(cfg SSHConfig) (*SSHRunner, error) {
	config, err := buildClientConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh config: %w", err)
	}

	addr := cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	return &SSHRunner{client: client}, nil
}

// Run executes cmd on the remote host and returns its combined output
// with the trailing newline trimmed.
func (r *SSHRunner) Run(ctx context.Context, cmd string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			session.Signal(ssh.SIGTERM)
			session.Close()
		case <-done:
		}
	}()

	out, err := session.CombinedOutput(cmd)
	close(done)

	text := strings.TrimRight(string(out), "\r\n")
	if ctx.Err() != nil {
		return text, ctx.Err()
	}
	if err != nil {
		return text, fmt.Errorf("command %q: %w", cmd, err)
	}
	return text, nil
}

// Close closes the underlying connection.
func (r *SSHRunner) Close() error {
	return r.client.Close()
}

func buildClientConfig(cfg SSHConfig) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no credentials for %s@%s", cfg.User, cfg.Addr)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	// Verify against known_hosts when it can be loaded.
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	home, _ := os.UserHomeDir()
	if cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts")); err == nil {
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}
