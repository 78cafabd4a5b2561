// Package term provides the downstream executors audited sessions run
// commands on: a local shell behind a pty and a remote host over SSH.
package term

import "context"

// Runner executes one command and returns its combined output. Output is
// returned as text because it feeds the session transcript and the
// command record verbatim.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
	Close() error
}
