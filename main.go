// tb-audit — TinkerBelle Session Audit Gateway
//
// A single binary that fronts interactive sessions with full auditing:
// backend session tracking, per-command access-control filtering,
// asciinema transcripts, and at-least-once upload of command records
// and replay artifacts.
//
// Usage:
//
//	tb-audit daemon                 # run the websocket gateway
//	tb-audit exec "df -h"           # one-shot audited command
//	tb-audit install --token ...    # install as a system service
//	tb-audit status                 # service status
package main

import "github.com/tinkerbelle-io/tb-audit/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
