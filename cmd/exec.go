package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/tb-audit/internal/acl"
	"github.com/tinkerbelle-io/tb-audit/internal/backend"
	"github.com/tinkerbelle-io/tb-audit/internal/logging"
	"github.com/tinkerbelle-io/tb-audit/internal/session"
	"github.com/tinkerbelle-io/tb-audit/internal/term"
)

var (
	flagExecUser  string
	flagExecAsset string
	flagExecRules string
)

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run one command through the audit pipeline",
	Long: `Run a single command on the local host with full session auditing:
a backend session is created, the command is filtered through the
access-control rules, the exchange is transcribed, and the command
record and replay artifact are uploaded before exit.

Useful for smoke-testing a deployment and for audited ad-hoc changes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&flagExecUser, "user", "", "User recorded on the session (default: current OS user)")
	execCmd.Flags().StringVar(&flagExecAsset, "asset", "", "Asset name recorded on the session (default: hostname)")
	execCmd.Flags().StringVar(&flagExecRules, "rules", "", "JSON file with access-control rules")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	auth, err := execAuth()
	if err != nil {
		return err
	}

	sessions := session.NewHandler(session.Config{
		Backend:          backend.NewClient(cfg.BackendURL, cfg.BackendToken),
		ReplayDir:        cfg.ReplayDir,
		DrainTimeout:     cfg.DrainTimeout,
		WatchdogInterval: cfg.WatchdogInterval,
	})

	ctx := context.Background()
	s, err := sessions.CreateSession(ctx, auth, "local")
	if err != nil {
		return err
	}
	defer s.Close(ctx, "exec finished")

	runner := term.NewLocalRunner("", 0, 0)
	defer runner.Close()

	input := strings.Join(args, " ")
	out, err := s.WithAudit(ctx, input, func(ctx context.Context) (string, error) {
		return runner.Run(ctx, input)
	})
	switch {
	case errors.Is(err, session.ErrRejected):
		return fmt.Errorf("command rejected by access-control policy")
	case err != nil:
		fmt.Fprintln(os.Stderr, err.Error())
		return err
	}

	fmt.Println(out)
	return nil
}

func execAuth() (session.AuthInfo, error) {
	userName := flagExecUser
	if userName == "" {
		if u, err := user.Current(); err == nil {
			userName = u.Username
		} else {
			userName = "unknown"
		}
	}
	assetName := flagExecAsset
	if assetName == "" {
		assetName, _ = os.Hostname()
	}

	var rules acl.RuleSet
	if flagExecRules != "" {
		data, err := os.ReadFile(flagExecRules)
		if err != nil {
			return session.AuthInfo{}, fmt.Errorf("read rules: %w", err)
		}
		if err := json.Unmarshal(data, &rules); err != nil {
			return session.AuthInfo{}, fmt.Errorf("parse rules: %w", err)
		}
	}

	return session.AuthInfo{
		User:        session.User{ID: userName, Name: userName, Username: userName},
		Account:     session.Account{ID: userName, Name: userName, Username: userName},
		Asset:       session.Asset{ID: assetName, Name: assetName, OrgID: "local"},
		Protocol:    "local",
		FilterRules: rules,
	}, nil
}
