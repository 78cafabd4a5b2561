package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/tb-audit/internal/audit"
	"github.com/tinkerbelle-io/tb-audit/internal/backend"
	"github.com/tinkerbelle-io/tb-audit/internal/gateway"
	"github.com/tinkerbelle-io/tb-audit/internal/logging"
	"github.com/tinkerbelle-io/tb-audit/internal/session"
	"github.com/tinkerbelle-io/tb-audit/internal/signing"
)

var (
	flagListenAddr string
	flagReplayDir  string
	flagSigningKey string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the websocket audit gateway",
	Long: `Run tb-audit as a daemon serving the websocket gateway.

Each connection opens one audited session: the first message must be a
(signed) session.open carrying the authorization contract; subsequent
command.input messages run through the ACL filter, the transcript
recorder, and the downstream executor. Disconnects, idle timeouts, and
authorization expiry all trigger the close sequence, which uploads the
replay artifact and finalizes the backend session.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&flagListenAddr, "listen", "", "Listen address (env: TB_AUDIT_LISTEN_ADDR)")
	daemonCmd.Flags().StringVar(&flagReplayDir, "replay-dir", "", "Transcript buffer directory (env: TB_AUDIT_REPLAY_DIR)")
	daemonCmd.Flags().StringVar(&flagSigningKey, "signing-key", "", "Ed25519 public key for session.open verification (env: TB_AUDIT_SIGNING_KEY)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagListenAddr != "" {
		cfg.ListenAddr = flagListenAddr
	}
	if flagReplayDir != "" {
		cfg.ReplayDir = flagReplayDir
	}
	if flagSigningKey != "" {
		cfg.SigningKey = flagSigningKey
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := slog.Default().With("component", "daemon")

	var verifier *signing.Verifier
	if cfg.SigningKey != "" {
		pub, err := signing.ParsePublicKey(cfg.SigningKey)
		if err != nil {
			return fmt.Errorf("signing key: %w", err)
		}
		verifier = signing.NewVerifier(pub)
	} else {
		log.Warn("no signing key configured, session.open signatures are not verified")
	}

	trailPath := cfg.TrailPath
	if trailPath == "" {
		trailPath = audit.DefaultPath()
	}
	trail, err := audit.NewTrail(trailPath)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer trail.Close()

	sessions := session.NewHandler(session.Config{
		Backend:          backend.NewClient(cfg.BackendURL, cfg.BackendToken),
		Registry:         session.NewRegistry(),
		ReplayDir:        cfg.ReplayDir,
		Trail:            trail,
		DrainTimeout:     cfg.DrainTimeout,
		WatchdogInterval: cfg.WatchdogInterval,
	})

	gw := gateway.New(gateway.Config{
		Sessions: sessions,
		Verifier: verifier,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok sessions=%d\n", sessions.Registry().Len())
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close sessions first so replay uploads and finish calls happen
	// before the listener goes away.
	sessions.Registry().CloseAll(ctx, "gateway shutting down")

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
