package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/tb-audit/internal/config"
)

var (
	// Flags
	flagConfig     string
	flagToken      string
	flagBackendURL string
	flagLogLevel   string
	flagLogFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "tb-audit",
	Short: "TinkerBelle session audit gateway",
	Long: `tb-audit records interactive sessions end to end: it creates a session
record in the backend, filters every command through access-control
rules, writes an asciinema transcript of the exchange, and uploads
command records and the replay artifact when the session ends.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: /etc/tb-audit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Backend API token (env: TB_AUDIT_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagBackendURL, "backend-url", "", "Backend API base URL (env: TB_AUDIT_BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text, json")
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("tb-audit %s\n", version))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file with flag values exported as
// environment overrides, so flags win over both file and environment.
func loadConfig() (*config.Config, error) {
	for key, val := range map[string]string{
		"TB_AUDIT_TOKEN":       flagToken,
		"TB_AUDIT_BACKEND_URL": flagBackendURL,
		"TB_AUDIT_LOG_LEVEL":   flagLogLevel,
		"TB_AUDIT_LOG_FORMAT":  flagLogFormat,
	} {
		if val != "" {
			os.Setenv(key, val)
		}
	}
	return config.Load(flagConfig)
}
