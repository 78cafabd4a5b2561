package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/tb-audit/internal/config"
	"github.com/tinkerbelle-io/tb-audit/internal/install"
	"github.com/tinkerbelle-io/tb-audit/internal/logging"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tb-audit service status",
	Long:  `Display the current state of the tb-audit service, config, and binary.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logging.Setup(flagLogLevel, flagLogFormat)

	s := install.Status()

	fmt.Printf("Platform:   %s\n", s.Platform)
	fmt.Printf("Binary:     %s\n", valueOrNA(s.BinaryPath))
	fmt.Printf("Config:     %s\n", s.ConfigPath)
	fmt.Printf("Installed:  %s\n", boolStatus(s.Installed))
	fmt.Printf("Running:    %s\n", boolStatus(s.Running))

	// Show config summary if present
	if s.Installed {
		cfg, err := config.Load(install.DefaultConfigFile)
		if err == nil {
			fmt.Println()
			fmt.Println("Configuration:")
			fmt.Printf("  Backend:  %s\n", maskEnd(cfg.BackendURL, 40))
			fmt.Printf("  Token:    %s\n", maskToken(cfg.BackendToken))
			fmt.Printf("  Listen:   %s\n", cfg.ListenAddr)
			fmt.Printf("  Replays:  %s\n", cfg.ReplayDir)
			if cfg.SigningKey != "" {
				fmt.Printf("  Signing:  %s\n", maskToken(cfg.SigningKey))
			} else {
				fmt.Printf("  Signing:  disabled\n")
			}
		}
	}

	// Show version
	fmt.Printf("\nVersion:    %s\n", rootCmd.Version)

	// Exit code 1 if not running (useful for scripts)
	if !s.Running {
		os.Exit(1)
	}
	return nil
}

func boolStatus(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func valueOrNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func maskEnd(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
