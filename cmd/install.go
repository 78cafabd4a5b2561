package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/tb-audit/internal/install"
	"github.com/tinkerbelle-io/tb-audit/internal/logging"
	"github.com/tinkerbelle-io/tb-audit/internal/signing"
)

var (
	flagInstallListen     string
	flagInstallSigningKey string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install tb-audit as a system service",
	Long: `Install tb-audit as a systemd service (Linux) or launchd daemon (macOS).

This command:
  1. Writes a config file to /etc/tb-audit/config.yaml
  2. Creates the replay buffer directory
  3. Creates and enables a system service
  4. Starts the service immediately

The service runs 'tb-audit daemon' against the configured backend.`,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&flagInstallListen, "listen", ":8815", "Gateway listen address")
	installCmd.Flags().StringVar(&flagInstallSigningKey, "signing-key", "", "Ed25519 public key for session.open verification")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	logging.Setup(flagLogLevel, flagLogFormat)

	if flagToken == "" {
		return fmt.Errorf("--token is required")
	}
	if flagBackendURL == "" {
		return fmt.Errorf("--backend-url is required")
	}
	if flagInstallSigningKey != "" {
		if _, err := signing.ParsePublicKey(flagInstallSigningKey); err != nil {
			return fmt.Errorf("signing key: %w", err)
		}
	}

	fmt.Println("Installing tb-audit...")

	cfg := install.InstallConfig{
		BackendURL: flagBackendURL,
		Token:      flagToken,
		ListenAddr: flagInstallListen,
		SigningKey: flagInstallSigningKey,
	}

	if err := install.Install(cfg); err != nil {
		return fmt.Errorf("install failed: %w", err)
	}

	fmt.Println("tb-audit installed and running.")
	fmt.Printf("  Config: %s\n", install.DefaultConfigFile)
	fmt.Printf("  Listen: %s\n", flagInstallListen)
	if flagInstallSigningKey == "" {
		fmt.Println("  Warning: no signing key, session.open signatures will not be verified")
	}
	fmt.Println("\nCheck status with: tb-audit status")
	return nil
}
