package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/relaystream/internal/cli/prompt"
	"github.com/marmos91/relaystream/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample relaystream configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/relaystream/config.yaml.
Use --config to specify a custom path. A random admin JWT secret is generated.

Examples:
  # Initialize with default location
  relaystream init

  # Initialize with custom path
  relaystream init --config /etc/relaystream/config.yaml

  # Overwrite an existing config without asking
  relaystream init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if !force && fileExists(configPath) {
		ok, err := prompt.Confirm(fmt.Sprintf("%s already exists. Overwrite", configPath), false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		force = true
	}

	if err := config.InitConfigToPath(configPath, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Point upstream.memory.dir at a <container>/<item>/<file> tree, or configure S3 workers")
	_, _ = fmt.Fprintln(out, "  2. Start the server with: relaystream start")
	_, _ = fmt.Fprintln(out, "  3. Mint an admin token with: relaystream token")
	_, _ = fmt.Fprintln(out, "\nSecurity note:")
	_, _ = fmt.Fprintln(out, "  A random JWT secret has been written to the file. In production prefer:")
	_, _ = fmt.Fprintln(out, "    export RELAYSTREAM_ADMIN_JWT_SECRET=$(openssl rand -hex 32)")
	return nil
}
