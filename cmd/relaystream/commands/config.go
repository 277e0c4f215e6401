package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/marmos91/relaystream/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate the configuration",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the relaystream configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  relaystream config validate
  relaystream config validate --config /etc/relaystream/config.yaml`,
	RunE: runConfigValidate,
}

var schemaOutput string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schema for configuration",
	Long: `Generate a JSON schema for the relaystream configuration file, for IDE
completion and validation.

Examples:
  relaystream config schema
  relaystream config schema --output config.schema.json`,
	RunE: runSchema,
}

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open configuration in editor",
	Long: `Open the configuration file in $EDITOR (or $VISUAL, falling back to vi).
A running server picks up logging level changes on save.`,
	RunE: runConfigEdit,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "Output file (default: stdout)")

	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(schemaCmd)
	configCmd.AddCommand(editCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	var warnings []string
	if !cfg.Admin.Enabled {
		warnings = append(warnings, "admin API disabled - /api/v1 will not be mounted")
	}
	if cfg.Upstream.Type == "memory" && cfg.Upstream.Memory.Dir == "" {
		warnings = append(warnings, "memory upstream has no directory - every link will return 404")
	}
	if cfg.Cache.Type == "memory" {
		warnings = append(warnings, "memory cache - cached chunks are lost on restart")
	}
	if wait := cfg.Stream.MaxWorkerWait(); wait < cfg.Pool.Cooldown {
		warnings = append(warnings, fmt.Sprintf("stream waits at most %s for a worker but pool.cooldown is %s - requests fail while every worker cools down", wait, cfg.Pool.Cooldown))
	}
	if cfg.Server.PublicURL == "" {
		warnings = append(warnings, "server.public_url not set - /details and /play derive URLs from the Host header")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", getConfigSource(GetConfigFile()))
	_, _ = fmt.Fprintln(out, "Validation: OK")
	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "relaystream configuration"
	schema.Description = "Configuration schema for the relaystream server"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if schemaOutput != "" {
		if err := os.WriteFile(schemaOutput, schemaJSON, 0644); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
		return nil
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	if !fileExists(configPath) {
		return fmt.Errorf("configuration file not found: %s\n\n"+
			"Create it first with:\n"+
			"  relaystream init --config %s",
			configPath, configPath)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	if _, err := config.Load(configPath); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: edited configuration is invalid: %v\n", err)
	}
	return nil
}
