package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caresearch/medrank/configs"
	"github.com/caresearch/medrank/internal/config"
	"github.com/caresearch/medrank/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user/global configuration file.

User configuration holds machine-level settings that apply to every
project on this machine: LLM host and model, semantic provider,
telemetry and logging. Project settings (corpus path, ranking variant,
benchmark defaults) live in .medrank.yaml at the project root and win
over this file.

Configuration precedence (lowest to highest):
  1. Compiled defaults
  2. User config (~/.config/medrank/config.yaml)
  3. Project config (.medrank.yaml)
  4. Environment variables (MEDRANK_*, CANDIDATE_POOL_STRATEGY,
     WORKERS, TRIAL_TIMEOUT, STUDY_TIMEOUT, LLM_MODEL)`,
		Example: `  # Create user config from template
  medrank config init

  # Show effective configuration (merged from all sources)
  medrank config show

  # Validate the effective configuration
  medrank config validate`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Long: `Create the user configuration file from the embedded template.

The file is created at ~/.config/medrank/config.yaml (or under
$XDG_CONFIG_HOME when set).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the effective configuration merged from defaults, user config, project config and environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml, json")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd)
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	if config.UserConfigExists() && !force {
		out.Warningf("Config already exists: %s", configPath)
		out.Detail("Use --force to overwrite")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	out.Successf("Created %s", configPath)
	out.Detail("Edit it to point llm.host at your model server")
	return nil
}

func runConfigShow(cmd *cobra.Command, format string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if format == "json" {
		return out.JSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	out.Detail(fmt.Sprintf("# effective configuration (project: %s)", dir))
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := cfg.ResolveWeights(); err != nil {
		return err
	}
	out.Successf("Configuration is valid (project: %s)", dir)
	return nil
}
