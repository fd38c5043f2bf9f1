package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/fabricarea/internal/config"
)

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and generate configuration files",
	// help-only commands work even with a broken config file
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a configuration file with the default settings",
	Long: `Write a configuration file with every setting at its default value.

Examples:
  fabricarea config init
  fabricarea config init /etc/fabricarea/fabricarea.yaml --force`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			target = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(target); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", target)
		}
		if err := config.GenerateDefaultConfigFile(target); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", target)
		return err
	},
}

var configShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Print the effective configuration",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := GetConfigLoader()
		cfg, err := loader.LoadWithoutValidation(cfgFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if used := loader.ConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(out, "# loaded from %s\n", used)
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if _, err := out.Write(b); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		return nil
	},
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List the directories searched for a configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range config.GetConfigSearchPaths() {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathsCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}
