package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage ScreenShotSender configuration",
	Long:  `View and manage ScreenShotSender configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration, including overrides from .env,
the environment and command line flags.`,
	Example: `  # Show configuration as YAML (default)
  screenshotsender config show

  # Show configuration as JSON
  screenshotsender config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save it to the config file.

Supported keys: identity, collector.base_url, api.port, log_level`,
	Example: `  # Set the application identity
  screenshotsender config set identity com.example.app

  # Point at a local collector
  screenshotsender config set collector.base_url http://localhost:8000/api/`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a configuration value by its dotted YAML key.`,
	Example: `  # Get the collector base URL
  screenshotsender config get collector.base_url

  # Get the breaker settings
  screenshotsender config get resilience`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	return encode(configMgr.Get(), formatFlag)
}

func encode(v interface{}, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Only the file is edited; env and flag overrides must not be persisted
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch key {
	case "identity":
		configMgr.SetIdentity(value)
	case "collector.base_url", "base_url":
		configMgr.SetBaseURL(value)
	case "api.port", "port":
		port, err := config.ParsePort(value)
		if err != nil {
			return err
		}
		configMgr.SetPort(port)
	case "log_level":
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[value] {
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		configMgr.SetLogLevel(value)
	default:
		return fmt.Errorf("unsupported key: %s (use: identity, collector.base_url, api.port, log_level)", key)
	}

	if err := configMgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	value, ok := configMgr.Lookup(key)
	if !ok {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		return encode(v, "yaml")
	default:
		fmt.Println(v)
		return nil
	}
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println(configMgr.GetConfigPath())
	return nil
}
