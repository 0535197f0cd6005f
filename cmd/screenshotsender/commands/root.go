package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	displayName string
	rootCmd = &cobra.Command{
		Use:   "screenshotsender",
		Short: "ScreenShotSender - floating screenshot button for live review flows",
		Long: `ScreenShotSender shows a draggable floating button on top of your desktop.
Tapping it captures the application window underneath and uploads the
screenshot to the active review flow of the configured collector.

Features:
  • Floating, draggable capture button (X11)
  • Single-flight uploads with success/failure feedback
  • Circuit breaker around the collector
  • Local control API with a websocket status stream
  • Prometheus metrics`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/screenshotsender/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", true, "human readable log output")
	rootCmd.PersistentFlags().Int("port", 0, "control API port (default is 8765)")
	rootCmd.PersistentFlags().String("identity", "", "application identity used to resolve the active flow")
	rootCmd.PersistentFlags().String("base-url", "", "collector base URL")
	rootCmd.PersistentFlags().StringVar(&displayName, "display", "", "X display to use (default is $DISPLAY)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.BindPFlag("api.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("identity", rootCmd.PersistentFlags().Lookup("identity"))
	viper.BindPFlag("collector.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix("SCREENSHOTSENDER")
	viper.AutomaticEnv()
}

// loadConfig opens the config file and layers .env, environment and flag
// overrides on top, in that order. The logger is configured from the result.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	configMgr.ApplyEnv()

	if v := viper.GetString("log_level"); v != "" {
		configMgr.SetLogLevel(v)
	}
	if v := viper.GetInt("api.port"); v > 0 {
		configMgr.SetPort(v)
	}
	if v := viper.GetString("identity"); v != "" {
		configMgr.SetIdentity(v)
	}
	if v := viper.GetString("collector.base_url"); v != "" {
		configMgr.SetBaseURL(v)
	}

	logger.Init(configMgr.Get().LogLevel, viper.GetBool("pretty"))
	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
