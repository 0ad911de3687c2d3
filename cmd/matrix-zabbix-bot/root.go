package main

import (
	"os"

	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// DefaultConfigFile is read when --config is not given
const DefaultConfigFile = "/etc/matrix-zabbix-bot.yaml"

var (
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "matrix-zabbix-bot",
	Short: "matrix-zabbix-bot relays Zabbix monitoring into Matrix rooms",
	Long: `matrix-zabbix-bot is a chat relay between Matrix (and optionally Telegram,
Discord, Feishu or DingTalk) and one or more Zabbix servers.

Rooms are bound to a Zabbix realm. "!zabbix" commands in a bound room list
triggers and hosts or acknowledge a trigger. Alerts are colorized by
severity and can be pushed from Zabbix action scripts.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logger.SetLevel(logrus.DebugLevel)
		}
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config file with overrides and initializes logging
// from it. Without requireFile a complete set of overrides is enough.
func loadConfig(overrides config.Overrides, requireFile bool) (*config.Config, error) {
	cfg, err := config.Resolve(configFile, overrides, requireFile)
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	logConfig := logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.Logging.File,
		MaxSize:      cfg.Logging.MaxSize,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAge,
		Compress:     cfg.Logging.CompressEnabled(),
		EnableStdout: cfg.Logging.StdoutEnabled(),
	}
	if debug {
		logConfig.Level = "debug"
	}
	if err := logger.InitLogger(logConfig); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"config_file": cfg.Path,
		"log_level":   logConfig.Level,
		"log_file":    logConfig.File,
	}).Debug("logger-initialized")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", DefaultConfigFile, "Configuration file path (.yaml, or .conf for the INI layout)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(alertCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(triggersCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
