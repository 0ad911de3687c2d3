package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lordievader/matrix-zabbix-bot/internal/bot"
	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/internal/core"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay",
	Long: `Connect to Matrix and every enabled chat platform, answer "!zabbix"
commands in bound rooms and, when hook_server is enabled, accept alerts on
POST /alert.

The process runs until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Overrides{}, true)
		if err != nil {
			return err
		}
		for _, w := range config.Warnings(cfg) {
			logger.WithField("warning", w).Warn("config-warning")
		}

		engine, matrixBot, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{
			"config_file": cfg.Path,
			"prefix":      cfg.Bot.Prefix,
			"platforms":   engine.Platforms(),
			"realms":      len(cfg.Monitoring),
			"hook_server": cfg.HookServer.Enabled,
		}).Info("matrix-zabbix-bot-starting")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runErr := engine.Run(ctx)
		if err := engine.Stop(); err != nil {
			logger.WithError(err).Warn("engine-stop-failed")
		}
		if matrixBot != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := matrixBot.Close(closeCtx); err != nil {
				logger.WithError(err).Warn("matrix-logout-failed")
			}
		}
		if runErr != nil {
			return fmt.Errorf("engine stopped: %w", runErr)
		}
		logger.Info("matrix-zabbix-bot-stopped")
		return nil
	},
}

// buildEngine registers the Matrix transport and every enabled platform
func buildEngine(cfg *config.Config) (*core.Engine, *bot.MatrixBot, error) {
	engine := core.NewEngine(cfg)

	var matrixBot *bot.MatrixBot
	if cfg.Matrix.Enabled() {
		matrixBot = bot.MatrixFromConfig(cfg.Matrix)
		engine.RegisterBotAdapter(matrixBot)
	}
	for _, name := range cfg.EnabledBots() {
		adapter, err := bot.NewPlatformBot(name, cfg.Bots[name])
		if err != nil {
			return nil, nil, fmt.Errorf("bot %s: %w", name, err)
		}
		engine.RegisterBotAdapter(adapter)
		logger.WithField("platform", name).Info("bot-adapter-registered")
	}
	return engine, matrixBot, nil
}
