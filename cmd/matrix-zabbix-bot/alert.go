package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/lordievader/matrix-zabbix-bot/internal/bot"
	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/internal/core"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var alertFlags config.Overrides

var alertCmd = &cobra.Command{
	Use:   "alert [room] message...",
	Short: "Colorize a message and send it to a Matrix room",
	Long: `Send one alert to Matrix, colorized by its severity prefix. This is the
command to configure as a Zabbix media type script.

The first argument is taken as the room when it looks like a room id or
alias (starts with "!" or "#"). Flags override the config file, and when
the file does not exist the flags alone are used as long as they name a
room, a user and a password.

Examples:
  matrix-zabbix-bot alert '!ops' 'High: database down'
  matrix-zabbix-bot alert -u zabbix -p secret --homeserver matrix.example.com \
      --room '!ops' 'Warning: disk 90% full'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, message := splitAlertArgs(args)
		overrides := alertFlags
		if room != "" {
			overrides.Room = room
		}
		if message == "" {
			return fmt.Errorf("message is required")
		}

		cfg, err := loadConfig(overrides, false)
		if err != nil {
			return err
		}
		if !cfg.Matrix.Enabled() {
			return fmt.Errorf("matrix homeserver is not configured")
		}
		if cfg.Matrix.Room == "" {
			return fmt.Errorf("no room given and no default room configured")
		}

		body := core.AlertBody(cfg, message)
		return sendAlert(cmd.Context(), cfg, body)
	},
}

// splitAlertArgs separates an optional leading room from the message words
func splitAlertArgs(args []string) (room, message string) {
	if len(args) > 1 && (strings.HasPrefix(args[0], "!") || strings.HasPrefix(args[0], "#")) {
		room, args = args[0], args[1:]
	}
	return room, strings.TrimSpace(strings.Join(args, " "))
}

func sendAlert(ctx context.Context, cfg *config.Config, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultQueryTimeout)
	defer cancel()

	m := bot.MatrixFromConfig(cfg.Matrix)
	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := m.Close(context.Background()); err != nil {
			logger.WithError(err).Warn("matrix-logout-failed")
		}
	}()

	if err := m.JoinRoom(ctx, cfg.Matrix.Room); err != nil {
		return err
	}
	if err := m.SendMessage(ctx, cfg.Matrix.Room, bot.NewOutgoingMessage(body, cfg.Matrix.MessageType)); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"room":         cfg.Matrix.Room,
		"message_type": cfg.Matrix.MessageType,
	}).Info("alert-sent")
	return nil
}

func addMatrixFlags(cmd *cobra.Command, o *config.Overrides) {
	cmd.Flags().StringVarP(&o.Username, "user", "u", "", "Matrix username (overrides the config)")
	cmd.Flags().StringVarP(&o.Password, "password", "p", "", "Matrix password (overrides the config)")
	cmd.Flags().StringVar(&o.Token, "token", "", "Matrix access token (overrides the config)")
	cmd.Flags().StringVar(&o.Homeserver, "homeserver", "", "Matrix homeserver (overrides the config)")
	cmd.Flags().IntVar(&o.Port, "port", 0, "Matrix homeserver port (overrides the config)")
	cmd.Flags().StringVar(&o.Room, "room", "", "Matrix room (overrides the config)")
}

func init() {
	addMatrixFlags(alertCmd, &alertFlags)
	alertCmd.Flags().StringVarP(&alertFlags.MessageType, "type", "t", "", "Message type, m.text or m.notice")
}
