package main

import (
	"context"
	"fmt"

	"github.com/lordievader/matrix-zabbix-bot/internal/bot"
	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/spf13/cobra"
)

var tokenFlags config.Overrides

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Log in with the password and print an access token",
	Long: `Log in to Matrix with the configured (or given) password and print the
access token. Put it in the config as matrix.token so the bot does not need
to keep the password around.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(tokenFlags, false)
		if err != nil {
			return err
		}
		if cfg.Matrix.Password == "" {
			return fmt.Errorf("a password is required to obtain a token")
		}

		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultQueryTimeout)
		defer cancel()

		token, err := bot.Token(ctx, bot.MatrixOptions{
			Homeserver: cfg.Matrix.Homeserver,
			Port:       cfg.Matrix.Port,
			Username:   cfg.Matrix.Username,
			Password:   cfg.Matrix.Password,
			DeviceID:   cfg.Matrix.DeviceID,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Authenticated, add the following to your config:")
		fmt.Fprintf(cmd.OutOrStdout(), "  token: %s\n", token)
		return nil
	},
}

func init() {
	addMatrixFlags(tokenCmd, &tokenFlags)
}
