package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running bot",
	Long:  "Query the hook server health endpoint of a running serve process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := hookNotifier().Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("bot is not reachable: %w", err)
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			data, err := json.Marshal(status)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintln(out, "matrix-zabbix-bot status:")
		fmt.Fprintf(out, "  - Status:    %s\n", status.Status)
		fmt.Fprintf(out, "  - Platforms: %s\n", strings.Join(status.Platforms, ", "))
		fmt.Fprintf(out, "  - Realms:    %d\n", status.Realms)
		return nil
	},
}

func init() {
	addHookFlags(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}
