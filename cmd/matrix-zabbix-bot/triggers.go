package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/internal/core"
	"github.com/lordievader/matrix-zabbix-bot/internal/format"
	"github.com/spf13/cobra"
)

var (
	triggersRealm string
	triggersAll   bool
	triggersAcked bool
	triggersHosts bool
)

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "Print the triggers of a realm",
	Long: `Query a Zabbix realm and print the report a "!zabbix" command would send,
as plain text. Without flags the unacknowledged triggers are listed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if triggersAll && triggersAcked {
			return fmt.Errorf("--all and --acked are mutually exclusive")
		}

		cfg, err := loadConfig(config.Overrides{}, true)
		if err != nil {
			return err
		}
		name, realm, err := pickRealm(cfg, triggersRealm)
		if err != nil {
			return err
		}

		mon, err := core.ZabbixMonitor(realm)
		if err != nil {
			return fmt.Errorf("failed to create monitor for realm %s: %w", name, err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.QueryTimeout())
		defer cancel()

		d := core.NewDispatcher(cfg.Bot.Prefix, cfg.TriggerColors())
		reply, err := d.Dispatch(ctx, mon, name, []string{triggersCommand()})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), format.ToPlainText(reply.Body))
		return nil
	},
}

func triggersCommand() string {
	switch {
	case triggersHosts:
		return core.CommandHosts
	case triggersAll:
		return core.CommandAll
	case triggersAcked:
		return core.CommandAcked
	default:
		return core.CommandUnacked
	}
}

// pickRealm returns the named realm, or the only one when no name is given
func pickRealm(cfg *config.Config, name string) (string, config.RealmConfig, error) {
	if name != "" {
		realm, ok := cfg.Monitoring[name]
		if !ok {
			return "", config.RealmConfig{}, fmt.Errorf("%w: %s", config.ErrUnknownRealm, name)
		}
		return name, realm, nil
	}

	names := make([]string, 0, len(cfg.Monitoring))
	for n := range cfg.Monitoring {
		names = append(names, n)
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		return "", config.RealmConfig{}, fmt.Errorf("no monitoring realms configured")
	case 1:
		return names[0], cfg.Monitoring[names[0]], nil
	default:
		return "", config.RealmConfig{}, fmt.Errorf("several realms configured, pick one with --realm: %s", strings.Join(names, ", "))
	}
}

func init() {
	triggersCmd.Flags().StringVar(&triggersRealm, "realm", "", "Realm to query (default: the only configured realm)")
	triggersCmd.Flags().BoolVar(&triggersAll, "all", false, "List all triggers in problem state")
	triggersCmd.Flags().BoolVar(&triggersAcked, "acked", false, "List acknowledged triggers only")
	triggersCmd.Flags().BoolVar(&triggersHosts, "hosts", false, "List hosts instead of triggers")
}
