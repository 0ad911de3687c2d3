package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/lordievader/matrix-zabbix-bot/internal/format"
	"github.com/lordievader/matrix-zabbix-bot/internal/zabbix"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"golang.org/x/net/html"
)

// Monitor is the subset of the monitoring backend the commands use.
// *zabbix.Monitor implements it.
type Monitor interface {
	Triggers(ctx context.Context) ([]zabbix.TriggerRecord, error)
	UnackedTriggers(ctx context.Context) ([]zabbix.TriggerRecord, error)
	AckedTriggers(ctx context.Context) ([]zabbix.TriggerRecord, error)
	Hosts(ctx context.Context) ([]zabbix.HostRecord, error)
	Acknowledge(ctx context.Context, triggerID string) (zabbix.Acknowledgement, error)
	ItemValues(ctx context.Context, group string, keys []string) ([]zabbix.HostItemValues, error)
}

// Reply is the HTML body sent back to the room
type Reply struct {
	Body string
}

// CommandError is a failed monitoring query
type CommandError struct {
	Command string
	Realm   string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed for realm %s: %v", e.Command, e.Realm, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Command names
const (
	CommandHelp    = "help"
	CommandAll     = "all"
	CommandAcked   = "acked"
	CommandUnacked = "unacked"
	CommandHosts   = "hosts"
	CommandAck     = "ack"
)

// Dispatcher turns !zabbix arguments into a report. It holds no per
// message state and is safe for concurrent use.
type Dispatcher struct {
	prefix string
	colors *format.ColorTable
}

// NewDispatcher creates a dispatcher answering to prefix
func NewDispatcher(prefix string, colors *format.ColorTable) *Dispatcher {
	return &Dispatcher{prefix: prefix, colors: colors}
}

// Parse maps the arguments after the prefix onto a command. The second
// value is the trigger id of an ack.
func Parse(args []string) (string, string) {
	switch len(args) {
	case 0:
		return CommandUnacked, ""
	case 1:
		switch args[0] {
		case CommandAll, CommandAcked, CommandUnacked, CommandHosts:
			return args[0], ""
		case CommandAck:
			return CommandAck, ""
		}
	case 2:
		if args[0] == CommandAck {
			return CommandAck, args[1]
		}
	}
	return CommandHelp, ""
}

// Dispatch runs the command named by args against mon
func (d *Dispatcher) Dispatch(ctx context.Context, mon Monitor, realm string, args []string) (Reply, error) {
	command, triggerID := Parse(args)

	wrap := func(err error) error {
		return &CommandError{Command: command, Realm: realm, Err: err}
	}

	switch command {
	case CommandAll, CommandAcked, CommandUnacked:
		var (
			triggers []zabbix.TriggerRecord
			err      error
		)
		switch command {
		case CommandAll:
			triggers, err = mon.Triggers(ctx)
		case CommandAcked:
			triggers, err = mon.AckedTriggers(ctx)
		default:
			triggers, err = mon.UnackedTriggers(ctx)
		}
		if err != nil {
			return Reply{}, wrap(err)
		}
		return Reply{Body: format.TriggerReport(d.colors, triggers)}, nil

	case CommandHosts:
		hosts, err := mon.Hosts(ctx)
		if err != nil {
			return Reply{}, wrap(err)
		}
		return Reply{Body: format.HostReport(hosts)}, nil

	case CommandAck:
		if triggerID == "" {
			return Reply{Body: html.EscapeString("Usage: " + d.prefix + " ack <trigger_id>")}, nil
		}
		ack, err := mon.Acknowledge(ctx, triggerID)
		if err != nil {
			return Reply{}, wrap(err)
		}
		return Reply{Body: html.EscapeString(ackText(ack))}, nil
	}

	return Reply{Body: d.Help()}, nil
}

func ackText(ack zabbix.Acknowledgement) string {
	if ack.Rejected {
		return fmt.Sprintf("Trigger %s not acknowledged: %s", ack.TriggerID, ack.Result)
	}
	return fmt.Sprintf("Trigger %s acknowledged. %s", ack.TriggerID, ack.Result)
}

// Help returns the usage text of the trigger command
func (d *Dispatcher) Help() string {
	lines := []string{
		"Usage: " + html.EscapeString(d.prefix) + " {arguments}",
		"",
		"This command returns info about Zabbix (triggers mostly).",
		"Currently supported arguments:",
		"",
		"help: shows this message",
		"all: retrieves all triggers",
		"acked: retrieves acked triggers",
		"unacked: retrieves unacked triggers",
		"hosts: retrieves the monitored hosts",
		"ack $trigger_id: acknowledges the trigger with the given id (the number between brackets)",
		"",
		"Without any arguments this command gives unacknowledged triggers from the configured Zabbix server.",
	}
	return strings.Join(lines, constants.LineSeparator)
}
