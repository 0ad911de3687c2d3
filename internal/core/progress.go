package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/format"
	"github.com/lordievader/matrix-zabbix-bot/internal/zabbix"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"golang.org/x/net/html"
)

// Progress command arguments
const (
	ProgressSummary  = "summary"
	ProgressLeft     = "left"
	ProgressForecast = "forecast"
)

// ProgressOptions configures a ProgressDispatcher
type ProgressOptions struct {
	Command     string
	HostGroup   string
	LeftKey     string
	ForecastKey string
	Colors      *format.ColorTable
	Now         func() time.Time // defaults to time.Now
}

// ProgressDispatcher reports the work queue state of a group of cluster
// managers from two Zabbix items: chunks left and a forecast in seconds.
type ProgressDispatcher struct {
	opts ProgressOptions
}

// NewProgressDispatcher creates a progress dispatcher
func NewProgressDispatcher(opts ProgressOptions) *ProgressDispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ProgressDispatcher{opts: opts}
}

// ParseProgress maps the arguments after the command onto a report name
func ParseProgress(args []string) string {
	switch len(args) {
	case 0:
		return ProgressSummary
	case 1:
		switch args[0] {
		case ProgressLeft, ProgressForecast:
			return args[0]
		}
	}
	return CommandHelp
}

// Dispatch runs the progress report named by args against mon
func (p *ProgressDispatcher) Dispatch(ctx context.Context, mon Monitor, realm string, args []string) (Reply, error) {
	command := ParseProgress(args)
	if command == CommandHelp {
		return Reply{Body: p.Help()}, nil
	}

	var keys []string
	switch command {
	case ProgressLeft:
		keys = []string{p.opts.LeftKey}
	case ProgressForecast:
		keys = []string{p.opts.ForecastKey}
	default:
		keys = []string{p.opts.LeftKey, p.opts.ForecastKey}
	}

	hosts, err := mon.ItemValues(ctx, p.opts.HostGroup, keys)
	if err != nil {
		return Reply{}, &CommandError{Command: p.opts.Command + " " + command, Realm: realm, Err: err}
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Host < hosts[j].Host })

	if len(hosts) == 0 {
		return Reply{Body: constants.NoResultsMessage}, nil
	}

	now := p.opts.Now()
	lines := make([]string, 0, len(hosts))
	for _, h := range hosts {
		switch command {
		case ProgressLeft:
			lines = append(lines, html.EscapeString(
				fmt.Sprintf("%-10s: %5s chunks left", h.Host, h.Values[p.opts.LeftKey])))
		case ProgressForecast:
			lines = append(lines, html.EscapeString(
				fmt.Sprintf("%s: %s", h.Host, ForecastText(h.Values[p.opts.ForecastKey], now))))
		default:
			lines = append(lines, p.opts.Colors.Colorize(summaryLine(h, p.opts, now)))
		}
	}
	return Reply{Body: strings.Join(lines, constants.LineSeparator)}, nil
}

func summaryLine(h zabbix.HostItemValues, opts ProgressOptions, now time.Time) string {
	left := h.Values[opts.LeftKey]
	if left == "0" {
		return h.Host + ": done"
	}
	return fmt.Sprintf("%s: %s chunks left, %s", h.Host, left, ForecastText(h.Values[opts.ForecastKey], now))
}

// ForecastText renders a forecast item value (seconds until the queue is
// empty) relative to now
func ForecastText(value string, now time.Time) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "no forecast available"
	}
	seconds := int64(f)
	if seconds == constants.ForecastNever {
		return "done in a long time"
	}

	done := time.Unix(now.Unix()+seconds, 0).UTC()
	warning := ""
	if done.Hour() > constants.ForecastLateHour {
		warning = "WARNING "
	}
	return fmt.Sprintf("%sdone in about %s (%s UTC)",
		warning, humanDuration(seconds), done.Format("2006-01-02 15:04:05"))
}

// humanDuration renders seconds as "[N day[s], ]H:MM:SS" with floored days,
// so negative values read "-1 day, 23:59:55"
func humanDuration(seconds int64) string {
	days := seconds / 86400
	rem := seconds % 86400
	if rem < 0 {
		days--
		rem += 86400
	}
	clock := fmt.Sprintf("%d:%02d:%02d", rem/3600, rem%3600/60, rem%60)
	switch days {
	case 0:
		return clock
	case 1, -1:
		return fmt.Sprintf("%d day, %s", days, clock)
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}

// Help returns the usage text of the progress command
func (p *ProgressDispatcher) Help() string {
	lines := []string{
		"Usage: " + html.EscapeString(p.opts.Command) + " {arguments}",
		"",
		"This command returns current statistics for dnsjedi measurements.",
		"Currently supported arguments:",
		"",
		"left: queries the clustermanagers how many chunks are left",
		"forecast: queries the prediction on when it is done",
		"",
		"Without any arguments this command gives a summary of the clustermanagers.",
	}
	return strings.Join(lines, constants.LineSeparator)
}
