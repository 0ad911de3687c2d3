package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lordievader/matrix-zabbix-bot/internal/zabbix"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"golang.org/x/net/html"
)

// TriggerLine renders the plain text line of a trigger
func TriggerLine(t zabbix.TriggerRecord) string {
	return fmt.Sprintf("%s %s %s: %s (%s)",
		t.Priority, t.Hostname, t.Description, t.PrevValue, t.TriggerID)
}

// HostLine renders the plain text line of a host
func HostLine(h zabbix.HostRecord) string {
	return fmt.Sprintf("%s %s status: %s (%s)",
		h.Hostname, h.Description, h.Status, h.HostID)
}

// Report sorts already rendered HTML lines and joins them. An empty set
// yields the placeholder so no blank message is ever sent.
func Report(lines []string) string {
	if len(lines) == 0 {
		return constants.NoResultsMessage
	}
	sorted := append([]string(nil), lines...)
	sort.Strings(sorted)
	return strings.Join(sorted, constants.LineSeparator)
}

// EscapedReport escapes plain text lines, then behaves like Report
func EscapedReport(lines []string) string {
	escaped := make([]string, 0, len(lines))
	for _, l := range lines {
		escaped = append(escaped, html.EscapeString(l))
	}
	return Report(escaped)
}

// ColoredReport sorts plain text lines, colorizes each one with table and
// joins them
func ColoredReport(table *ColorTable, lines []string) string {
	if len(lines) == 0 {
		return constants.NoResultsMessage
	}
	sorted := append([]string(nil), lines...)
	sort.Strings(sorted)

	out := make([]string, 0, len(sorted))
	for _, l := range sorted {
		out = append(out, table.Colorize(l))
	}
	return strings.Join(out, constants.LineSeparator)
}

// TriggerReport renders a colorized, sorted trigger listing
func TriggerReport(table *ColorTable, triggers []zabbix.TriggerRecord) string {
	lines := make([]string, 0, len(triggers))
	for _, t := range triggers {
		lines = append(lines, TriggerLine(t))
	}
	return ColoredReport(table, lines)
}

// HostReport renders a sorted host listing
func HostReport(hosts []zabbix.HostRecord) string {
	lines := make([]string, 0, len(hosts))
	for _, h := range hosts {
		lines = append(lines, HostLine(h))
	}
	return EscapedReport(lines)
}
