package zabbix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// ErrHostGroupNotFound is returned by ItemValues for an unknown host group
var ErrHostGroupNotFound = errors.New("host group not found")

// acknowledgeAction is event.acknowledge action 2 (acknowledge) | 4 (add message)
const acknowledgeAction = 6

// Monitor runs the bot's queries against one Zabbix server. It logs in on
// first use and reuses the session for the rest of its lifetime.
type Monitor struct {
	client *Client
}

// NewMonitor wraps client
func NewMonitor(client *Client) *Monitor {
	return &Monitor{client: client}
}

func (m *Monitor) ensureSession(ctx context.Context) error {
	if m.client.Authenticated() {
		return nil
	}
	return m.client.Login(ctx)
}

// Triggers returns every monitored, non-dependent trigger currently in problem state
func (m *Monitor) Triggers(ctx context.Context) ([]TriggerRecord, error) {
	raw, err := m.fetchTriggers(ctx, false)
	if err != nil {
		return nil, err
	}

	records := make([]TriggerRecord, 0, len(raw))
	for _, t := range raw {
		records = append(records, triggerRecord(t))
	}
	return records, nil
}

// UnackedTriggers returns the triggers whose last event has no acknowledgement
func (m *Monitor) UnackedTriggers(ctx context.Context) ([]TriggerRecord, error) {
	raw, err := m.fetchTriggers(ctx, true)
	if err != nil {
		return nil, err
	}

	records := make([]TriggerRecord, 0, len(raw))
	for _, t := range raw {
		// The server filter already asks for problems only; keep the check.
		if t.Value != "1" {
			continue
		}
		records = append(records, triggerRecord(t))
	}
	return records, nil
}

// AckedTriggers returns Triggers minus UnackedTriggers, compared by record
func (m *Monitor) AckedTriggers(ctx context.Context) ([]TriggerRecord, error) {
	all, err := m.Triggers(ctx)
	if err != nil {
		return nil, err
	}
	unacked, err := m.UnackedTriggers(ctx)
	if err != nil {
		return nil, err
	}
	return Difference(all, unacked), nil
}

// Difference returns the records of all that do not appear in minus
func Difference(all, minus []TriggerRecord) []TriggerRecord {
	skip := make(map[TriggerRecord]struct{}, len(minus))
	for _, t := range minus {
		skip[t] = struct{}{}
	}

	out := make([]TriggerRecord, 0, len(all))
	for _, t := range all {
		if _, found := skip[t]; !found {
			out = append(out, t)
		}
	}
	return out
}

func (m *Monitor) fetchTriggers(ctx context.Context, unackedOnly bool) ([]apiTrigger, error) {
	if err := m.ensureSession(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"only_true":         1,
		"skipDependent":     1,
		"monitored":         1,
		"active":            1,
		"output":            "extend",
		"expandDescription": 1,
		"selectHosts":       []string{"hostid", "host", "name"},
		"selectItems":       []string{"itemid", "hostid", "prevvalue", "lastvalue"},
	}
	if unackedOnly {
		params["withLastEventUnacknowledged"] = 1
	}

	var triggers []apiTrigger
	if err := m.client.Call(ctx, "trigger.get", params, &triggers); err != nil {
		return nil, fmt.Errorf("trigger.get failed: %w", err)
	}
	return triggers, nil
}

func triggerRecord(t apiTrigger) TriggerRecord {
	var hostname, prevValue string
	if len(t.Hosts) > 0 {
		hostname = t.Hosts[0].displayName()
	}
	if len(t.Items) > 0 {
		prevValue = t.Items[0].PrevValue
	}

	rec := TriggerRecord{
		TriggerID:   t.TriggerID,
		Hostname:    hostname,
		Description: SetDescriptionPlaceholders(t.Description, hostname),
		Priority:    ParsePriority(t.Priority),
		PrevValue:   prevValue,
	}

	logger.WithFields(logrus.Fields{
		"trigger_id": rec.TriggerID,
		"host":       rec.Hostname,
		"prevvalue":  rec.PrevValue,
		"desc":       rec.Description,
	}).Debug("trigger-normalized")
	return rec
}

// Hosts returns the monitored hosts
func (m *Monitor) Hosts(ctx context.Context) ([]HostRecord, error) {
	if err := m.ensureSession(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"monitored_hosts": true,
		"output":          []string{"hostid", "host", "name", "description", "status"},
	}

	var hosts []apiHost
	if err := m.client.Call(ctx, "host.get", params, &hosts); err != nil {
		return nil, fmt.Errorf("host.get failed: %w", err)
	}

	records := make([]HostRecord, 0, len(hosts))
	for _, h := range hosts {
		records = append(records, HostRecord{
			HostID:      h.HostID,
			Hostname:    h.displayName(),
			Description: h.Description,
			Status:      hostStatus(h.Status),
		})
	}
	return records, nil
}

// Acknowledge marks the most recent event of triggerID as acknowledged.
// Rejections by the server are reported in the result, not as an error.
func (m *Monitor) Acknowledge(ctx context.Context, triggerID string) (Acknowledgement, error) {
	ack := Acknowledgement{TriggerID: triggerID}

	if err := m.ensureSession(ctx); err != nil {
		return ack, err
	}

	var events []apiEvent
	err := m.client.Call(ctx, "event.get", map[string]interface{}{
		"objectids": triggerID,
		"output":    []string{"eventid", "clock"},
		"sortfield": []string{"eventid"},
		"sortorder": "DESC",
		"limit":     1,
	}, &events)
	if rejected, ok := rejection(err); ok {
		ack.Rejected = true
		ack.Result = rejected
		return ack, nil
	}
	if err != nil {
		return ack, fmt.Errorf("event.get failed: %w", err)
	}
	if len(events) == 0 {
		ack.Rejected = true
		ack.Result = fmt.Sprintf("no events found for trigger %s", triggerID)
		return ack, nil
	}
	ack.EventID = events[0].EventID

	var result struct {
		EventIDs []json.RawMessage `json:"eventids"`
	}
	err = m.client.Call(ctx, "event.acknowledge", map[string]interface{}{
		"eventids": ack.EventID,
		"action":   acknowledgeAction,
		"message":  constants.AckMessage,
	}, &result)
	if rejected, ok := rejection(err); ok {
		ack.Rejected = true
		ack.Result = rejected
		return ack, nil
	}
	if err != nil {
		return ack, fmt.Errorf("event.acknowledge failed: %w", err)
	}

	ids := make([]string, 0, len(result.EventIDs))
	for _, raw := range result.EventIDs {
		ids = append(ids, strings.Trim(string(raw), `"`))
	}
	ack.Result = "eventids: " + strings.Join(ids, ", ")

	logger.WithFields(logrus.Fields{
		"trigger_id": triggerID,
		"event_id":   ack.EventID,
	}).Info("trigger-acknowledged")
	return ack, nil
}

func rejection(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error(), true
	}
	return "", false
}

// ItemValues resolves group to its member hosts and returns, per host, the
// latest value of each key. Hosts without any matching item are omitted.
func (m *Monitor) ItemValues(ctx context.Context, group string, keys []string) ([]HostItemValues, error) {
	if err := m.ensureSession(ctx); err != nil {
		return nil, err
	}

	var groups []apiHostGroup
	err := m.client.Call(ctx, "hostgroup.get", map[string]interface{}{
		"output": []string{"groupid", "name"},
		"filter": map[string]interface{}{"name": []string{group}},
	}, &groups)
	if err != nil {
		return nil, fmt.Errorf("hostgroup.get failed: %w", err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrHostGroupNotFound, group)
	}

	var hosts []apiHost
	err = m.client.Call(ctx, "host.get", map[string]interface{}{
		"groupids": groups[0].GroupID,
		"output":   []string{"hostid", "host", "name"},
	}, &hosts)
	if err != nil {
		return nil, fmt.Errorf("host.get failed: %w", err)
	}
	if len(hosts) == 0 {
		return nil, nil
	}

	hostIDs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		hostIDs = append(hostIDs, h.HostID)
	}

	var items []apiItem
	err = m.client.Call(ctx, "item.get", map[string]interface{}{
		"hostids": hostIDs,
		"output":  []string{"itemid", "hostid", "key_", "lastvalue"},
		"filter":  map[string]interface{}{"key_": keys},
	}, &items)
	if err != nil {
		return nil, fmt.Errorf("item.get failed: %w", err)
	}

	byHost := make(map[string]map[string]string)
	for _, it := range items {
		values, ok := byHost[it.HostID]
		if !ok {
			values = make(map[string]string)
			byHost[it.HostID] = values
		}
		if _, seen := values[it.Key]; !seen {
			values[it.Key] = it.LastValue
		}
	}

	out := make([]HostItemValues, 0, len(hosts))
	for _, h := range hosts {
		values, ok := byHost[h.HostID]
		if !ok {
			continue
		}
		out = append(out, HostItemValues{Host: h.displayName(), Values: values})
	}
	return out, nil
}
