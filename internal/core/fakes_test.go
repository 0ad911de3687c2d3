package core

import (
	"context"
	"sync"
	"testing"

	"github.com/lordievader/matrix-zabbix-bot/internal/bot"
	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/internal/zabbix"
	"github.com/stretchr/testify/require"
)

// fakeMonitor answers monitoring queries from canned data
type fakeMonitor struct {
	mu sync.Mutex

	triggers []zabbix.TriggerRecord
	unacked  []zabbix.TriggerRecord
	acked    []zabbix.TriggerRecord
	hosts    []zabbix.HostRecord
	items    []zabbix.HostItemValues
	err      error
	ack      func(id string) (zabbix.Acknowledgement, error)
	block    bool
	panics   bool

	calls    []string
	itemKeys []string
	group    string
}

func (f *fakeMonitor) record(ctx context.Context, call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.panics {
		panic("monitor exploded")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeMonitor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMonitor) Triggers(ctx context.Context) ([]zabbix.TriggerRecord, error) {
	if err := f.record(ctx, "triggers"); err != nil {
		return nil, err
	}
	return f.triggers, nil
}

func (f *fakeMonitor) UnackedTriggers(ctx context.Context) ([]zabbix.TriggerRecord, error) {
	if err := f.record(ctx, "unacked"); err != nil {
		return nil, err
	}
	return f.unacked, nil
}

func (f *fakeMonitor) AckedTriggers(ctx context.Context) ([]zabbix.TriggerRecord, error) {
	if err := f.record(ctx, "acked"); err != nil {
		return nil, err
	}
	return f.acked, nil
}

func (f *fakeMonitor) Hosts(ctx context.Context) ([]zabbix.HostRecord, error) {
	if err := f.record(ctx, "hosts"); err != nil {
		return nil, err
	}
	return f.hosts, nil
}

func (f *fakeMonitor) Acknowledge(ctx context.Context, triggerID string) (zabbix.Acknowledgement, error) {
	if err := f.record(ctx, "ack "+triggerID); err != nil {
		return zabbix.Acknowledgement{}, err
	}
	if f.ack == nil {
		return zabbix.Acknowledgement{TriggerID: triggerID, Result: "ok"}, nil
	}
	return f.ack(triggerID)
}

func (f *fakeMonitor) ItemValues(ctx context.Context, group string, keys []string) ([]zabbix.HostItemValues, error) {
	f.mu.Lock()
	f.group = group
	f.itemKeys = keys
	f.mu.Unlock()
	if err := f.record(ctx, "items"); err != nil {
		return nil, err
	}
	return f.items, nil
}

// sentMessage is one message captured by fakeBot
type sentMessage struct {
	Channel string
	Msg     bot.OutgoingMessage
}

// fakeBot records sent messages and runs a scripted Run
type fakeBot struct {
	name string
	run  func(ctx context.Context, handler func(bot.BotMessage)) error

	mu      sync.Mutex
	sent    []sentMessage
	runs    int
	sendErr error
}

func newFakeBot(name string) *fakeBot {
	return &fakeBot{name: name}
}

func (b *fakeBot) Name() string { return b.name }

func (b *fakeBot) Run(ctx context.Context, handler func(bot.BotMessage)) error {
	b.mu.Lock()
	b.runs++
	run := b.run
	b.mu.Unlock()

	if run == nil {
		<-ctx.Done()
		return nil
	}
	return run(ctx, handler)
}

func (b *fakeBot) SendMessage(ctx context.Context, channel string, msg bot.OutgoingMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, sentMessage{Channel: channel, Msg: msg})
	return nil
}

func (b *fakeBot) Sent() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentMessage(nil), b.sent...)
}

func (b *fakeBot) Runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs
}

const (
	opsRoom      = "!ops:example.com"
	danglingRoom = "!dangling:example.com"
	strangeRoom  = "!stranger:example.com"
)

// newTestConfig returns a validated config with one bound realm
func newTestConfig(t *testing.T, mutate ...func(c *config.Config)) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Matrix: config.MatrixConfig{
			Homeserver: "matrix.example.com",
			Room:       "!ops",
		},
		Bot: config.BotConfig{
			Rooms: map[string]string{
				opsRoom:    "home",
				"!dangling": "gone",
			},
			ReconnectDelay: "10ms",
		},
		Monitoring: map[string]config.RealmConfig{
			"home": {Host: "zabbix.example.com"},
		},
		Colors: config.ColorsConfig{
			Zabbix: config.ColorEntries{
				{Pattern: "warning", Value: "#ffcc00,⚠"},
				{Pattern: "high", Value: "#ff6600,❗"},
				{Pattern: "not classified", Value: "#000000,•"},
			},
			Progress: config.ColorEntries{
				{Pattern: "cm01", Value: "#00aa00,✔"},
				{Pattern: "not classified", Value: "#0000ff,⏳"},
			},
		},
	}
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, config.Validate(cfg))
	return cfg
}

// newTestEngine wires a fake monitor and a fake matrix bot into an engine
func newTestEngine(t *testing.T, mon *fakeMonitor, mutate ...func(c *config.Config)) (*Engine, *fakeBot) {
	t.Helper()
	e := NewEngine(newTestConfig(t, mutate...))
	e.SetMonitorFactory(func(config.RealmConfig) (Monitor, error) { return mon, nil })
	b := newFakeBot(PlatformMatrix)
	e.RegisterBotAdapter(b)
	return e, b
}

func roomMessage(room, content string) bot.BotMessage {
	return bot.BotMessage{
		Platform: PlatformMatrix,
		UserID:   "@alice:example.com",
		Channel:  room,
		Content:  content,
	}
}
