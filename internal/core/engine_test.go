package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/bot"
	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/internal/zabbix"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func warnings(hook *test.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e)
		}
	}
	return out
}

func TestEngine_AckEndToEnd(t *testing.T) {
	mon := &fakeMonitor{}
	e, b := newTestEngine(t, mon)

	e.HandleUserMessage(context.Background(), roomMessage(opsRoom, "!zabbix ack 4217"))

	sent := b.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, opsRoom, sent[0].Channel)
	assert.Equal(t, "Trigger 4217 acknowledged. ok", sent[0].Msg.HTML)
	assert.Equal(t, "Trigger 4217 acknowledged. ok", sent[0].Msg.Plain)
	assert.Equal(t, "m.text", sent[0].Msg.MsgType)
	assert.Equal(t, []string{"ack 4217"}, mon.Calls())
}

func TestEngine_UnknownRoomSendsNothing(t *testing.T) {
	hook := test.NewLocal(logger.GetLogger())
	defer hook.Reset()

	mon := &fakeMonitor{}
	e, b := newTestEngine(t, mon)
	hook.Reset()

	e.HandleUserMessage(context.Background(), roomMessage(strangeRoom, "!zabbix all"))

	assert.Empty(t, b.Sent())
	assert.Empty(t, mon.Calls())
	w := warnings(hook)
	require.Len(t, w, 1)
	assert.Equal(t, "message-from-unknown-room", w[0].Message)
	assert.Equal(t, strangeRoom, w[0].Data["channel"])
	assert.Equal(t, float64(1), testutil.ToFloat64(e.Metrics().UnknownRooms))
}

func TestEngine_UnknownRealmIsReported(t *testing.T) {
	mon := &fakeMonitor{}
	e, b := newTestEngine(t, mon)

	e.HandleUserMessage(context.Background(), roomMessage(danglingRoom, "!zabbix"))

	sent := b.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Msg.HTML, "realm is not configured")
	assert.True(t, strings.HasSuffix(sent[0].Msg.HTML, "<br /><br />Please see my log."))
	assert.Empty(t, mon.Calls())
}

func TestEngine_IgnoresOtherMessages(t *testing.T) {
	mon := &fakeMonitor{}
	e, b := newTestEngine(t, mon)

	for _, content := range []string{"hello", "!zabbixall", " !zabbix", "!dnsjedi", ""} {
		e.HandleUserMessage(context.Background(), roomMessage(opsRoom, content))
	}
	assert.Empty(t, b.Sent())
	assert.Empty(t, mon.Calls())
}

func TestEngine_ErrorIsReportedAndRelayContinues(t *testing.T) {
	mon := &fakeMonitor{err: &zabbix.APIError{Code: -32602, Message: "Invalid params."}}
	e, b := newTestEngine(t, mon)
	ctx := context.Background()

	e.HandleUserMessage(ctx, roomMessage(opsRoom, "!zabbix all"))
	mon.err = nil
	mon.triggers = []zabbix.TriggerRecord{{TriggerID: "1", Hostname: "web01", Description: "Load", Priority: zabbix.PriorityWarning, PrevValue: "3"}}
	e.HandleUserMessage(ctx, roomMessage(opsRoom, "!zabbix all"))

	sent := b.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t,
		"all failed for realm home: zabbix api error -32602: Invalid params.<br /><br />Please see my log.",
		sent[0].Msg.HTML)
	assert.Equal(t, `<font color="#ffcc00">⚠ Warning web01 Load: 3 (1)</font>`, sent[1].Msg.HTML)

	assert.Equal(t, float64(1), testutil.ToFloat64(e.Metrics().CommandsTotal.WithLabelValues("!zabbix", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.Metrics().CommandsTotal.WithLabelValues("!zabbix", "ok")))
}

func TestEngine_QueryTimeout(t *testing.T) {
	mon := &fakeMonitor{block: true}
	e, b := newTestEngine(t, mon, func(c *config.Config) { c.Bot.QueryTimeout = "20ms" })

	e.HandleUserMessage(context.Background(), roomMessage(opsRoom, "!zabbix"))

	sent := b.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Query timed out after 20ms<br /><br />Please see my log.", sent[0].Msg.HTML)
}

func TestEngine_PanicIsRecovered(t *testing.T) {
	mon := &fakeMonitor{panics: true}
	e, b := newTestEngine(t, mon)

	assert.NotPanics(t, func() {
		e.HandleUserMessage(context.Background(), roomMessage(opsRoom, "!zabbix hosts"))
	})
	sent := b.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Msg.HTML, "command panicked: monitor exploded")
}

func TestEngine_MonitorFactoryError(t *testing.T) {
	e, b := newTestEngine(t, &fakeMonitor{})
	e.SetMonitorFactory(func(config.RealmConfig) (Monitor, error) {
		return nil, errors.New("zabbix host is required")
	})

	e.HandleUserMessage(context.Background(), roomMessage(opsRoom, "!zabbix"))
	sent := b.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Msg.HTML, "failed to create monitor for realm home")
}

func TestEngine_ProgressRooms(t *testing.T) {
	mon := &fakeMonitor{items: []zabbix.HostItemValues{
		{Host: "cm01", Values: map[string]string{"cms.chunks_left": "0"}},
	}}
	e, b := newTestEngine(t, mon, func(c *config.Config) {
		c.Progress.Enabled = true
		c.Progress.Rooms = []string{"!ops"}
		c.Bot.Rooms["!lab:example.com"] = "home"
	})
	ctx := context.Background()

	e.HandleUserMessage(ctx, roomMessage("!lab:example.com", "!dnsjedi"))
	assert.Empty(t, b.Sent())

	e.HandleUserMessage(ctx, roomMessage(opsRoom, "!dnsjedi"))
	sent := b.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, `<font color="#00aa00">✔ cm01: done</font>`, sent[0].Msg.HTML)
}

func TestEngine_ProgressDisabledByDefault(t *testing.T) {
	e, b := newTestEngine(t, &fakeMonitor{})
	e.HandleUserMessage(context.Background(), roomMessage(opsRoom, "!dnsjedi"))
	assert.Empty(t, b.Sent())
}

func TestEngine_SendToUnknownPlatform(t *testing.T) {
	e, _ := newTestEngine(t, &fakeMonitor{})
	err := e.SendToBot(context.Background(), "irc", "#ops", "hi")
	assert.Error(t, err)
}

func TestEngine_RunDeliversAdapterMessages(t *testing.T) {
	mon := &fakeMonitor{}
	e, b := newTestEngine(t, mon)
	b.run = func(ctx context.Context, handler func(bot.BotMessage)) error {
		handler(roomMessage(opsRoom, "!zabbix ack 1"))
		handler(roomMessage(opsRoom, "!zabbix ack 2"))
		<-ctx.Done()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(b.Sent()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	// one event loop: replies keep arrival order
	sent := b.Sent()
	assert.Equal(t, "Trigger 1 acknowledged. ok", sent[0].Msg.HTML)
	assert.Equal(t, "Trigger 2 acknowledged. ok", sent[1].Msg.HTML)
	assert.Equal(t, float64(0), testutil.ToFloat64(e.Metrics().Reconnects.WithLabelValues(PlatformMatrix)))
}

func TestEngine_RunReconnectsAfterDisconnect(t *testing.T) {
	e, b := newTestEngine(t, &fakeMonitor{})
	b.run = func(ctx context.Context, handler func(bot.BotMessage)) error {
		return errors.New("sync failed")
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return b.Runs() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, e.Stop())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.GreaterOrEqual(t, testutil.ToFloat64(e.Metrics().Reconnects.WithLabelValues(PlatformMatrix)), float64(2))
}

func TestEngine_RunRecoversAdapterPanic(t *testing.T) {
	e, b := newTestEngine(t, &fakeMonitor{})
	b.run = func(ctx context.Context, handler func(bot.BotMessage)) error {
		panic("boom")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool { return b.Runs() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestEngine_RunWithoutAdapters(t *testing.T) {
	e := NewEngine(newTestConfig(t))
	assert.Error(t, e.Run(context.Background()))
}

func TestAlertBody(t *testing.T) {
	cfg := newTestConfig(t)
	assert.Equal(t,
		`<font color="#ffcc00">⚠ Warning: disk 90%</font><br /><font color="#000000">• Host: web01</font>`,
		AlertBody(cfg, "Warning: disk 90%\n\n  Host: web01  \n"))
	assert.Equal(t, "Nothing to notify", AlertBody(cfg, " \n "))
}

func TestEngine_AlertQualifiesMatrixRoom(t *testing.T) {
	e, b := newTestEngine(t, &fakeMonitor{})

	require.NoError(t, e.Alert(context.Background(), "", "", "High: db down"))
	sent := b.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "!ops:matrix.example.com", sent[0].Channel)
	assert.Equal(t, `<font color="#ff6600">❗ High: db down</font>`, sent[0].Msg.HTML)
	assert.Equal(t, float64(1), testutil.ToFloat64(e.Metrics().AlertsRelayed.WithLabelValues(PlatformMatrix)))
}
