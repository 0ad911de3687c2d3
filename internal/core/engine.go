package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lordievader/matrix-zabbix-bot/internal/bot"
	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/internal/zabbix"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// CommandHandler answers one chat command family
type CommandHandler interface {
	Dispatch(ctx context.Context, mon Monitor, realm string, args []string) (Reply, error)
}

// MonitorFactory opens a monitoring session for a realm
type MonitorFactory func(realm config.RealmConfig) (Monitor, error)

// ZabbixMonitor is the MonitorFactory backed by the Zabbix JSON-RPC API
func ZabbixMonitor(realm config.RealmConfig) (Monitor, error) {
	client, err := zabbix.NewClient(zabbix.Options{
		Host:        realm.Host,
		Username:    realm.Username,
		Password:    realm.Password,
		Token:       realm.Token,
		AuthHeader:  realm.AuthHeader,
		LegacyLogin: realm.LegacyLogin,
		Timeout:     realm.TimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}
	return zabbix.NewMonitor(client), nil
}

// route binds a command prefix to its handler
type route struct {
	prefix  string
	pattern *regexp.Regexp
	handler CommandHandler
	allowed func(room string) bool // nil: every bound room
}

// Engine relays chat commands to the monitoring backend and posts the
// replies. Messages from all adapters are handled one at a time.
type Engine struct {
	config      *config.Config
	activeBots  map[string]bot.BotAdapter // platform -> adapter
	botsMu      sync.RWMutex
	routes      []route
	newMonitor  MonitorFactory
	metrics     *Metrics
	messageChan chan bot.BotMessage
	hookServer  *http.Server
	hookMu      sync.Mutex
	wg          sync.WaitGroup
	ctx         context.Context    // Context for cancellation
	cancel      context.CancelFunc // Cancel function for graceful shutdown
}

// NewEngine creates an engine with the !zabbix handler and, when enabled,
// the progress handler registered
func NewEngine(cfg *config.Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		config:      cfg,
		activeBots:  make(map[string]bot.BotAdapter),
		newMonitor:  ZabbixMonitor,
		metrics:     NewMetrics(),
		messageChan: make(chan bot.BotMessage, constants.MessageChannelBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	e.RegisterHandler(cfg.Bot.Prefix, NewDispatcher(cfg.Bot.Prefix, cfg.TriggerColors()), nil)
	if cfg.Progress.Enabled {
		e.RegisterHandler(cfg.Progress.Command, NewProgressDispatcher(ProgressOptions{
			Command:     cfg.Progress.Command,
			HostGroup:   cfg.Progress.HostGroup,
			LeftKey:     cfg.Progress.LeftKey,
			ForecastKey: cfg.Progress.ForecastKey,
			Colors:      cfg.ProgressColors(),
		}), cfg.ProgressAllowed)
	}
	return e
}

// RegisterHandler routes messages starting with prefix to handler
func (e *Engine) RegisterHandler(prefix string, handler CommandHandler, allowed func(room string) bool) {
	e.routes = append(e.routes, route{
		prefix:  prefix,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\s|$)`),
		handler: handler,
		allowed: allowed,
	})
}

// RegisterBotAdapter registers a chat transport
func (e *Engine) RegisterBotAdapter(adapter bot.BotAdapter) {
	e.botsMu.Lock()
	defer e.botsMu.Unlock()
	e.activeBots[adapter.Name()] = adapter
}

// SetMonitorFactory replaces the monitoring backend
func (e *Engine) SetMonitorFactory(f MonitorFactory) {
	e.newMonitor = f
}

// Metrics returns the engine metrics
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Platforms lists the registered chat transports, sorted
func (e *Engine) Platforms() []string {
	e.botsMu.RLock()
	defer e.botsMu.RUnlock()
	names := make([]string, 0, len(e.activeBots))
	for name := range e.activeBots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts every adapter under a reconnecting supervisor, the hook server
// when enabled, and the event loop. It returns when ctx is cancelled or
// Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	logger.Info("starting-zabbix-bot-engine")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	e.botsMu.RLock()
	adapters := make([]bot.BotAdapter, 0, len(e.activeBots))
	for _, a := range e.activeBots {
		adapters = append(adapters, a)
	}
	e.botsMu.RUnlock()

	if len(adapters) == 0 {
		return fmt.Errorf("no chat transport registered")
	}

	if e.config.HookServer.Enabled {
		e.startHookServer()
	}

	for _, a := range adapters {
		e.wg.Add(1)
		go func(a bot.BotAdapter) {
			defer e.wg.Done()
			e.supervise(ctx, a)
		}(a)
	}

	e.runEventLoop(ctx)
	e.wg.Wait()
	return nil
}

// supervise keeps one adapter connected. Whenever Run returns while the
// engine is alive it waits the reconnect delay and starts it again.
func (e *Engine) supervise(ctx context.Context, adapter bot.BotAdapter) {
	platform := adapter.Name()
	handler := func(msg bot.BotMessage) {
		e.enqueue(ctx, msg)
	}

	for {
		logger.WithField("platform", platform).Info("starting-bot")
		err := runAdapter(ctx, adapter, handler)
		if ctx.Err() != nil {
			logger.WithField("platform", platform).Info("bot-stopped")
			return
		}

		delay := e.config.ReconnectDelay()
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"error":    err,
			"delay":    delay.String(),
		}).Warn("bot-disconnected-reconnecting")
		e.metrics.Reconnects.WithLabelValues(platform).Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func runAdapter(ctx context.Context, adapter bot.BotAdapter, handler func(bot.BotMessage)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bot panicked: %v", r)
		}
	}()
	return adapter.Run(ctx, handler)
}

// runEventLoop handles queued messages one at a time until ctx is done
func (e *Engine) runEventLoop(ctx context.Context) {
	logger.Info("engine-event-loop-started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("event-loop-shutting-down")
			return
		case msg := <-e.messageChan:
			e.HandleUserMessage(ctx, msg)
		}
	}
}

func (e *Engine) enqueue(ctx context.Context, msg bot.BotMessage) {
	select {
	case e.messageChan <- msg:
	case <-ctx.Done():
	}
}

// match finds the route of content and returns the arguments after the prefix
func (e *Engine) match(content string) (route, []string, bool) {
	for _, r := range e.routes {
		if r.pattern.MatchString(content) {
			return r, strings.Fields(content)[1:], true
		}
	}
	return route{}, nil, false
}

// HandleUserMessage answers one chat message. Errors are logged and
// reported to the room; they never stop the relay.
func (e *Engine) HandleUserMessage(ctx context.Context, msg bot.BotMessage) {
	r, args, ok := e.match(msg.Content)
	if !ok {
		return
	}

	log := logger.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"platform":   msg.Platform,
		"channel":    msg.Channel,
		"user":       msg.UserID,
		"command":    r.prefix,
		"args":       args,
	})

	realmName, realm, err := e.config.RealmFor(msg.Channel)
	if errors.Is(err, config.ErrUnknownRoom) {
		log.Warn("message-from-unknown-room")
		e.metrics.UnknownRooms.Inc()
		return
	}
	if r.allowed != nil && !r.allowed(msg.Channel) {
		log.Debug("command-not-allowed-in-room")
		return
	}

	log.Info("command-received")
	started := time.Now()

	var reply Reply
	if err == nil {
		reply, err = e.execute(ctx, r.handler, realmName, realm, args)
	}

	body := reply.Body
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.WithError(err).Error("command-failed")
		body = e.errorBody(err)
	}
	e.metrics.observeCommand(r.prefix, outcome, started)

	if sendErr := e.SendToBot(ctx, msg.Platform, msg.Channel, body); sendErr != nil {
		log.WithError(sendErr).Error("failed-to-send-reply")
	}
}

// execute runs handler under the query timeout, converting panics to errors
func (e *Engine) execute(ctx context.Context, handler CommandHandler, realmName string, realm config.RealmConfig, args []string) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout())
	defer cancel()

	mon, err := e.newMonitor(realm)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create monitor for realm %s: %w", realmName, err)
	}
	return handler.Dispatch(ctx, mon, realmName, args)
}

func (e *Engine) errorBody(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return html.EscapeString(fmt.Sprintf("Query timed out after %s", e.config.QueryTimeout())) + constants.ErrorLogHint
	}
	return html.EscapeString(err.Error()) + constants.ErrorLogHint
}

// SendToBot posts an HTML body through the named platform
func (e *Engine) SendToBot(ctx context.Context, platform, channel, body string) error {
	e.botsMu.RLock()
	botAdapter, exists := e.activeBots[platform]
	e.botsMu.RUnlock()
	if !exists {
		return fmt.Errorf("bot platform %s is not registered", platform)
	}

	msg := bot.NewOutgoingMessage(body, e.config.Matrix.MessageType)
	if err := botAdapter.SendMessage(ctx, channel, msg); err != nil {
		e.metrics.SendFailures.WithLabelValues(platform).Inc()
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"channel":  channel,
			"error":    err,
		}).Error("failed-to-send-message-to-bot")
		return err
	}

	logger.WithFields(logrus.Fields{
		"platform": platform,
		"channel":  channel,
		"length":   len(body),
	}).Info("message-sent-to-bot")
	return nil
}

// Alert colorizes an alert text line by line and posts it to room
func (e *Engine) Alert(ctx context.Context, platform, room, text string) error {
	if platform == "" {
		platform = PlatformMatrix
	}
	if room == "" {
		room = e.config.Matrix.Room
	}
	if platform == PlatformMatrix {
		room = e.config.RoomID(room)
	}
	if room == "" {
		return fmt.Errorf("no room given and none configured")
	}

	if err := e.SendToBot(ctx, platform, room, AlertBody(e.config, text)); err != nil {
		return err
	}
	e.metrics.AlertsRelayed.WithLabelValues(platform).Inc()
	return nil
}

// PlatformMatrix is the name of the primary transport
const PlatformMatrix = "matrix"

// AlertBody colorizes every non-empty line of text with the trigger colors
func AlertBody(cfg *config.Config, text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, cfg.TriggerColors().Colorize(line))
		}
	}
	if len(lines) == 0 {
		return constants.NoResultsMessage
	}
	return strings.Join(lines, constants.LineSeparator)
}

// Stop cancels the engine and shuts the hook server down
func (e *Engine) Stop() error {
	logger.Info("stopping-zabbix-bot-engine")

	if e.cancel != nil {
		e.cancel()
	}

	e.hookMu.Lock()
	srv := e.hookServer
	e.hookMu.Unlock()

	if srv != nil {
		logger.Info("stopping-hook-server")
		ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("failed-to-gracefully-stop-hook-server")
			srv.Close()
		} else {
			logger.Info("hook-server-stopped-gracefully")
		}
	}

	logger.Info("engine-stopped")
	return nil
}
