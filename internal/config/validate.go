package config

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/format"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	DefaultHookHost = "127.0.0.1"
	DefaultHookPort = 8080

	DefaultLogLevel        = "info"
	DefaultLogMaxBackups   = 5
	DefaultLogCompress     = true
	DefaultLogEnableStdout = true

	DefaultProgressHostGroup   = "Clustermanagers"
	DefaultProgressLeftKey     = "cms.chunks_left"
	DefaultProgressForecastKey = "cms.co_queue_len_forecast"
)

// Validate applies defaults and checks the configuration. It compiles the
// color tables, so it must run before the accessors are used.
func Validate(cfg *Config) error {
	if err := validateMatrix(&cfg.Matrix); err != nil {
		return err
	}
	if !cfg.Matrix.Enabled() && len(cfg.enabledBots()) == 0 {
		return fmt.Errorf("%w: matrix (no chat transport configured)", ErrSectionMissing)
	}

	if cfg.Bot.Prefix == "" {
		cfg.Bot.Prefix = constants.DefaultCommandPrefix
	}
	if cfg.Bot.Rooms == nil {
		cfg.Bot.Rooms = map[string]string{}
	}
	if cfg.Monitoring == nil {
		cfg.Monitoring = map[string]RealmConfig{}
	}

	var err error
	if cfg.queryTimeout, err = parsePositive("bot.query_timeout", cfg.Bot.QueryTimeout, constants.DefaultQueryTimeout); err != nil {
		return err
	}
	if cfg.reconnectDelay, err = parsePositive("bot.reconnect_delay", cfg.Bot.ReconnectDelay, constants.DefaultReconnectDelay); err != nil {
		return err
	}
	for name, realm := range cfg.Monitoring {
		if realm.Host == "" {
			return fmt.Errorf("realm %s has no host", name)
		}
		if realm.Timeout != "" {
			if _, err := parsePositive("monitoring."+name+".timeout", realm.Timeout, 0); err != nil {
				return err
			}
		}
	}

	if err := compileColors(cfg); err != nil {
		return err
	}

	if cfg.Progress.Command == "" {
		cfg.Progress.Command = constants.DefaultProgressCommand
	}
	if cfg.Progress.HostGroup == "" {
		cfg.Progress.HostGroup = DefaultProgressHostGroup
	}
	if cfg.Progress.LeftKey == "" {
		cfg.Progress.LeftKey = DefaultProgressLeftKey
	}
	if cfg.Progress.ForecastKey == "" {
		cfg.Progress.ForecastKey = DefaultProgressForecastKey
	}
	if cfg.Progress.Enabled && cfg.Progress.Command == cfg.Bot.Prefix {
		return fmt.Errorf("progress command %q collides with the bot prefix", cfg.Progress.Command)
	}

	if cfg.HookServer.Port == 0 {
		cfg.HookServer.Port = DefaultHookPort
	}
	if cfg.HookServer.Host == "" {
		cfg.HookServer.Host = DefaultHookHost
	}
	if cfg.HookServer.Enabled && cfg.HookServer.Token == "" && !isLoopback(cfg.HookServer.Host) {
		return fmt.Errorf("hook_server.token is required when listening on %s", cfg.HookServer.Host)
	}

	// Set default logging configuration
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = constants.DefaultLogMaxSize
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = constants.DefaultLogMaxAge
	}
	if cfg.Logging.Compress == nil {
		cfg.Logging.Compress = boolPtr(DefaultLogCompress)
	}
	if cfg.Logging.EnableStdout == nil {
		cfg.Logging.EnableStdout = boolPtr(DefaultLogEnableStdout)
	}

	return nil
}

func validateMatrix(m *MatrixConfig) error {
	if m.Homeserver == "" && strings.HasPrefix(m.Username, "@") {
		if _, server, ok := strings.Cut(m.Username, ":"); ok {
			m.Homeserver = server
		}
	}
	if !m.Enabled() {
		return nil
	}

	if m.Port == 0 {
		m.Port = constants.DefaultMatrixPort
	}
	if m.Port < 0 || m.Port > 65535 {
		return fmt.Errorf("matrix.port %d out of range", m.Port)
	}
	if m.Domain == "" {
		m.Domain = hostOnly(m.Homeserver)
	}
	if m.DeviceID == "" {
		m.DeviceID = constants.DefaultDeviceID
	}
	switch m.MessageType {
	case "":
		m.MessageType = constants.DefaultMessageType
	case "m.text", "m.notice":
	default:
		return fmt.Errorf("matrix.message_type %q must be m.text or m.notice", m.MessageType)
	}
	return nil
}

func compileColors(cfg *Config) error {
	mode, err := format.ParseMatchMode(cfg.Bot.ColorMatch)
	if err != nil {
		return fmt.Errorf("bot.color_match: %w", err)
	}
	cfg.Bot.ColorMatch = string(mode)

	if cfg.triggerColors, err = format.NewColorTable(mode, cfg.Colors.Zabbix); err != nil {
		return fmt.Errorf("colors.zabbix: %w", err)
	}
	// progress lines start with the host name, so the table matches anywhere
	// unless configured otherwise
	progressMode := format.MatchSubstring
	if cfg.Progress.ColorMatch != "" {
		if progressMode, err = format.ParseMatchMode(cfg.Progress.ColorMatch); err != nil {
			return fmt.Errorf("progress.color_match: %w", err)
		}
	}
	cfg.Progress.ColorMatch = string(progressMode)

	if cfg.progressColors, err = format.NewColorTable(progressMode, cfg.Colors.Progress); err != nil {
		return fmt.Errorf("colors.dnsjedi: %w", err)
	}

	if cfg.triggerColors.FallbackInjected() {
		logger.WithFields(logrus.Fields{
			"table":   "zabbix",
			"default": constants.DefaultFallbackStyle,
		}).Warn("color-fallback-injected")
	}
	return nil
}

func parsePositive(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %v)", field, d)
	}
	return d, nil
}

// hostOnly strips scheme, port and path from a homeserver address
func hostOnly(server string) string {
	if _, rest, ok := strings.Cut(server, "://"); ok {
		server = rest
	}
	server, _, _ = strings.Cut(server, "/")
	server, _, _ = strings.Cut(server, ":")
	return server
}

func (c *Config) enabledBots() []string {
	var names []string
	for name, b := range c.Bots {
		if b.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// EnabledBots lists the additional chat platforms switched on, sorted
func (c *Config) EnabledBots() []string {
	return c.enabledBots()
}

// Warnings lists non-fatal configuration problems of a validated config
func Warnings(cfg *Config) []string {
	var warnings []string

	if len(cfg.Monitoring) == 0 {
		warnings = append(warnings, "no monitoring realms configured")
	}
	if len(cfg.Bot.Rooms) == 0 {
		warnings = append(warnings, "no rooms bound to a realm; every command will be ignored")
	}

	rooms := make([]string, 0, len(cfg.Bot.Rooms))
	for room := range cfg.Bot.Rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	for _, room := range rooms {
		realm := cfg.Bot.Rooms[room]
		if _, ok := cfg.Monitoring[realm]; !ok {
			warnings = append(warnings, fmt.Sprintf("room %s is bound to unknown realm %s", room, realm))
		}
	}

	if cfg.Matrix.Enabled() && cfg.Matrix.Token == "" && cfg.Matrix.Password == "" {
		warnings = append(warnings, "matrix has neither a password nor a token")
	}
	if cfg.triggerColors.FallbackInjected() {
		warnings = append(warnings, fmt.Sprintf("colors.zabbix has no %q rule, using %q",
			constants.FallbackColorRule, constants.DefaultFallbackStyle))
	}
	if cfg.Progress.Enabled && cfg.progressColors.FallbackInjected() {
		warnings = append(warnings, fmt.Sprintf("colors.dnsjedi has no %q rule, using %q",
			constants.FallbackColorRule, constants.DefaultFallbackStyle))
	}
	if cfg.HookServer.Enabled && cfg.HookServer.Token == "" {
		warnings = append(warnings, "hook_server has no token; any local process can post to /alert")
	}
	return warnings
}

func boolPtr(b bool) *bool {
	return &b
}

// isLoopback reports whether host only accepts local connections
func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
