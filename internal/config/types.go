// Package config loads the bot configuration from YAML or INI files and
// merges command line overrides into it.
//
// # YAML layout
//
//	matrix:
//	  homeserver: matrix.example.com
//	  port: 443
//	  username: zabbixbot
//	  password: ${MATRIX_PASSWORD}
//	  room: "!OUZabccnPEwNGbzecZ"
//	bot:
//	  prefix: "!zabbix"
//	  color_match: prefix
//	  rooms:
//	    "!OUZabccnPEwNGbzecZ": home
//	monitoring:
//	  home:
//	    host: https://zabbix.example.com
//	    username: api
//	    password: ${ZABBIX_PASSWORD}
//	colors:
//	  zabbix:
//	    warning: "#ffcc00,⚠"
//	    not classified: "#000000,•"
//
// # INI layout
//
// The INI loader reads the sections of the original bot: [Matrix],
// [Zabbix-Bot] (room id = realm), one section per realm and [Colors] with
// zabbix_ and dnsjedi_ prefixed keys.
package config

import (
	"errors"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/format"
)

var (
	// ErrConfigMissing means the config file does not exist
	ErrConfigMissing = errors.New("config file not found")
	// ErrSectionMissing means a required config section is absent
	ErrSectionMissing = errors.New("config section missing")
	// ErrUnknownRoom means a room has no realm binding
	ErrUnknownRoom = errors.New("room is not bound to a realm")
	// ErrUnknownRealm means a room is bound to a realm that is not configured
	ErrUnknownRealm = errors.New("realm is not configured")
)

// Config represents the complete bot configuration
type Config struct {
	Matrix     MatrixConfig              `yaml:"matrix"`
	Bot        BotConfig                 `yaml:"bot"`
	Monitoring map[string]RealmConfig    `yaml:"monitoring"`
	Colors     ColorsConfig              `yaml:"colors"`
	Progress   ProgressConfig            `yaml:"progress"`
	Bots       map[string]PlatformConfig `yaml:"bots"`
	HookServer HookServerConfig          `yaml:"hook_server"`
	Logging    LoggingConfig             `yaml:"logging"`

	// Path is the file the config was loaded from, empty for flags-only configs
	Path string `yaml:"-"`

	triggerColors  *format.ColorTable
	progressColors *format.ColorTable
	queryTimeout   time.Duration
	reconnectDelay time.Duration
}

// MatrixConfig is the Matrix homeserver connection
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Token       string `yaml:"token"`        // access token; skips password login
	Domain      string `yaml:"domain"`       // server name of room and user ids (default: homeserver)
	DeviceID    string `yaml:"device_id"`
	Room        string `yaml:"room"`         // room joined at startup and target of alerts
	MessageType string `yaml:"message_type"` // m.text or m.notice
}

// Enabled reports whether a Matrix homeserver is configured
func (m MatrixConfig) Enabled() bool {
	return m.Homeserver != ""
}

// BotConfig holds the command handling settings
type BotConfig struct {
	Prefix         string            `yaml:"prefix"`
	Rooms          map[string]string `yaml:"rooms"` // room id -> realm name
	ColorMatch     string            `yaml:"color_match"`
	QueryTimeout   string            `yaml:"query_timeout"`
	ReconnectDelay string            `yaml:"reconnect_delay"`
}

// RealmConfig identifies one Zabbix server and its credentials
type RealmConfig struct {
	Host        string `yaml:"host"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Token       string `yaml:"token"`
	AuthHeader  bool   `yaml:"auth_header"`
	LegacyLogin bool   `yaml:"legacy_login"`
	Timeout     string `yaml:"timeout"`
}

// TimeoutDuration returns the HTTP timeout, zero when unset or invalid
func (r RealmConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ColorsConfig holds the ordered color tables
type ColorsConfig struct {
	Zabbix   ColorEntries `yaml:"zabbix"`
	Progress ColorEntries `yaml:"dnsjedi"`
}

// ProgressConfig configures the cluster progress command
type ProgressConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Command     string   `yaml:"command"`
	HostGroup   string   `yaml:"host_group"`
	LeftKey     string   `yaml:"left_key"`
	ForecastKey string   `yaml:"forecast_key"`
	Rooms       []string `yaml:"rooms"`       // empty: every bound room
	ColorMatch  string   `yaml:"color_match"` // mode of the dnsjedi table, default substring
}

// PlatformConfig configures an additional chat platform
type PlatformConfig struct {
	Enabled           bool   `yaml:"enabled"`
	AppID             string `yaml:"app_id"`
	AppSecret         string `yaml:"app_secret"`
	Token             string `yaml:"token"`
	ChannelID         string `yaml:"channel_id"`
	EncryptKey        string `yaml:"encrypt_key"`
	VerificationToken string `yaml:"verification_token"`
}

// HookServerConfig configures the alert webhook and metrics listener
type HookServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"` // listen address, default 127.0.0.1
	Port    int    `yaml:"port"`
	Token   string `yaml:"token"` // shared secret required on /alert when set
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`  // debug, info, warn, error
	Format       string `yaml:"format"` // json or text
	File         string `yaml:"file"`
	MaxSize      int    `yaml:"max_size"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAge       int    `yaml:"max_age"`
	Compress     *bool  `yaml:"compress"`      // nil means the default (true)
	EnableStdout *bool  `yaml:"enable_stdout"` // nil means the default (true)
}

// CompressEnabled reports whether rotated files are compressed
func (l LoggingConfig) CompressEnabled() bool {
	return l.Compress == nil || *l.Compress
}

// StdoutEnabled reports whether logs are also written to stdout
func (l LoggingConfig) StdoutEnabled() bool {
	return l.EnableStdout == nil || *l.EnableStdout
}

// TriggerColors returns the compiled trigger color table
func (c *Config) TriggerColors() *format.ColorTable {
	return c.triggerColors
}

// ProgressColors returns the compiled progress color table
func (c *Config) ProgressColors() *format.ColorTable {
	return c.progressColors
}

// QueryTimeout bounds each monitoring command
func (c *Config) QueryTimeout() time.Duration {
	return c.queryTimeout
}

// ReconnectDelay is the wait before a chat transport reconnects
func (c *Config) ReconnectDelay() time.Duration {
	return c.reconnectDelay
}
