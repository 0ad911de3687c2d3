package config

import (
	"fmt"
	"strings"

	"github.com/go-ini/ini"
	"github.com/lordievader/matrix-zabbix-bot/internal/format"
)

// INI section names
const (
	sectionMatrix     = "Matrix"
	sectionRooms      = "Zabbix-Bot"
	sectionColors     = "Colors"
	sectionBot        = "Bot"
	sectionProgress   = "Progress"
	sectionHookServer = "HookServer"
	sectionLogging    = "Logging"

	zabbixColorPrefix   = "zabbix_"
	progressColorPrefix = "dnsjedi_"
)

// platformSections maps INI sections onto the bots map
var platformSections = map[string]string{
	"Telegram": "telegram",
	"Discord":  "discord",
	"Feishu":   "feishu",
	"DingTalk": "dingtalk",
}

// INILoader reads the classic INI layout
type INILoader struct{}

// Load reads and parses path
func (INILoader) Load(path string) (*Config, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseINI(data)
}

// ParseINI parses INI config data. Room ids contain ':' and colors start
// with '#', so '=' is the only delimiter and inline comments are off.
func ParseINI(data []byte) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:  "=",
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	matrix, err := f.GetSection(sectionMatrix)
	if err != nil {
		return nil, fmt.Errorf("%w: [%s]", ErrSectionMissing, sectionMatrix)
	}

	cfg := &Config{
		Matrix: MatrixConfig{
			Homeserver:  matrix.Key("homeserver").String(),
			Port:        matrix.Key("port").MustInt(0),
			Username:    matrix.Key("username").String(),
			Password:    matrix.Key("password").String(),
			Token:       matrix.Key("token").String(),
			Domain:      matrix.Key("domain").String(),
			DeviceID:    matrix.Key("device_id").String(),
			Room:        matrix.Key("room").String(),
			MessageType: matrix.Key("message_type").String(),
		},
		Bot: BotConfig{
			Rooms: map[string]string{},
		},
		Monitoring: map[string]RealmConfig{},
		Bots:       map[string]PlatformConfig{},
	}

	if rooms, err := f.GetSection(sectionRooms); err == nil {
		for _, k := range rooms.Keys() {
			cfg.Bot.Rooms[k.Name()] = k.Value()
		}
	}

	if bot, err := f.GetSection(sectionBot); err == nil {
		cfg.Bot.Prefix = bot.Key("prefix").String()
		cfg.Bot.ColorMatch = bot.Key("color_match").String()
		cfg.Bot.QueryTimeout = bot.Key("query_timeout").String()
		cfg.Bot.ReconnectDelay = bot.Key("reconnect_delay").String()
	}

	if colors, err := f.GetSection(sectionColors); err == nil {
		for _, k := range colors.Keys() {
			name := k.Name()
			switch {
			case strings.HasPrefix(name, zabbixColorPrefix):
				cfg.Colors.Zabbix = append(cfg.Colors.Zabbix, format.Entry{
					Pattern: strings.TrimPrefix(name, zabbixColorPrefix),
					Value:   k.Value(),
				})
			case strings.HasPrefix(name, progressColorPrefix):
				cfg.Colors.Progress = append(cfg.Colors.Progress, format.Entry{
					Pattern: strings.TrimPrefix(name, progressColorPrefix),
					Value:   k.Value(),
				})
			}
		}
	}

	if progress, err := f.GetSection(sectionProgress); err == nil {
		cfg.Progress = ProgressConfig{
			Enabled:     progress.Key("enabled").MustBool(false),
			Command:     progress.Key("command").String(),
			HostGroup:   progress.Key("host_group").String(),
			LeftKey:     progress.Key("left_key").String(),
			ForecastKey: progress.Key("forecast_key").String(),
			Rooms:       splitList(progress.Key("rooms").String()),
			ColorMatch:  progress.Key("color_match").String(),
		}
	}

	if hook, err := f.GetSection(sectionHookServer); err == nil {
		cfg.HookServer = HookServerConfig{
			Enabled: hook.Key("enabled").MustBool(false),
			Host:    hook.Key("host").String(),
			Port:    hook.Key("port").MustInt(0),
			Token:   hook.Key("token").String(),
		}
	}

	if logging, err := f.GetSection(sectionLogging); err == nil {
		cfg.Logging = LoggingConfig{
			Level:        logging.Key("level").String(),
			Format:       logging.Key("format").String(),
			File:         logging.Key("file").String(),
			MaxSize:      logging.Key("max_size").MustInt(0),
			MaxBackups:   logging.Key("max_backups").MustInt(0),
			MaxAge:       logging.Key("max_age").MustInt(0),
			Compress:     optionalBool(logging, "compress"),
			EnableStdout: optionalBool(logging, "enable_stdout"),
		}
	}

	for _, sec := range f.Sections() {
		name := sec.Name()
		if key, ok := platformSections[name]; ok {
			cfg.Bots[key] = PlatformConfig{
				Enabled:           sec.Key("enabled").MustBool(false),
				AppID:             sec.Key("app_id").String(),
				AppSecret:         sec.Key("app_secret").String(),
				Token:             sec.Key("token").String(),
				ChannelID:         sec.Key("channel_id").String(),
				EncryptKey:        sec.Key("encrypt_key").String(),
				VerificationToken: sec.Key("verification_token").String(),
			}
			continue
		}
		if reservedSection(name) || !sec.HasKey("host") {
			continue
		}
		cfg.Monitoring[name] = RealmConfig{
			Host:        sec.Key("host").String(),
			Username:    sec.Key("username").String(),
			Password:    sec.Key("password").String(),
			Token:       sec.Key("token").String(),
			AuthHeader:  sec.Key("auth_header").MustBool(false),
			LegacyLogin: sec.Key("legacy_login").MustBool(false),
			Timeout:     sec.Key("timeout").String(),
		}
	}

	return cfg, nil
}

func reservedSection(name string) bool {
	switch name {
	case ini.DefaultSection, sectionMatrix, sectionRooms, sectionColors,
		sectionBot, sectionProgress, sectionHookServer, sectionLogging:
		return true
	}
	return false
}

// optionalBool returns nil for an absent key so defaults still apply
func optionalBool(sec *ini.Section, key string) *bool {
	if !sec.HasKey(key) {
		return nil
	}
	b := sec.Key(key).MustBool(false)
	return &b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
