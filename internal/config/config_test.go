package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
matrix:
  homeserver: matrix.example.com
  username: zabbixbot
  password: ${TEST_MATRIX_PASSWORD}
  room: "!OUZabccnPEwNGbzecZ"
bot:
  rooms:
    "!OUZabccnPEwNGbzecZ": home
    "!other": missing
  query_timeout: 10s
monitoring:
  home:
    host: https://zabbix.example.com
    username: api
    password: secret
colors:
  zabbix:
    warning: "#ffcc00,⚠"
    disaster: "#ff0000,🔥"
    average: "#ff9900,!"
    not classified: "#000000,•"
`

const sampleINI = `
[Matrix]
homeserver = matrix.example.com
port = 8448
username = zabbixbot
password = hunter2
room = !OUZabccnPEwNGbzecZ

[Zabbix-Bot]
!OUZabccnPEwNGbzecZ:example.com = home
!short = home

[home]
host = zabbix.example.com
username = api
password = secret

[Colors]
zabbix_warning = #ffcc00,⚠
zabbix_not classified = #000000,•
dnsjedi_done = #00ff00,✔

[Progress]
enabled = true
rooms = !OUZabccnPEwNGbzecZ, !other
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewLoader(t *testing.T) {
	tests := []struct {
		path string
		want Loader
	}{
		{"/etc/matrix-zabbix-bot.yaml", YAMLLoader{}},
		{"bot.yml", YAMLLoader{}},
		{"/etc/matrix-zabbix-bot.conf", INILoader{}},
		{"bot.INI", INILoader{}},
		{"bot.cfg", INILoader{}},
		{"noext", YAMLLoader{}},
	}
	for _, tt := range tests {
		assert.IsType(t, tt.want, NewLoader(tt.path), tt.path)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv("TEST_MATRIX_PASSWORD", "hunter2")
	path := writeFile(t, "bot.yaml", sampleYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "hunter2", cfg.Matrix.Password)
	assert.Equal(t, 443, cfg.Matrix.Port)
	assert.Equal(t, "matrix.example.com", cfg.Matrix.Domain)
	assert.Equal(t, "m.text", cfg.Matrix.MessageType)
	assert.Equal(t, "zabbixbot", cfg.Matrix.DeviceID)
	assert.Equal(t, "!zabbix", cfg.Bot.Prefix)
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout())
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay())
	assert.Equal(t, DefaultHookPort, cfg.HookServer.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_YAMLKeepsColorOrder(t *testing.T) {
	t.Setenv("TEST_MATRIX_PASSWORD", "x")
	cfg, err := LoadConfig(writeFile(t, "bot.yaml", sampleYAML))
	require.NoError(t, err)

	var patterns []string
	for _, r := range cfg.TriggerColors().Rules() {
		patterns = append(patterns, r.Pattern)
	}
	assert.Equal(t, []string{"warning", "disaster", "average", "not classified"}, patterns)
	assert.False(t, cfg.TriggerColors().FallbackInjected())
}

func TestParseYAML_ColorList(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
colors:
  zabbix:
    - high: "red,H"
    - warning: "yellow,W"
`))
	require.NoError(t, err)
	assert.Equal(t, ColorEntries{
		{Pattern: "high", Value: "red,H"},
		{Pattern: "warning", Value: "yellow,W"},
	}, cfg.Colors.Zabbix)
}

func TestParseYAML_InvalidColors(t *testing.T) {
	_, err := ParseYAML([]byte("colors:\n  zabbix: red\n"))
	assert.Error(t, err)
}

func TestLoadConfig_MissingEnvVar(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "bot.yaml", sampleYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_MATRIX_PASSWORD")
}

func TestLoadConfig_INI(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "bot.conf", sampleINI))
	require.NoError(t, err)

	assert.Equal(t, 8448, cfg.Matrix.Port)
	assert.Equal(t, "!OUZabccnPEwNGbzecZ", cfg.Matrix.Room)
	assert.Equal(t, map[string]string{
		"!OUZabccnPEwNGbzecZ:example.com": "home",
		"!short":                          "home",
	}, cfg.Bot.Rooms)
	require.Contains(t, cfg.Monitoring, "home")
	assert.Equal(t, "zabbix.example.com", cfg.Monitoring["home"].Host)
	assert.NotContains(t, cfg.Monitoring, "Matrix")

	assert.Equal(t, ColorEntries{
		{Pattern: "warning", Value: "#ffcc00,⚠"},
		{Pattern: "not classified", Value: "#000000,•"},
	}, cfg.Colors.Zabbix)
	assert.Equal(t, ColorEntries{{Pattern: "done", Value: "#00ff00,✔"}}, cfg.Colors.Progress)

	assert.True(t, cfg.Progress.Enabled)
	assert.Equal(t, []string{"!OUZabccnPEwNGbzecZ", "!other"}, cfg.Progress.Rooms)
	assert.Equal(t, "!dnsjedi", cfg.Progress.Command)
	assert.Equal(t, DefaultProgressHostGroup, cfg.Progress.HostGroup)
}

func TestParseINI_SectionMissing(t *testing.T) {
	_, err := ParseINI([]byte("[Zabbix-Bot]\n!room = home\n"))
	assert.ErrorIs(t, err, ErrSectionMissing)
}

func TestLoadConfig_FileMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestResolve_FlagsOnly(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.conf")
	overrides := Overrides{
		Username: "@zabbixbot:matrix.example.com",
		Password: "hunter2",
		Room:     "!room",
	}

	cfg, err := Resolve(missing, overrides, false)
	require.NoError(t, err)
	assert.Equal(t, "matrix.example.com", cfg.Matrix.Homeserver)
	assert.Equal(t, "!room", cfg.Matrix.Room)

	_, err = Resolve(missing, overrides, true)
	assert.ErrorIs(t, err, ErrConfigMissing)

	_, err = Resolve(missing, Overrides{Username: "u", Password: "p"}, false)
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestResolve_CLIAlwaysWins(t *testing.T) {
	path := writeFile(t, "bot.conf", sampleINI)

	tests := []struct {
		name      string
		overrides Overrides
		check     func(t *testing.T, m MatrixConfig)
	}{
		{
			name:      "no overrides keeps file values",
			overrides: Overrides{},
			check: func(t *testing.T, m MatrixConfig) {
				assert.Equal(t, "zabbixbot", m.Username)
				assert.Equal(t, 8448, m.Port)
			},
		},
		{
			name: "every field overridden",
			overrides: Overrides{
				Homeserver:  "other.example.org",
				Port:        443,
				Username:    "alice",
				Password:    "pw",
				Token:       "tok",
				Room:        "!elsewhere",
				MessageType: "m.notice",
			},
			check: func(t *testing.T, m MatrixConfig) {
				assert.Equal(t, "other.example.org", m.Homeserver)
				assert.Equal(t, 443, m.Port)
				assert.Equal(t, "alice", m.Username)
				assert.Equal(t, "pw", m.Password)
				assert.Equal(t, "tok", m.Token)
				assert.Equal(t, "!elsewhere", m.Room)
				assert.Equal(t, "m.notice", m.MessageType)
			},
		},
		{
			name:      "single field overridden",
			overrides: Overrides{Password: "from-flag"},
			check: func(t *testing.T, m MatrixConfig) {
				assert.Equal(t, "from-flag", m.Password)
				assert.Equal(t, "zabbixbot", m.Username)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(path, tt.overrides, true)
			require.NoError(t, err)
			tt.check(t, cfg.Matrix)
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		return &Config{Matrix: MatrixConfig{Homeserver: "matrix.example.com"}}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no transport", func(c *Config) { c.Matrix.Homeserver = "" }},
		{"bad message type", func(c *Config) { c.Matrix.MessageType = "m.emote" }},
		{"bad color mode", func(c *Config) { c.Bot.ColorMatch = "fuzzy" }},
		{"bad regex", func(c *Config) { c.Colors.Zabbix = ColorEntries{{Pattern: "(", Value: "a,b"}} }},
		{"negative timeout", func(c *Config) { c.Bot.QueryTimeout = "-1s" }},
		{"garbage delay", func(c *Config) { c.Bot.ReconnectDelay = "soon" }},
		{"realm without host", func(c *Config) { c.Monitoring = map[string]RealmConfig{"home": {}} }},
		{"progress collides", func(c *Config) {
			c.Progress.Enabled = true
			c.Progress.Command = "!zabbix"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_NoTransportIsSectionMissing(t *testing.T) {
	assert.ErrorIs(t, Validate(&Config{}), ErrSectionMissing)

	cfg := &Config{Bots: map[string]PlatformConfig{"telegram": {Enabled: true, Token: "t"}}}
	require.NoError(t, Validate(cfg))
	assert.Equal(t, []string{"telegram"}, cfg.EnabledBots())
}

func TestValidate_InjectsFallback(t *testing.T) {
	cfg := &Config{Matrix: MatrixConfig{Homeserver: "https://matrix.example.com:8448"}}
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "matrix.example.com", cfg.Matrix.Domain)
	assert.True(t, cfg.TriggerColors().FallbackInjected())
	assert.Equal(t, format.Style{Color: "#000000", Emoji: "•"}, cfg.TriggerColors().Match("anything"))
}

func TestRealmFor(t *testing.T) {
	cfg := &Config{
		Bot: BotConfig{Rooms: map[string]string{
			"!full:example.com": "home",
			"!short":            "home",
			"!dangling":         "gone",
		}},
		Monitoring: map[string]RealmConfig{"home": {Host: "zabbix.example.com"}},
	}

	name, realm, err := cfg.RealmFor("!full:example.com")
	require.NoError(t, err)
	assert.Equal(t, "home", name)
	assert.Equal(t, "zabbix.example.com", realm.Host)

	name, _, err = cfg.RealmFor("!short:example.com")
	require.NoError(t, err)
	assert.Equal(t, "home", name)

	_, _, err = cfg.RealmFor("!nobody:example.com")
	assert.ErrorIs(t, err, ErrUnknownRoom)

	name, _, err = cfg.RealmFor("!dangling:example.com")
	assert.ErrorIs(t, err, ErrUnknownRealm)
	assert.Equal(t, "gone", name)
}

func TestProgressAllowed(t *testing.T) {
	cfg := &Config{Progress: ProgressConfig{Enabled: true, Rooms: []string{"!ops"}}}
	assert.True(t, cfg.ProgressAllowed("!ops:example.com"))
	assert.True(t, cfg.ProgressAllowed("!ops"))
	assert.False(t, cfg.ProgressAllowed("!dev:example.com"))

	cfg.Progress.Rooms = nil
	assert.True(t, cfg.ProgressAllowed("!dev:example.com"))

	cfg.Progress.Enabled = false
	assert.False(t, cfg.ProgressAllowed("!ops"))
}

func TestRoomID(t *testing.T) {
	cfg := &Config{Matrix: MatrixConfig{Domain: "example.com"}}
	assert.Equal(t, "!abc:example.com", cfg.RoomID("!abc"))
	assert.Equal(t, "!abc:other.org", cfg.RoomID("!abc:other.org"))
	assert.Equal(t, "", cfg.RoomID(""))
}

func TestWarnings(t *testing.T) {
	t.Setenv("TEST_MATRIX_PASSWORD", "x")
	cfg, err := LoadConfig(writeFile(t, "bot.yaml", sampleYAML))
	require.NoError(t, err)

	warnings := Warnings(cfg)
	assert.Contains(t, warnings, "room !other is bound to unknown realm missing")
	for _, w := range warnings {
		assert.NotContains(t, w, "colors.zabbix")
	}
}

func TestShippedExampleConfigs(t *testing.T) {
	t.Setenv("MATRIX_PASSWORD", "pw")
	t.Setenv("ZABBIX_PASSWORD", "pw")
	t.Setenv("HOOK_TOKEN", "secret")

	cfg, err := LoadConfig("../../configs/matrix-zabbix-bot.yaml")
	require.NoError(t, err)
	assert.Equal(t, "home", cfg.Bot.Rooms["!OUZabccnPEwNGbzecZ"])
	assert.Equal(t, "secret", cfg.HookServer.Token)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout())
	assert.False(t, cfg.Logging.StdoutEnabled())
	assert.Equal(t, "127.0.0.1", cfg.HookServer.Host)

	cfg, err = LoadConfig("../../configs/zabbix-bot.conf")
	require.NoError(t, err)
	assert.Equal(t, "https://zabbix.example.com", cfg.Monitoring["home"].Host)
	assert.Len(t, cfg.Colors.Zabbix, 3)
}

func TestValidate_LoggingSwitchesKeepExplicitFalse(t *testing.T) {
	data := []byte(`
matrix:
  homeserver: matrix.example.com
logging:
  file: /tmp/bot.log
  compress: false
  enable_stdout: false
`)
	cfg, err := ParseYAML(data)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	assert.False(t, cfg.Logging.CompressEnabled())
	assert.False(t, cfg.Logging.StdoutEnabled())

	cfg, err = ParseINI([]byte("[Matrix]\nhomeserver = matrix.example.com\n\n[Logging]\ncompress = false\nenable_stdout = false\n"))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	assert.False(t, cfg.Logging.CompressEnabled())
	assert.False(t, cfg.Logging.StdoutEnabled())

	cfg = &Config{Matrix: MatrixConfig{Homeserver: "matrix.example.com"}}
	require.NoError(t, Validate(cfg))
	assert.True(t, cfg.Logging.CompressEnabled())
	assert.True(t, cfg.Logging.StdoutEnabled())
}

func TestValidate_ProgressColorsMatchAnywhere(t *testing.T) {
	cfg := &Config{
		Matrix: MatrixConfig{Homeserver: "matrix.example.com"},
		Colors: ColorsConfig{Progress: ColorEntries{
			{Pattern: "warning", Value: "red,!"},
			{Pattern: "not classified", Value: "blue,⏳"},
		}},
	}
	require.NoError(t, Validate(cfg))
	assert.Equal(t, format.MatchPrefix, cfg.TriggerColors().Mode())
	assert.Equal(t, format.MatchSubstring, cfg.ProgressColors().Mode())
	assert.Equal(t, "red", cfg.ProgressColors().Match("cm01: 5 chunks left, WARNING done in about 1:00:00").Color)

	cfg = &Config{
		Matrix:   MatrixConfig{Homeserver: "matrix.example.com"},
		Progress: ProgressConfig{ColorMatch: "prefix"},
	}
	require.NoError(t, Validate(cfg))
	assert.Equal(t, format.MatchPrefix, cfg.ProgressColors().Mode())

	cfg.Progress.ColorMatch = "fuzzy"
	assert.Error(t, Validate(cfg))
}

func TestValidate_HookServerBinding(t *testing.T) {
	tests := []struct {
		name    string
		hook    HookServerConfig
		wantErr bool
	}{
		{"default host is loopback", HookServerConfig{Enabled: true}, false},
		{"localhost without token", HookServerConfig{Enabled: true, Host: "localhost"}, false},
		{"ipv6 loopback", HookServerConfig{Enabled: true, Host: "::1"}, false},
		{"public without token", HookServerConfig{Enabled: true, Host: "0.0.0.0"}, true},
		{"public with token", HookServerConfig{Enabled: true, Host: "0.0.0.0", Token: "s3cret"}, false},
		{"disabled", HookServerConfig{Host: "0.0.0.0"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Matrix: MatrixConfig{Homeserver: "matrix.example.com"}, HookServer: tt.hook}
			err := Validate(cfg)
			if tt.wantErr {
				assert.ErrorContains(t, err, "hook_server.token")
				return
			}
			require.NoError(t, err)
			if tt.hook.Host == "" {
				assert.Equal(t, DefaultHookHost, cfg.HookServer.Host)
			}
		})
	}
}
