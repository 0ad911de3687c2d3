package config

import (
	"fmt"
	"strings"
)

// Overrides are connection settings given on the command line. Empty fields
// leave the file value untouched.
type Overrides struct {
	Homeserver  string
	Port        int
	Username    string
	Password    string
	Token       string
	Room        string
	MessageType string
}

// complete reports whether the overrides alone can drive a flags-only run
func (o Overrides) complete() bool {
	return o.Room != "" && o.Username != "" && o.Password != ""
}

// Merge copies every non-empty override onto cfg.Matrix
func Merge(cfg *Config, o Overrides) {
	m := &cfg.Matrix
	if o.Homeserver != "" {
		m.Homeserver = o.Homeserver
	}
	if o.Port != 0 {
		m.Port = o.Port
	}
	if o.Username != "" {
		m.Username = o.Username
	}
	if o.Password != "" {
		m.Password = o.Password
	}
	if o.Token != "" {
		m.Token = o.Token
	}
	if o.Room != "" {
		m.Room = o.Room
	}
	if o.MessageType != "" {
		m.MessageType = o.MessageType
	}
}

// RealmFor resolves the monitoring realm bound to room. The full room id is
// tried first, then the part before the first ':' so bindings may omit the
// server name.
func (c *Config) RealmFor(room string) (string, RealmConfig, error) {
	name, ok := c.Bot.Rooms[room]
	if !ok {
		if local, _, found := strings.Cut(room, ":"); found {
			name, ok = c.Bot.Rooms[local]
		}
	}
	if !ok {
		return "", RealmConfig{}, fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}

	realm, ok := c.Monitoring[name]
	if !ok {
		return name, RealmConfig{}, fmt.Errorf("%w: %s (room %s)", ErrUnknownRealm, name, room)
	}
	return name, realm, nil
}

// ProgressAllowed reports whether the progress command may run in room
func (c *Config) ProgressAllowed(room string) bool {
	if !c.Progress.Enabled {
		return false
	}
	if len(c.Progress.Rooms) == 0 {
		return true
	}
	local, _, _ := strings.Cut(room, ":")
	for _, r := range c.Progress.Rooms {
		if r == room || r == local {
			return true
		}
	}
	return false
}

// RoomID qualifies a bare room id with the configured domain
func (c *Config) RoomID(room string) string {
	if room == "" || strings.Contains(room, ":") || c.Matrix.Domain == "" {
		return room
	}
	return room + ":" + c.Matrix.Domain
}
