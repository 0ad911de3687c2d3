// Package format renders monitoring records into the HTML snippets posted
// to chat rooms.
package format

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"golang.org/x/net/html"
)

// MatchMode selects how color rule patterns are matched against a message
type MatchMode string

const (
	// MatchPrefix anchors the pattern at the start of the message, followed
	// by a colon or whitespace
	MatchPrefix MatchMode = "prefix"
	// MatchSubstring matches the pattern anywhere in the message
	MatchSubstring MatchMode = "substring"
)

// ParseMatchMode validates a configured mode; empty means MatchPrefix
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchPrefix:
		return MatchPrefix, nil
	case MatchSubstring:
		return MatchSubstring, nil
	default:
		return "", fmt.Errorf("unknown color match mode %q (want %q or %q)", s, MatchPrefix, MatchSubstring)
	}
}

// Style is the color and emoji applied to a matched message
type Style struct {
	Color string
	Emoji string
}

// ParseStyle splits a "color,emoji" value on its first comma
func ParseStyle(value string) Style {
	color, emoji, _ := strings.Cut(value, ",")
	return Style{
		Color: strings.TrimSpace(color),
		Emoji: strings.TrimSpace(emoji),
	}
}

// Entry is one configured pattern -> "color,emoji" pair, in file order
type Entry struct {
	Pattern string
	Value   string
}

// ColorRule is a compiled Entry
type ColorRule struct {
	Pattern string
	Style   Style
	re      *regexp.Regexp
}

// ColorTable is an ordered list of rules with a mandatory fallback
type ColorTable struct {
	mode             MatchMode
	rules            []ColorRule
	fallback         Style
	fallbackInjected bool
}

// NewColorTable compiles entries in order. The entry named "not classified"
// is the fallback; when it is missing the default fallback style is used and
// FallbackInjected reports true.
func NewColorTable(mode MatchMode, entries []Entry) (*ColorTable, error) {
	t := &ColorTable{mode: mode}
	foundFallback := false

	for _, e := range entries {
		pattern := strings.TrimSpace(e.Pattern)
		if pattern == "" {
			continue
		}
		re, err := compileRule(mode, pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid color pattern %q: %w", pattern, err)
		}
		style := ParseStyle(e.Value)
		t.rules = append(t.rules, ColorRule{Pattern: pattern, Style: style, re: re})

		if strings.EqualFold(pattern, constants.FallbackColorRule) {
			t.fallback = style
			foundFallback = true
		}
	}

	if !foundFallback {
		t.fallback = ParseStyle(constants.DefaultFallbackStyle)
		t.fallbackInjected = true
	}
	return t, nil
}

func compileRule(mode MatchMode, pattern string) (*regexp.Regexp, error) {
	if mode == MatchSubstring {
		return regexp.Compile("(?i)" + pattern)
	}
	return regexp.Compile(`(?i)^(?:` + pattern + `)[:\s]`)
}

// Rules returns the compiled rules in match order
func (t *ColorTable) Rules() []ColorRule {
	if t == nil {
		return nil
	}
	return t.rules
}

// Mode returns the match mode
func (t *ColorTable) Mode() MatchMode {
	if t == nil {
		return MatchPrefix
	}
	return t.mode
}

// FallbackInjected reports whether the table lacked a "not classified" rule
func (t *ColorTable) FallbackInjected() bool {
	return t == nil || t.fallbackInjected
}

// Match returns the style of the first rule matching message, or the fallback
func (t *ColorTable) Match(message string) Style {
	if t == nil {
		return ParseStyle(constants.DefaultFallbackStyle)
	}
	for _, r := range t.rules {
		if r.re.MatchString(message) {
			return r.Style
		}
	}
	return t.fallback
}

// Colorize wraps the escaped message in a font color span prefixed by the
// matched emoji
func (t *ColorTable) Colorize(message string) string {
	style := t.Match(message)

	var b strings.Builder
	b.WriteString(`<font color="`)
	b.WriteString(html.EscapeString(style.Color))
	b.WriteString(`">`)
	if style.Emoji != "" {
		b.WriteString(html.EscapeString(style.Emoji))
		b.WriteString(" ")
	}
	b.WriteString(html.EscapeString(message))
	b.WriteString("</font>")
	return b.String()
}
