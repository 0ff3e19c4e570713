// Package embed renders the script snippet customers paste into their site.
package embed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// ScriptURL is where the widget loader is served from.
const ScriptURL = "https://anasify.com/embed.js"

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

type Position string

const (
	BottomRight Position = "bottom-right"
	BottomLeft  Position = "bottom-left"
	TopRight    Position = "top-right"
	TopLeft     Position = "top-left"
)

var (
	ErrBotIDRequired   = errors.New("bot id is required")
	ErrInvalidTheme    = errors.New("theme must be one of light, dark, system")
	ErrInvalidPosition = errors.New("position must be one of bottom-right, bottom-left, top-right, top-left")
)

func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

func (p Position) Valid() bool {
	switch p {
	case BottomRight, BottomLeft, TopRight, TopLeft:
		return true
	}
	return false
}

// Options 描述嵌入片段的可配置项。
type Options struct {
	BotID        string   `json:"botId"`
	Theme        Theme    `json:"theme"`
	Position     Position `json:"position"`
	HideBranding bool     `json:"hideBranding"`
}

// ParseOptions builds Options from raw query values. Empty values fall back to
// light and bottom-right; anything else must be a known value.
func ParseOptions(botID, theme, position, hideBranding string) (Options, error) {
	opts := Options{
		BotID:    strings.TrimSpace(botID),
		Theme:    ThemeLight,
		Position: BottomRight,
	}
	if opts.BotID == "" {
		return Options{}, ErrBotIDRequired
	}

	if v := strings.ToLower(strings.TrimSpace(theme)); v != "" {
		opts.Theme = Theme(v)
		if !opts.Theme.Valid() {
			return Options{}, fmt.Errorf("%w: got %q", ErrInvalidTheme, theme)
		}
	}

	if v := strings.ToLower(strings.TrimSpace(position)); v != "" {
		opts.Position = Position(v)
		if !opts.Position.Valid() {
			return Options{}, fmt.Errorf("%w: got %q", ErrInvalidPosition, position)
		}
	}

	if v := strings.TrimSpace(hideBranding); v != "" {
		hide, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid hideBranding value %q: %w", hideBranding, err)
		}
		opts.HideBranding = hide
	}
	return opts, nil
}

var snippetTemplate = template.Must(template.New("snippet").Funcs(template.FuncMap{
	"js": template.JSEscapeString,
}).Parse(`<script>
  window.anasify = {
    botId: "{{js .BotID}}",
    theme: "{{.Theme}}",
    position: "{{.Position}}"{{if .HideBranding}},
    hideBranding: true{{end}}
  }
</script>
<script src="` + ScriptURL + `" async></script>`))

// Validate reports whether opts can be rendered.
func (o Options) Validate() error {
	if strings.TrimSpace(o.BotID) == "" {
		return ErrBotIDRequired
	}
	if !o.Theme.Valid() {
		return fmt.Errorf("%w: got %q", ErrInvalidTheme, o.Theme)
	}
	if !o.Position.Valid() {
		return fmt.Errorf("%w: got %q", ErrInvalidPosition, o.Position)
	}
	return nil
}

// Snippet renders the embed code. The output only depends on opts.
func Snippet(opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := snippetTemplate.Execute(&b, opts); err != nil {
		return "", fmt.Errorf("render embed snippet: %w", err)
	}
	return b.String(), nil
}
