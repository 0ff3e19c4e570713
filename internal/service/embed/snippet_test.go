package embed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func render(t *testing.T, opts Options) string {
	t.Helper()
	got, err := Snippet(opts)
	require.NoError(t, err)
	return got
}

func TestSnippetMatchesDashboardTemplate(t *testing.T) {
	got := render(t, Options{BotID: "bot-1", Theme: ThemeLight, Position: BottomRight})
	want := "<script>\n" +
		"  window.anasify = {\n" +
		"    botId: \"bot-1\",\n" +
		"    theme: \"light\",\n" +
		"    position: \"bottom-right\"\n" +
		"  }\n" +
		"</script>\n" +
		"<script src=\"https://anasify.com/embed.js\" async></script>"
	require.Equal(t, want, got)
}

func TestSnippetHideBranding(t *testing.T) {
	opts := Options{BotID: "bot-2", Theme: ThemeDark, Position: TopLeft}

	require.NotContains(t, render(t, opts), "hideBranding")

	opts.HideBranding = true
	got := render(t, opts)
	require.Contains(t, got, "position: \"top-left\",\n    hideBranding: true\n  }")
	require.Equal(t, 1, strings.Count(got, "hideBranding"))
}

func TestSnippetIsDeterministic(t *testing.T) {
	opts := Options{BotID: "bot-3", Theme: ThemeSystem, Position: BottomLeft, HideBranding: true}
	require.Equal(t, render(t, opts), render(t, opts))
}

func TestSnippetEscapesBotID(t *testing.T) {
	got := render(t, Options{BotID: `x"</script>`, Theme: ThemeLight, Position: BottomRight})
	require.NotContains(t, got, `"x"</script>`)
	require.Contains(t, got, `botId: "x\"\u003C/script\u003E"`)
}

func TestSnippetRejectsInvalidOptions(t *testing.T) {
	cases := map[string]struct {
		opts Options
		want error
	}{
		"missing bot":      {Options{Theme: ThemeLight, Position: BottomRight}, ErrBotIDRequired},
		"injected theme":   {Options{BotID: "b", Theme: `light"};alert(1);//`, Position: BottomRight}, ErrInvalidTheme},
		"empty position":   {Options{BotID: "b", Theme: ThemeDark}, ErrInvalidPosition},
		"unknown position": {Options{BotID: "b", Theme: ThemeDark, Position: "center"}, ErrInvalidPosition},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Snippet(tc.opts)
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, got)
		})
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions("bot-1", "", "", "")
	require.NoError(t, err)
	require.Equal(t, Options{BotID: "bot-1", Theme: ThemeLight, Position: BottomRight}, opts)

	opts, err = ParseOptions("bot-1", "Dark", "top-right", "true")
	require.NoError(t, err)
	require.Equal(t, Options{BotID: "bot-1", Theme: ThemeDark, Position: TopRight, HideBranding: true}, opts)

	_, err = ParseOptions("bot-1", "neon", "", "")
	require.ErrorIs(t, err, ErrInvalidTheme)

	_, err = ParseOptions("bot-1", "", "middle", "")
	require.ErrorIs(t, err, ErrInvalidPosition)

	_, err = ParseOptions("bot-1", "", "", "maybe")
	require.Error(t, err)

	_, err = ParseOptions(" ", "", "", "")
	require.ErrorIs(t, err, ErrBotIDRequired)
}
