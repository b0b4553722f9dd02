package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autologin-cli/internal/config"
)

func flagValue(flags []launchFlag, name string) (interface{}, bool) {
	var (
		v     interface{}
		found bool
	)
	// Last one wins, matching how the allocator applies them.
	for _, f := range flags {
		if f.Name == name {
			v, found = f.Value, true
		}
	}
	return v, found
}

func TestParseArg(t *testing.T) {
	cases := []struct {
		in     string
		want   launchFlag
		wantOK bool
	}{
		{"--proxy-server=http://127.0.0.1:8080", launchFlag{"proxy-server", "http://127.0.0.1:8080"}, true},
		{"--incognito", launchFlag{"incognito", true}, true},
		{"lang=de-DE", launchFlag{"lang", "de-DE"}, true},
		{"  --window-position=0,0 ", launchFlag{"window-position", "0,0"}, true},
		{"--", launchFlag{}, false},
		{"--=value", launchFlag{}, false},
		{"", launchFlag{}, false},
	}
	for _, tc := range cases {
		got, ok := parseArg(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestLaunchFlags(t *testing.T) {
	t.Run("should disable automation tells", func(t *testing.T) {
		flags := launchFlags(config.BrowserConfig{Headless: true}, "darwin")

		v, ok := flagValue(flags, "enable-automation")
		require.True(t, ok)
		assert.Equal(t, false, v)

		v, _ = flagValue(flags, "disable-blink-features")
		assert.Equal(t, "AutomationControlled", v)

		v, _ = flagValue(flags, "headless")
		assert.Equal(t, true, v)

		_, ok = flagValue(flags, "no-sandbox")
		assert.False(t, ok, "sandbox flags are linux only")
	})

	t.Run("should add sandbox flags on linux", func(t *testing.T) {
		flags := launchFlags(config.BrowserConfig{}, "linux")
		for _, name := range []string{"no-sandbox", "disable-dev-shm-usage", "disable-setuid-sandbox"} {
			v, ok := flagValue(flags, name)
			assert.True(t, ok, name)
			assert.Equal(t, true, v, name)
		}
	})

	t.Run("should let custom args override defaults", func(t *testing.T) {
		flags := launchFlags(config.BrowserConfig{
			Headless: true,
			Args:     []string{"--headless=new", "--lang=fr-FR", "--"},
		}, "linux")

		v, _ := flagValue(flags, "headless")
		assert.Equal(t, "new", v)
		v, _ = flagValue(flags, "lang")
		assert.Equal(t, "fr-FR", v)
	})
}

func TestAllocatorOptions(t *testing.T) {
	base := len(allocatorOptions(config.BrowserConfig{}))
	withExtras := allocatorOptions(config.BrowserConfig{
		ExecPath: "/usr/bin/chromium",
		Viewport: map[string]int{"width": 800, "height": 600},
	})
	// ExecPath and WindowSize each add one option.
	assert.Equal(t, base+2, len(withExtras))

	noHeight := allocatorOptions(config.BrowserConfig{Viewport: map[string]int{"width": 800}})
	assert.Equal(t, base, len(noHeight))
}
