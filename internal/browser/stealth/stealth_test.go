package stealth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/config"
)

func TestPersonaFromConfig(t *testing.T) {
	t.Run("should fill gaps with defaults", func(t *testing.T) {
		p := PersonaFromConfig(config.BrowserConfig{})
		assert.Equal(t, DefaultUserAgent, p.UserAgent)
		assert.Equal(t, "Win32", p.Platform)
		assert.Equal(t, []string{"en-US", "en"}, p.Languages)
	})

	t.Run("should keep configured values", func(t *testing.T) {
		p := PersonaFromConfig(config.BrowserConfig{
			UserAgent: "UA/1.0",
			Stealth: config.StealthConfig{
				Platform:  "MacIntel",
				Languages: []string{"de-DE"},
				Timezone:  "Europe/Berlin",
				Locale:    "de_DE",
			},
		})
		assert.Equal(t, "UA/1.0", p.UserAgent)
		assert.Equal(t, "MacIntel", p.Platform)
		assert.Equal(t, []string{"de-DE"}, p.Languages)
		assert.Equal(t, "Europe/Berlin", p.Timezone)
	})
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "", AcceptLanguage(nil))
	assert.Equal(t, "en-US", AcceptLanguage([]string{"en-US"}))
	assert.Equal(t, "en-US,en;q=0.9,de;q=0.8", AcceptLanguage([]string{"en-US", "en", "de"}))
	// q-values bottom out at 0.7.
	got := AcceptLanguage([]string{"a", "b", "c", "d", "e", "f"})
	assert.True(t, strings.HasSuffix(got, "f;q=0.7"), got)
}

func TestEvasionScript(t *testing.T) {
	script, err := EvasionScript(Persona{UserAgent: "UA", Platform: "Linux x86_64", Languages: []string{"fr-FR"}})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "const PERSONA = {"))
	assert.Contains(t, script, `"platform":"Linux x86_64"`)
	assert.Contains(t, script, `"languages":["fr-FR"]`)
	assert.Contains(t, script, "'webdriver'")
}

func TestApply(t *testing.T) {
	assert.NotNil(t, Apply(PersonaFromConfig(config.BrowserConfig{}), zap.NewNop()))
}
