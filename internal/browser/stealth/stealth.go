// Package stealth masks the most common automation tells of a chromedp
// controlled browser before the first navigation.
package stealth

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultUserAgent is used when the config does not pin one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Persona is the profile presented to the target site.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"timezone,omitempty"`
	Locale    string   `json:"locale,omitempty"`
}

// PersonaFromConfig merges the stealth section with the browser user agent.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := Persona{
		UserAgent: cfg.UserAgent,
		Platform:  cfg.Stealth.Platform,
		Languages: cfg.Stealth.Languages,
		Timezone:  cfg.Stealth.Timezone,
		Locale:    cfg.Stealth.Locale,
	}
	if p.UserAgent == "" {
		p.UserAgent = DefaultUserAgent
	}
	if p.Platform == "" {
		p.Platform = "Win32"
	}
	if len(p.Languages) == 0 {
		p.Languages = []string{"en-US", "en"}
	}
	return p
}

// evasionTemplate expects a PERSONA constant to be prepended.
const evasionTemplate = `
(() => {
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };
  define(Navigator.prototype, 'webdriver', undefined);
  define(Navigator.prototype, 'languages', PERSONA.languages);
  define(Navigator.prototype, 'platform', PERSONA.platform);
  define(Navigator.prototype, 'plugins', [1, 2, 3, 4, 5].map(() => ({ name: 'Chrome PDF Plugin' })));
  if (!window.chrome) { window.chrome = { runtime: {} }; }
  const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
  if (originalQuery) {
    window.navigator.permissions.query = (p) =>
      p && p.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : originalQuery.call(window.navigator.permissions, p);
  }
})();
`

// EvasionScript renders the init script for p.
func EvasionScript(p Persona) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to marshal persona: %w", err)
	}
	return fmt.Sprintf("const PERSONA = %s;\n%s", raw, evasionTemplate), nil
}

// AcceptLanguage formats languages with descending q-values, floored at 0.7.
func AcceptLanguage(languages []string) string {
	if len(languages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(languages[0])
	for i := 1; i < len(languages); i++ {
		q := 1.0 - float64(i)*0.1
		if q < 0.7 {
			q = 0.7
		}
		fmt.Fprintf(&b, ",%s;q=%.1f", languages[i], q)
	}
	return b.String()
}

// Apply returns the CDP actions that install p on the current target.
func Apply(p Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.ActionFunc(func(ctx context.Context) error {
		script, err := EvasionScript(p)
		if err != nil {
			return err
		}

		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to enable network domain: %w", err)
		}
		if lang := AcceptLanguage(p.Languages); lang != "" {
			headers := network.Headers{"Accept-Language": lang}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
			}
		}

		override := emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(strings.Join(p.Languages, ","))
		if err := override.Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to set user agent override: %w", err)
		}

		if p.Timezone != "" {
			if err := emulation.SetTimezoneOverride(p.Timezone).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set timezone: %w", err)
			}
		}
		if p.Locale != "" {
			locale := strings.ReplaceAll(p.Locale, "_", "-")
			if err := emulation.SetLocaleOverride().WithLocale(locale).Do(ctx); err != nil {
				// Some Chrome builds reject locale overrides; not worth failing the launch.
				l.Debug("Locale override rejected", zap.String("locale", locale), zap.Error(err))
			}
		}

		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}

		l.Debug("Stealth persona applied", zap.String("user_agent", p.UserAgent))
		return nil
	})
}
