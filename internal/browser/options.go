package browser

import (
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/autologin-cli/internal/browser/stealth"
	"github.com/xkilldash9x/autologin-cli/internal/config"
)

type launchFlag struct {
	Name  string
	Value interface{}
}

// parseArg turns "--name=value" or "--name" into a flag. Anything without a
// name yields ok == false.
func parseArg(arg string) (launchFlag, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return launchFlag{}, false
	}
	name, value, hasValue := strings.Cut(arg, "=")
	if name == "" {
		return launchFlag{}, false
	}
	if !hasValue {
		return launchFlag{Name: name, Value: true}, true
	}
	return launchFlag{Name: name, Value: value}, true
}

// launchFlags lists the flags layered over chromedp's defaults, in order.
// User supplied args come last so they can override anything before them.
func launchFlags(cfg config.BrowserConfig, goos string) []launchFlag {
	flags := []launchFlag{
		// A false value removes the default flag.
		{"enable-automation", false},
		{"headless", cfg.Headless},
		{"disable-gpu", cfg.Headless},
		{"ignore-certificate-errors", cfg.IgnoreTLSErrors},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-infobars", true},
		{"no-first-run", true},
		{"password-store", "basic"},
	}
	if goos == "linux" {
		flags = append(flags,
			launchFlag{"no-sandbox", true},
			launchFlag{"disable-dev-shm-usage", true},
			launchFlag{"disable-setuid-sandbox", true},
		)
	}
	for _, arg := range cfg.Args {
		if f, ok := parseArg(arg); ok {
			flags = append(flags, f)
		}
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range launchFlags(cfg, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = stealth.DefaultUserAgent
	}
	opts = append(opts, chromedp.UserAgent(ua))

	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
