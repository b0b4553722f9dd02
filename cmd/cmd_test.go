package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/browser"
	"github.com/xkilldash9x/autologin-cli/internal/config"
	"github.com/xkilldash9x/autologin-cli/internal/humanoid"
	"github.com/xkilldash9x/autologin-cli/internal/login"
	"github.com/xkilldash9x/autologin-cli/internal/notify"
	"github.com/xkilldash9x/autologin-cli/internal/observability"
	"github.com/xkilldash9x/autologin-cli/internal/service"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	os.Exit(m.Run())
}

// resetForTest restores package state and isolates the process environment.
func resetForTest(t *testing.T) (*recordingNotifier, *stubFactory) {
	t.Helper()
	cfgFile = ""
	osExit = os.Exit

	n := &recordingNotifier{}
	f := &stubFactory{}
	prevFactory, prevNotifier := componentFactory, newNotifier
	componentFactory = f
	newNotifier = func(config.NotifierConfig, *zap.Logger) notify.Notifier { return n }
	t.Cleanup(func() {
		componentFactory, newNotifier = prevFactory, prevNotifier
		cfgFile = ""
	})

	// config.yaml lookups resolve against the working directory.
	t.Chdir(t.TempDir())

	t.Setenv("AUTOLOGIN_ARTIFACTS_DIR", t.TempDir())
	t.Setenv("AUTOLOGIN_LOGGER_LEVEL", "fatal")
	return n, f
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	images   int
}

func (r *recordingNotifier) SendMessage(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *recordingNotifier) SendSummary(ctx context.Context, text string) {
	r.SendMessage(ctx, text)
}

func (r *recordingNotifier) SendMessageWithImage(_ context.Context, text string, _ []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	r.images++
}

// stubFactory assembles the real pipeline around a scripted driver.
type stubFactory struct {
	calls  int
	driver browser.Driver
	cfg    *config.Config
}

func (s *stubFactory) Create(_ context.Context, cfg *config.Config, n notify.Notifier, logger *zap.Logger) (*service.Components, error) {
	s.calls++
	s.cfg = cfg
	if s.driver == nil {
		return nil, errors.New("no driver scripted")
	}
	pacer := humanoid.New(nil, func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	return service.Assemble(cfg, s.driver, n, pacer, logger)
}

func TestExecuteVersion(t *testing.T) {
	resetForTest(t)
	var out bytes.Buffer

	code := execute(context.Background(), []string{"version"}, &out, &out)

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "autologin "+Version)

	t.Run("should ignore a broken config file", func(t *testing.T) {
		resetForTest(t)
		require.NoError(t, os.WriteFile("config.yaml", []byte("target: [unterminated"), 0o600))
		var out bytes.Buffer

		code := execute(context.Background(), []string{"version"}, &out, &out)

		assert.Equal(t, 0, code, out.String())
		assert.Contains(t, out.String(), "autologin "+Version)
	})
}

func TestRunConfigErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"malformed accounts": {
			"AUTOLOGIN_ACCOUNTS":         `{"john@example.com": `,
			"AUTOLOGIN_TARGET_LOGIN_URL": "https://example.com/auth/login",
		},
		"empty accounts object": {
			"AUTOLOGIN_ACCOUNTS":         `{}`,
			"AUTOLOGIN_TARGET_LOGIN_URL": "https://example.com/auth/login",
		},
		"null accounts": {
			"AUTOLOGIN_ACCOUNTS":         `null`,
			"AUTOLOGIN_TARGET_LOGIN_URL": "https://example.com/auth/login",
		},
		"missing login url": {
			"AUTOLOGIN_ACCOUNTS": `{"john@example.com":"pw"}`,
		},
	}

	for name, env := range cases {
		t.Run("should fail fast on "+name, func(t *testing.T) {
			n, f := resetForTest(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			var out, errOut bytes.Buffer

			code := execute(context.Background(), []string{"run"}, &out, &errOut)

			assert.Equal(t, 1, code)
			assert.Equal(t, 0, f.calls, "the driver must not be touched")
			assert.Contains(t, errOut.String(), string(login.CodeConfig))
			require.Len(t, n.messages, 1)
			assert.Contains(t, n.messages[0], "aborted during initialization")
			assert.NotContains(t, n.messages[0], "pw")
		})
	}
}

// scriptedDriver opens login pages that succeed unless the label is listed
// in failing.
type scriptedDriver struct {
	mu      sync.Mutex
	failing map[string]bool
	labels  []string
}

func (d *scriptedDriver) OpenSession(_ context.Context, opts browser.SessionOptions) (browser.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.labels = append(d.labels, opts.Label)
	if d.failing[opts.Label] {
		return nil, errors.New("browser crashed on launch")
	}
	return &okSession{}, nil
}

// okSession is a page that lands on a dashboard after any click.
type okSession struct {
	mu  sync.Mutex
	url string
}

func (s *okSession) Navigate(_ context.Context, url string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	return nil
}
func (s *okSession) Locate(sel string) browser.Element { return &okElement{s: s} }
func (s *okSession) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}
func (s *okSession) Title(context.Context) (string, error)    { return "Sign in", nil }
func (s *okSession) BodyText(context.Context) (string, error) { return "Email Password", nil }
func (s *okSession) Capture(_ context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}
func (s *okSession) ExpectNavigation(context.Context) func(time.Duration) error {
	return func(time.Duration) error { return nil }
}
func (s *okSession) Close() error { return nil }

type okElement struct{ s *okSession }

func (e *okElement) Selector() string                                 { return "" }
func (e *okElement) WaitVisible(context.Context, time.Duration) error { return nil }
func (e *okElement) Click(context.Context, time.Duration) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.url = "https://example.com/dashboard"
	return nil
}
func (e *okElement) Clear(context.Context) error                       { return nil }
func (e *okElement) Fill(context.Context, string, time.Duration) error { return nil }
func (e *okElement) Count(context.Context) (int, error)                { return 1, nil }
func (e *okElement) Text(context.Context) (string, error)              { return "", nil }

func TestRunBatch(t *testing.T) {
	accounts := `{"alice@example.com":"a","bob@example.com":"b"}`

	t.Run("should exit 0 when every account signs in", func(t *testing.T) {
		n, f := resetForTest(t)
		f.driver = &scriptedDriver{}
		t.Setenv("AUTOLOGIN_ACCOUNTS", accounts)
		var out bytes.Buffer

		code := execute(context.Background(), []string{"run", "--login-url", "https://example.com/auth/login"}, &out, &out)

		assert.Equal(t, 0, code, out.String())
		assert.Equal(t, 1, f.calls)
		assert.Contains(t, out.String(), "al***@example.com")
		assert.Contains(t, out.String(), "2 succeeded, 0 failed")
		assert.NotContains(t, out.String(), "alice@")
		require.NotEmpty(t, n.messages)
		assert.Contains(t, n.messages[len(n.messages)-1], "finished: SUCCESS")
	})

	t.Run("should exit 1 when any account fails", func(t *testing.T) {
		n, f := resetForTest(t)
		d := &scriptedDriver{failing: map[string]bool{"account-1/retry-0": true}}
		f.driver = d
		t.Setenv("AUTOLOGIN_ACCOUNTS", accounts)
		var out bytes.Buffer

		code := execute(context.Background(), []string{"run", "--login-url", "https://example.com/auth/login", "--max-retries", "0"}, &out, &out)

		assert.Equal(t, 1, code)
		assert.Equal(t, []string{"account-0/retry-0", "account-1/retry-0"}, d.labels)
		assert.Contains(t, out.String(), "1 succeeded, 1 failed")
		assert.True(t, strings.Contains(n.messages[len(n.messages)-1], "finished: FAILURE"))
	})

	t.Run("should let flags override the environment", func(t *testing.T) {
		_, f := resetForTest(t)
		f.driver = &scriptedDriver{}
		t.Setenv("AUTOLOGIN_ACCOUNTS", accounts)
		t.Setenv("AUTOLOGIN_RETRY_MAX_RETRIES", "5")
		t.Setenv("AUTOLOGIN_TARGET_LOGIN_URL", "https://env.example.com/auth/login")
		var out bytes.Buffer

		code := execute(context.Background(), []string{"run", "--login-url", "https://flag.example.com/auth/login", "--max-retries", "1", "--headless=false"}, &out, &out)

		require.Equal(t, 0, code, out.String())
		require.NotNil(t, f.cfg)
		assert.Equal(t, "https://flag.example.com/auth/login", f.cfg.Target.LoginURL)
		assert.Equal(t, 1, f.cfg.Retry.MaxRetries)
		assert.False(t, f.cfg.Browser.Headless)
	})

	t.Run("should read a config file", func(t *testing.T) {
		_, f := resetForTest(t)
		f.driver = &scriptedDriver{}
		path := filepath.Join(t.TempDir(), "autologin.yaml")
		require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
			"target:",
			"  login_url: https://file.example.com/auth/login",
			"retry:",
			"  max_retries: 0",
			`accounts: '{"carol@example.com":"c"}'`,
		}, "\n")), 0o600))
		var out bytes.Buffer

		code := execute(context.Background(), []string{"run", "--config", path}, &out, &out)

		require.Equal(t, 0, code, out.String())
		assert.Equal(t, "https://file.example.com/auth/login", f.cfg.Target.LoginURL)
		assert.Equal(t, 0, f.cfg.Retry.MaxRetries)
		assert.Contains(t, out.String(), "ca***@example.com")
	})

	t.Run("should report a broken config file", func(t *testing.T) {
		_, f := resetForTest(t)
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("target: [unterminated"), 0o600))
		var out bytes.Buffer

		code := execute(context.Background(), []string{"run", "--config", path}, &out, &out)

		assert.Equal(t, 1, code)
		assert.Equal(t, 0, f.calls)
		assert.Contains(t, out.String(), "failed to initialize configuration")
	})
}

func TestExecuteExitCode(t *testing.T) {
	resetForTest(t)
	var got int
	osExit = func(code int) { got = code }

	prevArgs := os.Args
	os.Args = []string{"autologin", "version"}
	t.Cleanup(func() { os.Args = prevArgs })

	Execute()
	assert.Equal(t, 0, got)
}
