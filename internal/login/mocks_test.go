package login

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autologin-cli/internal/browser"
	"github.com/xkilldash9x/autologin-cli/internal/humanoid"
)

// -- testify doubles --

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) OpenSession(ctx context.Context, opts browser.SessionOptions) (browser.Session, error) {
	args := m.Called(ctx, opts)
	if s := args.Get(0); s != nil {
		return s.(browser.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendMessage(ctx context.Context, text string) {
	m.Called(ctx, text)
}

func (m *MockNotifier) SendMessageWithImage(ctx context.Context, text string, image []byte) {
	m.Called(ctx, text, image)
}

func (m *MockNotifier) SendSummary(ctx context.Context, text string) {
	m.Called(ctx, text)
}

type MockAttempter struct {
	mock.Mock
}

func (m *MockAttempter) Attempt(ctx context.Context, actx AttemptContext) AttemptResult {
	args := m.Called(ctx, actx)
	return args.Get(0).(AttemptResult)
}

type MockAccountRunner struct {
	mock.Mock
}

func (m *MockAccountRunner) Run(ctx context.Context, cred Credential, accountIndex int) Outcome {
	args := m.Called(ctx, cred, accountIndex)
	return args.Get(0).(Outcome)
}

// -- scriptable page --

// fakeDriver hands out a fresh fakePage per session, built by newPage.
type fakeDriver struct {
	mu      sync.Mutex
	newPage func(opts browser.SessionOptions) *fakePage
	pages   []*fakePage
	openErr error
}

func (d *fakeDriver) OpenSession(_ context.Context, opts browser.SessionOptions) (browser.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	p := d.newPage(opts)
	d.pages = append(d.pages, p)
	return p, nil
}

func (d *fakeDriver) opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pages)
}

// fakePage is an in-memory login page. Selectors in visible exist and are
// shown; selectors in hidden exist but never become visible.
type fakePage struct {
	mu         sync.Mutex
	url        string
	title      string
	body       string
	visible    map[string]bool
	hidden     map[string]bool
	errorTexts map[string]string
	filled     map[string]string
	cleared    []string
	clicked    []string
	captures   []string

	navErr       error
	bodyErr      error
	clickErr     error
	captureErr   error
	expectNavErr error
	panicOnFill  bool
	// afterClick mutates the page the way a real submit would.
	afterClick func(p *fakePage)

	closed int
}

func newLoginPage(loginURL string) *fakePage {
	return &fakePage{
		url:        loginURL,
		title:      "Sign in",
		body:       "Sign in to your account Email Password Log in",
		visible:    map[string]bool{"input[name='email']": true, "input[type='password']": true, "button[type='submit']": true},
		hidden:     map[string]bool{},
		errorTexts: map[string]string{},
		filled:     map[string]string{},
	}
}

func (p *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navErr != nil {
		return p.navErr
	}
	p.url = url
	return nil
}

func (p *fakePage) Locate(selector string) browser.Element {
	return &fakeElement{page: p, sel: selector}
}

func (p *fakePage) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Title(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *fakePage) BodyText(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body, p.bodyErr
}

func (p *fakePage) Capture(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.captureErr != nil {
		return p.captureErr
	}
	p.captures = append(p.captures, filepath.Base(path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("\x89PNG"), 0o644)
}

func (p *fakePage) ExpectNavigation(ctx context.Context) func(time.Duration) error {
	return func(time.Duration) error {
		if p.expectNavErr != nil {
			return p.expectNavErr
		}
		return ctx.Err()
	}
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePage) snapshotCaptures() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.captures...)
}

type fakeElement struct {
	page *fakePage
	sel  string
}

func (e *fakeElement) Selector() string { return e.sel }

func (e *fakeElement) WaitVisible(context.Context, time.Duration) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.page.visible[e.sel] {
		return nil
	}
	return browser.ErrElementTimeout
}

func (e *fakeElement) Click(context.Context, time.Duration) error {
	e.page.mu.Lock()
	if e.page.clickErr != nil {
		err := e.page.clickErr
		e.page.mu.Unlock()
		return err
	}
	e.page.clicked = append(e.page.clicked, e.sel)
	after := e.page.afterClick
	e.page.mu.Unlock()
	if after != nil {
		e.page.mu.Lock()
		after(e.page)
		e.page.mu.Unlock()
	}
	return nil
}

func (e *fakeElement) Clear(context.Context) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.page.cleared = append(e.page.cleared, e.sel)
	delete(e.page.filled, e.sel)
	return nil
}

func (e *fakeElement) Fill(_ context.Context, value string, _ time.Duration) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.page.panicOnFill {
		panic("renderer crashed")
	}
	e.page.filled[e.sel] = value
	return nil
}

func (e *fakeElement) Count(context.Context) (int, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.page.visible[e.sel] || e.page.hidden[e.sel] {
		return 1, nil
	}
	if _, ok := e.page.errorTexts[e.sel]; ok {
		return 1, nil
	}
	return 0, nil
}

func (e *fakeElement) Text(context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if t, ok := e.page.errorTexts[e.sel]; ok {
		return t, nil
	}
	return "", browser.ErrElementNotFound
}

// -- pacing --

// recordingSleep returns immediately and remembers every requested wait.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestPacer(rec *recordingSleep) *humanoid.Pacer {
	return humanoid.New(rand.New(rand.NewSource(7)), rec.sleep)
}

var errBoom = errors.New("boom")
