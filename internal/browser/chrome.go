package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/browser/stealth"
	"github.com/xkilldash9x/autologin-cli/internal/config"
	"github.com/xkilldash9x/autologin-cli/internal/humanoid"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultReadyTimeout      = 15 * time.Second
	defaultOpTimeout         = 10 * time.Second
	launchTimeout            = 60 * time.Second
)

var _ Driver = (*ChromeDriver)(nil)

// ChromeOptions configures a ChromeDriver.
type ChromeOptions struct {
	Browser      config.BrowserConfig
	ReadyTimeout time.Duration
	TypingDelay  time.Duration
	TypingJitter time.Duration
	Pacer        *humanoid.Pacer
}

// ChromeDriver launches one headless Chrome process per session, so no
// cookies or storage survive from one session to the next.
type ChromeDriver struct {
	opts   ChromeOptions
	logger *zap.Logger
}

// NewChromeDriver returns a driver; no browser is started until OpenSession.
func NewChromeDriver(opts ChromeOptions, logger *zap.Logger) *ChromeDriver {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.Pacer == nil {
		opts.Pacer = humanoid.New(nil, nil)
	}
	return &ChromeDriver{opts: opts, logger: logger.Named("browser")}
}

// OpenSession launches a fresh browser, applies the stealth persona and
// returns the session bound to its first tab.
func (d *ChromeDriver) OpenSession(ctx context.Context, opts SessionOptions) (Session, error) {
	logger := d.logger.With(zap.String("session", opts.Label))
	sugar := logger.Sugar()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(d.opts.Browser)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	s := &chromeSession{
		ctx:          browserCtx,
		cancel:       browserCancel,
		allocCancel:  allocCancel,
		readyTimeout: d.opts.ReadyTimeout,
		typingDelay:  d.opts.TypingDelay,
		typingJitter: d.opts.TypingJitter,
		pacer:        d.opts.Pacer,
		logger:       logger,
	}

	var setup chromedp.Tasks
	if d.opts.Browser.Stealth.Enabled {
		setup = append(setup, stealth.Apply(stealth.PersonaFromConfig(d.opts.Browser), logger))
	}

	// The first Run allocates the browser and binds it to browserCtx, so it
	// must not run on a derived timeout context. Guard it out of band.
	stop := context.AfterFunc(ctx, browserCancel)
	guard := time.AfterFunc(launchTimeout, browserCancel)
	err := chromedp.Run(browserCtx, setup)
	stop()
	if !guard.Stop() && err == nil {
		err = fmt.Errorf("exceeded %s", launchTimeout)
	}
	if err != nil {
		_ = s.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("browser launch canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger.Debug("Browser session opened")
	return s, nil
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once

	readyTimeout time.Duration
	typingDelay  time.Duration
	typingJitter time.Duration
	pacer        *humanoid.Pacer
	logger       *zap.Logger
}

// scoped derives an operation context from the browser context that is also
// cancelled when the caller's ctx is.
func (s *chromeSession) scoped(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	s.logger.Debug("Navigating", zap.String("url", url), zap.Duration("timeout", timeout))

	navCtx, cancel := s.scoped(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %w", ErrNavigationTimeout, timeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	readyCtx, cancelReady := s.scoped(ctx, s.readyTimeout)
	defer cancelReady()
	if err := chromedp.Run(readyCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		return fmt.Errorf("%w: body not ready within %s: %w", ErrNavigationTimeout, s.readyTimeout, err)
	}
	return nil
}

func (s *chromeSession) Locate(selector string) Element {
	return &chromeElement{s: s, sel: selector}
}

func (s *chromeSession) CurrentURL(ctx context.Context) (string, error) {
	c, cancel := s.scoped(ctx, 0)
	defer cancel()
	var u string
	if err := chromedp.Run(c, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return u, nil
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	c, cancel := s.scoped(ctx, 0)
	defer cancel()
	var t string
	if err := chromedp.Run(c, chromedp.Title(&t)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return t, nil
}

// BodyText prefers the rendered innerText and falls back to parsing the
// serialized document.
func (s *chromeSession) BodyText(ctx context.Context) (string, error) {
	c, cancel := s.scoped(ctx, 0)
	defer cancel()

	var text string
	err := chromedp.Run(c, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err == nil {
		return text, nil
	}

	var doc string
	if htmlErr := chromedp.Run(c, chromedp.OuterHTML("html", &doc, chromedp.ByQuery)); htmlErr != nil {
		return "", fmt.Errorf("failed to read body text: %w", err)
	}
	s.logger.Debug("innerText unavailable, using parsed document", zap.Error(err))
	return ExtractText(doc), nil
}

func (s *chromeSession) Capture(ctx context.Context, path string) error {
	c, cancel := s.scoped(ctx, 0)
	defer cancel()

	var buf []byte
	// Quality 100 selects PNG.
	if err := chromedp.Run(c, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

func (s *chromeSession) ExpectNavigation(ctx context.Context) func(timeout time.Duration) error {
	loaded := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(s.ctx)
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			select {
			case loaded <- struct{}{}:
			default:
			}
		}
	})

	return func(timeout time.Duration) error {
		defer stopListening()
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-loaded:
			return nil
		case <-t.C:
			return fmt.Errorf("%w: no page load within %s", ErrNavigationTimeout, timeout)
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
}

// Close shuts the browser down and releases the allocator. Safe to call twice.
func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.logger.Debug("Browser session closed")
	})
	return err
}

type chromeElement struct {
	s   *chromeSession
	sel string
}

func (e *chromeElement) Selector() string { return e.sel }

func (e *chromeElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	c, cancel := e.s.scoped(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(c, chromedp.WaitVisible(e.sel, chromedp.BySearch)); err != nil {
		if ctx.Err() == nil && errors.Is(c.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %q not visible within %s", ErrElementTimeout, e.sel, timeout)
		}
		return fmt.Errorf("wait for %q failed: %w", e.sel, err)
	}
	return nil
}

func (e *chromeElement) Click(ctx context.Context, timeout time.Duration) error {
	c, cancel := e.s.scoped(ctx, timeout)
	defer cancel()
	err := chromedp.Run(c,
		chromedp.ScrollIntoView(e.sel, chromedp.BySearch),
		chromedp.Click(e.sel, chromedp.BySearch, chromedp.NodeVisible),
	)
	if err != nil {
		if ctx.Err() == nil && errors.Is(c.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: click on %q within %s", ErrElementTimeout, e.sel, timeout)
		}
		return fmt.Errorf("click action failed for selector '%s': %w", e.sel, err)
	}
	return nil
}

// Clear empties the field's value before anything is typed into it.
func (e *chromeElement) Clear(ctx context.Context) error {
	c, cancel := e.s.scoped(ctx, 0)
	defer cancel()
	if err := chromedp.Run(c, chromedp.Clear(e.sel, chromedp.BySearch)); err != nil {
		return fmt.Errorf("clear failed for selector '%s': %w", e.sel, err)
	}
	return nil
}

// Fill focuses the field and types value one key event at a time.
func (e *chromeElement) Fill(ctx context.Context, value string, timeout time.Duration) error {
	// Leave room for the keystroke pacing on top of the base timeout.
	budget := timeout + time.Duration(len(value))*(e.s.typingDelay+2*e.s.typingJitter)
	c, cancel := e.s.scoped(ctx, budget)
	defer cancel()

	err := chromedp.Run(c,
		chromedp.Focus(e.sel, chromedp.BySearch),
		chromedp.ActionFunc(func(actx context.Context) error {
			return e.s.pacer.Type(actx, value, e.s.typingDelay, e.s.typingJitter, func(kctx context.Context, key string) error {
				return chromedp.KeyEvent(key).Do(kctx)
			})
		}),
	)
	if err != nil {
		if ctx.Err() == nil && errors.Is(c.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: fill %q within %s", ErrElementTimeout, e.sel, budget)
		}
		return fmt.Errorf("type action failed for selector '%s': %w", e.sel, err)
	}
	return nil
}

func (e *chromeElement) nodes(ctx context.Context) ([]*cdp.Node, error) {
	c, cancel := e.s.scoped(ctx, 0)
	defer cancel()
	var nodes []*cdp.Node
	if err := chromedp.Run(c, chromedp.Nodes(e.sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", e.sel, err)
	}
	return nodes, nil
}

func (e *chromeElement) Count(ctx context.Context) (int, error) {
	nodes, err := e.nodes(ctx)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	nodes, err := e.nodes(ctx)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%w: %q", ErrElementNotFound, e.sel)
	}

	c, cancel := e.s.scoped(ctx, 0)
	defer cancel()
	var text string
	if err := chromedp.Run(c, chromedp.Text([]cdp.NodeID{nodes[0].NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read text of %q failed: %w", e.sel, err)
	}
	return text, nil
}
