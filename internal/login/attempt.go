package login

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/artifacts"
	"github.com/xkilldash9x/autologin-cli/internal/browser"
	"github.com/xkilldash9x/autologin-cli/internal/notify"
)

// Capture stage names, used in artifact file names.
const (
	stageBotCheck     = "bot_check"
	stageBeforeSubmit = "before_submit"
	stagePostSubmit   = "post_submit"
	stageFault        = "fault"
)

// AttemptOptions configures the orchestrator.
type AttemptOptions struct {
	LoginURL          string
	NavigationTimeout time.Duration
	// ProbeTimeout bounds the short reads used for snapshots and captures.
	ProbeTimeout time.Duration
}

// Orchestrator runs one login attempt from an empty browser to a verdict.
type Orchestrator struct {
	driver   browser.Driver
	notifier notify.Notifier
	store    *artifacts.Store
	form     *FormStage
	rules    RuleSet
	opts     AttemptOptions
	logger   *zap.Logger
}

func NewOrchestrator(
	driver browser.Driver,
	notifier notify.Notifier,
	store *artifacts.Store,
	form *FormStage,
	rules RuleSet,
	opts AttemptOptions,
	logger *zap.Logger,
) *Orchestrator {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Orchestrator{
		driver:   driver,
		notifier: notifier,
		store:    store,
		form:     form,
		rules:    rules,
		opts:     opts,
		logger:   logger.Named("attempt"),
	}
}

// attemptRun carries the mutable state of a single attempt.
type attemptRun struct {
	o       *Orchestrator
	actx    AttemptContext
	session browser.Session
	state   State
	logger  *zap.Logger
}

// Attempt never returns a Go error and never panics: every failure path
// ends as a FAILURE result. The browser session is closed before it returns.
func (o *Orchestrator) Attempt(ctx context.Context, actx AttemptContext) (res AttemptResult) {
	run := &attemptRun{
		o:     o,
		actx:  actx,
		state: StateStart,
		logger: o.logger.With(
			zap.String("account", MaskIdentity(actx.Credential.Identity)),
			zap.Int("account_index", actx.AccountIndex),
			zap.Int("retry", actx.RetryIndex),
		),
	}

	defer func() {
		if r := recover(); r != nil {
			run.logger.Error("Attempt panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res = run.faulted(ctx, NewFault(CodeUncaughtFault, run.state, fmt.Sprintf("panic: %v", r), nil))
		}
		if run.session != nil {
			if err := run.session.Close(); err != nil {
				run.logger.Debug("Session close reported an error", zap.Error(err))
			}
		}
	}()

	return run.execute(ctx)
}

func (r *attemptRun) execute(ctx context.Context) AttemptResult {
	o := r.o
	r.logger.Info("Starting login attempt")

	session, err := o.driver.OpenSession(ctx, browser.SessionOptions{Label: r.actx.Label()})
	if err != nil {
		return r.faulted(ctx, NewFault(CodeUncaughtFault, r.state, "failed to open browser session: "+err.Error(), err))
	}
	r.session = session

	if err := session.Navigate(ctx, o.opts.LoginURL, o.opts.NavigationTimeout); err != nil {
		code := CodeUncaughtFault
		if errors.Is(err, browser.ErrNavigationTimeout) {
			code = CodeNavigationTimeout
		}
		return r.faulted(ctx, NewFault(code, r.state, err.Error(), err))
	}
	r.state = StateNavigated

	if pattern, found := DetectBotCheck(r.pageText(ctx)); found {
		r.state = StateBotCheckDetected
		r.logger.Warn("Bot-check detected; abandoning account", zap.String("pattern", pattern))
		image := r.capture(ctx, stageBotCheck)
		fault := NewFault(CodeBotCheck, r.state, "bot-check", nil)
		o.notifier.SendMessageWithImage(ctx, failureMessage(r.actx, fault, "matched "+pattern), image)
		return AttemptResult{Status: StatusFailure, Reason: "bot-check", Fault: fault, Final: r.state}
	}
	r.state = StateBotCheckClear

	hooks := FormHooks{
		OnState:      func(s State) { r.state = s },
		BeforeSubmit: func(ctx context.Context) { r.capture(ctx, stageBeforeSubmit) },
	}
	if fault := o.form.FillAndSubmit(ctx, session, r.actx.Credential, hooks); fault != nil {
		return r.faulted(ctx, fault)
	}

	snap, err := r.snapshot(ctx)
	if err != nil {
		return r.faulted(ctx, NewFault(CodeUncaughtFault, r.state, err.Error(), err))
	}
	verdict := Classify(snap, o.rules)
	r.state = StateClassified
	image := r.capture(ctx, stagePostSubmit)

	if verdict.Status == StatusSuccess {
		r.logger.Info("Login classified as success", zap.String("reason", verdict.Reason))
		return AttemptResult{Status: StatusSuccess, Reason: verdict.Reason, Final: r.state}
	}

	fault := NewFault(CodeClassifiedFailure, r.state, verdict.Reason, nil)
	r.logger.Warn("Login classified as failure", zap.String("reason", verdict.Reason))
	o.notifier.SendMessageWithImage(ctx, failureMessage(r.actx, fault, ""), image)
	return AttemptResult{Status: StatusFailure, Reason: verdict.Reason, Fault: fault, Final: r.state}
}

// faulted reports f with a best-effort capture and turns it into a result.
func (r *attemptRun) faulted(ctx context.Context, f *Fault) AttemptResult {
	if f.Stage == "" {
		f.Stage = r.state
	}
	r.state = StateFaulted
	r.logger.Warn("Attempt faulted",
		zap.String("code", string(f.Code)),
		zap.String("stage", string(f.Stage)),
		zap.String("message", f.Message),
	)
	image := r.capture(ctx, stageFault)
	r.o.notifier.SendMessageWithImage(ctx, failureMessage(r.actx, f, ""), image)
	return AttemptResult{Status: StatusFailure, Reason: f.Message, Fault: f, Final: r.state}
}

// capture writes a screenshot for stage and returns its bytes for the
// notifier. Any problem yields nil.
func (r *attemptRun) capture(ctx context.Context, stage string) (image []byte) {
	store := r.o.store
	if r.session == nil || !store.Enabled() {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Debug("Capture panicked", zap.String("stage", stage), zap.Any("panic", p))
			image = nil
		}
	}()

	path := store.Path(stage, r.actx.AccountIndex, r.actx.Credential.Identity, r.actx.RetryIndex)
	cctx, cancel := context.WithTimeout(ctx, r.o.opts.ProbeTimeout)
	defer cancel()
	if err := r.session.Capture(cctx, path); err != nil {
		r.logger.Debug("Capture failed", zap.String("stage", stage), zap.Error(err))
		return nil
	}
	return store.Read(path)
}

// pageText is the title plus body text. Unreadable parts are left out.
func (r *attemptRun) pageText(ctx context.Context) string {
	pctx, cancel := context.WithTimeout(ctx, r.o.opts.ProbeTimeout)
	defer cancel()

	var parts []string
	if title, err := r.session.Title(pctx); err == nil {
		parts = append(parts, title)
	}
	body, err := r.session.BodyText(pctx)
	if err != nil {
		r.logger.Debug("Body text unavailable for bot-check scan", zap.Error(err))
	} else {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n")
}

func (r *attemptRun) snapshot(ctx context.Context) (PageSnapshot, error) {
	pctx, cancel := context.WithTimeout(ctx, r.o.opts.ProbeTimeout)
	defer cancel()

	u, err := r.session.CurrentURL(pctx)
	if err != nil {
		return PageSnapshot{}, fmt.Errorf("failed to read post-submit url: %w", err)
	}
	snap := PageSnapshot{URL: u}
	if snap.Title, err = r.session.Title(pctx); err != nil {
		r.logger.Debug("Title unavailable", zap.Error(err))
	}
	if snap.Text, err = r.session.BodyText(pctx); err != nil {
		r.logger.Debug("Body text unavailable", zap.Error(err))
	}

	for _, sel := range ErrorSelectors {
		el := r.session.Locate(sel)
		if n, err := el.Count(pctx); err != nil || n == 0 {
			continue
		}
		if t, err := el.Text(pctx); err == nil && strings.TrimSpace(t) != "" {
			snap.ErrorTexts = append(snap.ErrorTexts, t)
		}
	}
	return snap, nil
}
