package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autologin-cli/internal/browser"
	"github.com/xkilldash9x/autologin-cli/internal/humanoid"
)

// Selectors lists candidate selectors per field, most specific first.
type Selectors struct {
	Username []string
	Password []string
	Submit   []string
}

var usernameSelectors = []string{
	"input[name='email']",
	"input[name='username']",
	"input[id='email']",
	"input[id='username']",
	"input[name='login']",
	"input[autocomplete='username']",
	"input[type='email']",
	"input[name*='user' i]",
	"input[name*='mail' i]",
	"input[type='text']",
}

var passwordSelectors = []string{
	"input[name='password']",
	"input[id='password']",
	"input[autocomplete='current-password']",
	"input[type='password']",
}

var submitTypeSelectors = []string{
	"button[type='submit']",
	"input[type='submit']",
	"button[name='login']",
	"button[id*='login' i]",
}

// submitLabels are matched against button text, lowercased.
var submitLabels = []string{
	"log in", "login", "sign in", "continue",
	"anmelden", "einloggen", "weiter",
	"se connecter", "connexion",
	"iniciar sesión", "entrar",
	"accedi",
}

const xpathLower = `translate(%s, 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz')`

// labelSelectors builds XPath selectors that find buttons by their label.
func labelSelectors(labels []string) []string {
	text := fmt.Sprintf(xpathLower, "normalize-space(.)")
	value := fmt.Sprintf(xpathLower, "@value")
	out := make([]string, 0, 2*len(labels))
	for _, l := range labels {
		out = append(out,
			fmt.Sprintf(`//button[contains(%s, '%s')]`, text, l),
			fmt.Sprintf(`//input[@type='submit' or @type='button'][contains(%s, '%s')]`, value, l),
		)
	}
	return out
}

// DefaultSelectors are used unless the caller overrides them.
func DefaultSelectors() Selectors {
	return Selectors{
		Username: append([]string(nil), usernameSelectors...),
		Password: append([]string(nil), passwordSelectors...),
		Submit:   append(append([]string(nil), submitTypeSelectors...), labelSelectors(submitLabels)...),
	}
}

// FormOptions bounds every wait in the form stage.
type FormOptions struct {
	ElementTimeout time.Duration
	PollInterval   time.Duration
	ActionTimeout  time.Duration
	NavigationWait time.Duration
	PostSubmitWait time.Duration
}

// FormStage fills and submits the login form.
type FormStage struct {
	opts      FormOptions
	selectors Selectors
	pacer     *humanoid.Pacer
	logger    *zap.Logger
}

func NewFormStage(opts FormOptions, selectors Selectors, pacer *humanoid.Pacer, logger *zap.Logger) *FormStage {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	return &FormStage{opts: opts, selectors: selectors, pacer: pacer, logger: logger.Named("form")}
}

// FormHooks lets the orchestrator follow progress without owning the flow.
type FormHooks struct {
	// OnState is called on entering FORM_READY and SUBMITTED.
	OnState func(State)
	// BeforeSubmit runs right before the submit click.
	BeforeSubmit func(ctx context.Context)
}

// FillAndSubmit runs the form stage against s. Every failure comes back as
// a *Fault; the caller never has to inspect driver errors.
func (f *FormStage) FillAndSubmit(ctx context.Context, s browser.Session, cred Credential, hooks FormHooks) *Fault {
	if hooks.OnState == nil {
		hooks.OnState = func(State) {}
	}
	if hooks.BeforeSubmit == nil {
		hooks.BeforeSubmit = func(context.Context) {}
	}

	deadline := time.Now().Add(f.opts.ElementTimeout)
	user, err := f.resolve(ctx, s, "username", f.selectors.Username, deadline)
	if err != nil {
		return f.fault(StateBotCheckClear, err)
	}
	pass, err := f.resolve(ctx, s, "password", f.selectors.Password, deadline)
	if err != nil {
		return f.fault(StateBotCheckClear, err)
	}
	hooks.OnState(StateFormReady)

	if err := f.fill(ctx, user, cred.Identity); err != nil {
		return f.fault(StateFormReady, fmt.Errorf("username field: %w", err))
	}
	if err := f.pacer.Pause(ctx, 150*time.Millisecond, 250*time.Millisecond); err != nil {
		return f.fault(StateFormReady, err)
	}
	if err := f.fill(ctx, pass, cred.Secret); err != nil {
		return f.fault(StateFormReady, fmt.Errorf("password field: %w", err))
	}

	submit, err := f.resolve(ctx, s, "submit", f.selectors.Submit, time.Now().Add(f.opts.ElementTimeout))
	if err != nil {
		return f.fault(StateFormReady, err)
	}

	hooks.BeforeSubmit(ctx)
	if err := f.submit(ctx, s, submit); err != nil {
		return f.fault(StateFormReady, err)
	}
	hooks.OnState(StateSubmitted)

	if err := f.pacer.Wait(ctx, f.opts.PostSubmitWait); err != nil {
		return f.fault(StateSubmitted, err)
	}
	return nil
}

// resolve polls candidates in order until one is present and visible or the
// deadline passes.
func (f *FormStage) resolve(ctx context.Context, s browser.Session, field string, candidates []string, deadline time.Time) (browser.Element, error) {
	for {
		for _, sel := range candidates {
			el := s.Locate(sel)
			n, err := el.Count(ctx)
			if err != nil || n == 0 {
				continue
			}
			if err := el.WaitVisible(ctx, f.opts.PollInterval); err == nil {
				f.logger.Debug("Resolved form element", zap.String("field", field), zap.String("selector", sel))
				return el, nil
			}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s field not ready within %s", browser.ErrElementTimeout, field, f.opts.ElementTimeout)
		}
		if err := f.pacer.Wait(ctx, f.opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

// fill empties the field before typing; some front ends ignore a fill over
// a pre-populated value.
func (f *FormStage) fill(ctx context.Context, el browser.Element, value string) error {
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.Fill(ctx, value, f.opts.ActionTimeout)
}

// submit clicks while concurrently waiting for the resulting navigation. A
// missing navigation is normal for single-page apps.
func (f *FormStage) submit(ctx context.Context, s browser.Session, el browser.Element) error {
	g, gctx := errgroup.WithContext(ctx)
	waitNav := s.ExpectNavigation(gctx)

	g.Go(func() error {
		if err := waitNav(f.opts.NavigationWait); err != nil {
			f.logger.Debug("No navigation after submit", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		return el.Click(gctx, f.opts.ActionTimeout)
	})
	return g.Wait()
}

func (f *FormStage) fault(stage State, err error) *Fault {
	code := CodeUncaughtFault
	if errors.Is(err, browser.ErrElementTimeout) || errors.Is(err, browser.ErrElementNotFound) {
		code = CodeElementTimeout
	}
	return NewFault(code, stage, strings.TrimSpace(err.Error()), err)
}
