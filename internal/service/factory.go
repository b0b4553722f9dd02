// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/artifacts"
	"github.com/xkilldash9x/autologin-cli/internal/browser"
	"github.com/xkilldash9x/autologin-cli/internal/config"
	"github.com/xkilldash9x/autologin-cli/internal/humanoid"
	"github.com/xkilldash9x/autologin-cli/internal/login"
	"github.com/xkilldash9x/autologin-cli/internal/notify"
)

// Components holds everything a run needs, built once from the config.
type Components struct {
	Driver   browser.Driver
	Notifier notify.Notifier
	Store    *artifacts.Store
	Batch    *login.BatchRunner
}

// ComponentFactory builds the run components. The run command depends on
// this interface so tests can swap the browser out.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, notifier notify.Notifier, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory returns the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires driver, form stage, orchestrator, retry policy and batch
// runner. No browser is launched here.
func (f *concreteFactory) Create(_ context.Context, cfg *config.Config, notifier notify.Notifier, logger *zap.Logger) (*Components, error) {
	pacer := humanoid.New(nil, nil)
	driver := browser.NewChromeDriver(browser.ChromeOptions{
		Browser:      cfg.Browser,
		ReadyTimeout: cfg.Target.ReadyTimeout,
		TypingDelay:  cfg.Form.TypingDelay,
		TypingJitter: cfg.Form.TypingJitter,
		Pacer:        pacer,
	}, logger)
	return Assemble(cfg, driver, notifier, pacer, logger)
}

// Assemble builds the login pipeline on top of an existing driver.
func Assemble(cfg *config.Config, driver browser.Driver, notifier notify.Notifier, pacer *humanoid.Pacer, logger *zap.Logger) (*Components, error) {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if pacer == nil {
		pacer = humanoid.New(nil, nil)
	}

	store, err := artifacts.New(cfg.Artifacts, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Artifact store ready.", zap.String("dir", store.Dir()), zap.Bool("enabled", store.Enabled()))

	rules, err := login.NewRuleSet(cfg.Target.LoginPathPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier rules: %w", err)
	}

	form := login.NewFormStage(login.FormOptions{
		ElementTimeout: cfg.Form.ElementTimeout,
		PollInterval:   cfg.Form.PollInterval,
		ActionTimeout:  cfg.Form.ActionTimeout,
		NavigationWait: cfg.Form.NavigationWait,
		PostSubmitWait: cfg.Form.PostSubmitWait,
	}, login.DefaultSelectors(), pacer, logger)

	orch := login.NewOrchestrator(driver, notifier, store, form, rules, login.AttemptOptions{
		LoginURL:          cfg.Target.LoginURL,
		NavigationTimeout: cfg.Target.NavigationTimeout,
	}, logger)

	policy := login.NewRetryPolicy(orch, cfg.Retry.MaxRetries, cfg.Retry.Delay, pacer, logger)
	batch := login.NewBatchRunner(policy, notifier, pacer, login.BatchOptions{
		MinAccountDelay: cfg.Batch.MinAccountDelay,
		MaxAccountDelay: cfg.Batch.MaxAccountDelay,
	}, logger)
	logger.Debug("Login pipeline assembled.",
		zap.Int("max_retries", cfg.Retry.MaxRetries),
		zap.Duration("retry_delay", cfg.Retry.Delay),
	)

	return &Components{Driver: driver, Notifier: notifier, Store: store, Batch: batch}, nil
}
