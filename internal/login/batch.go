package login

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/humanoid"
	"github.com/xkilldash9x/autologin-cli/internal/notify"
)

// AccountRunner produces the Outcome for one account. *RetryPolicy is the
// production one.
type AccountRunner interface {
	Run(ctx context.Context, cred Credential, accountIndex int) Outcome
}

// BatchOptions bounds the random pause between two accounts.
type BatchOptions struct {
	MinAccountDelay time.Duration
	MaxAccountDelay time.Duration
}

// BatchRunner processes accounts one after another on the calling goroutine.
type BatchRunner struct {
	runner   AccountRunner
	notifier notify.Notifier
	pacer    *humanoid.Pacer
	opts     BatchOptions
	logger   *zap.Logger
	newID    func() string
}

func NewBatchRunner(runner AccountRunner, notifier notify.Notifier, pacer *humanoid.Pacer, opts BatchOptions, logger *zap.Logger) *BatchRunner {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &BatchRunner{
		runner:   runner,
		notifier: notifier,
		pacer:    pacer,
		opts:     opts,
		logger:   logger.Named("batch"),
		newID:    func() string { return uuid.New().String() },
	}
}

// Run returns exactly one Outcome per credential, in input order, and sends
// the summary notification once every account is done. A cancelled context
// stops new attempts; the remaining accounts are reported as failed.
func (b *BatchRunner) Run(ctx context.Context, creds []Credential) BatchSummary {
	summary := BatchSummary{RunID: b.newID(), Outcomes: make([]Outcome, 0, len(creds))}
	logger := b.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("Starting batch", zap.Int("accounts", len(creds)))

	for i, cred := range creds {
		if i > 0 && ctx.Err() == nil {
			d := b.pacer.Between(b.opts.MinAccountDelay, b.opts.MaxAccountDelay)
			logger.Debug("Pausing between accounts", zap.Duration("delay", d))
			if err := b.pacer.Wait(ctx, d); err != nil {
				logger.Warn("Inter-account pause interrupted", zap.Error(err))
			}
		}

		var out Outcome
		if err := ctx.Err(); err != nil {
			out = Outcome{
				Identity: cred.Identity,
				Status:   StatusFailure,
				Reason:   "run cancelled before this account was attempted",
				Code:     CodeUncaughtFault,
			}
		} else {
			out = b.runner.Run(ctx, cred, i)
		}
		logger.Info("Account finished",
			zap.Int("account_index", i),
			zap.String("account", MaskIdentity(cred.Identity)),
			zap.String("status", string(out.Status)),
			zap.Int("retries_used", out.RetriesUsed),
		)
		summary.Outcomes = append(summary.Outcomes, out)
	}

	logger.Info("Batch finished",
		zap.String("status", string(summary.Status())),
		zap.Int("succeeded", summary.Succeeded()),
		zap.Int("failed", summary.Failed()),
	)
	b.notifier.SendSummary(ctx, summary.Text())
	return summary
}
