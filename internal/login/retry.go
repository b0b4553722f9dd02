package login

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/humanoid"
)

// Attempter runs a single attempt. *Orchestrator is the production one.
type Attempter interface {
	Attempt(ctx context.Context, actx AttemptContext) AttemptResult
}

// RetryPolicy bounds the attempts made for one account.
type RetryPolicy struct {
	attempter  Attempter
	maxRetries int
	delay      time.Duration
	pacer      *humanoid.Pacer
	logger     *zap.Logger
}

func NewRetryPolicy(attempter Attempter, maxRetries int, delay time.Duration, pacer *humanoid.Pacer, logger *zap.Logger) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{
		attempter:  attempter,
		maxRetries: maxRetries,
		delay:      delay,
		pacer:      pacer,
		logger:     logger.Named("retry"),
	}
}

// Run makes at most maxRetries+1 attempts and folds them into one Outcome.
// It stops early on success and on any failure that is not retryable.
func (p *RetryPolicy) Run(ctx context.Context, cred Credential, accountIndex int) Outcome {
	logger := p.logger.With(zap.String("account", MaskIdentity(cred.Identity)), zap.Int("account_index", accountIndex))

	var (
		res   AttemptResult
		retry int
	)
	for retry = 0; retry <= p.maxRetries; retry++ {
		if retry > 0 {
			logger.Info("Retrying login", zap.Int("retry", retry), zap.Duration("delay", p.delay))
			if err := p.pacer.Wait(ctx, p.delay); err != nil {
				// Keep the last real result; the wait only ended early.
				retry--
				logger.Warn("Retry wait interrupted", zap.Error(err))
				break
			}
		}

		res = p.attempter.Attempt(ctx, AttemptContext{Credential: cred, AccountIndex: accountIndex, RetryIndex: retry})
		if res.Status == StatusSuccess {
			break
		}
		if !res.Retryable() {
			logger.Info("Failure is not retryable", zap.String("code", string(res.code())))
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if retry > p.maxRetries {
		retry = p.maxRetries
	}

	return Outcome{
		Identity:    cred.Identity,
		Status:      res.Status,
		Reason:      res.Reason,
		Code:        res.code(),
		RetriesUsed: retry,
	}
}
