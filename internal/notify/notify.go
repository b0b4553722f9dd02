// Package notify delivers run reports to chat channels. Delivery is best
// effort: callers get no error back and a broken sink never stalls a run.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autologin-cli/internal/config"
	"github.com/xkilldash9x/autologin-cli/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Notifier is the side channel used by the login engine. Implementations
// absorb their own faults.
type Notifier interface {
	SendMessage(ctx context.Context, text string)
	SendMessageWithImage(ctx context.Context, text string, image []byte)
	// SendSummary delivers the end-of-run report. It is never rate limited.
	SendSummary(ctx context.Context, text string)
}

// Message is a single delivery request.
type Message struct {
	Text  string
	Image []byte
}

// Sink is a fallible transport behind a Dispatcher.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans a message out to every sink, rate limited and bounded by
// a per-send timeout. Sends run on the caller's goroutine, so one call
// blocks for at most the timeout per sink.
type Dispatcher struct {
	sinks    []Sink
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
	warnOnce sync.Once
}

// NewDispatcher wires the given sinks. perMinute <= 0 disables limiting.
func NewDispatcher(logger *zap.Logger, perMinute int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		limiter: limiter,
		timeout: timeout,
		logger:  logger.Named("notify"),
	}
}

// New builds a Dispatcher with every sink that has credentials configured.
// An unparsable proxy is logged and ignored.
func New(cfg config.NotifierConfig, logger *zap.Logger) *Dispatcher {
	var proxy *url.URL
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Host == "" {
			logger.Warn("Ignoring invalid notifier proxy", zap.String("proxy_url", cfg.ProxyURL))
		} else {
			proxy = u
		}
	}
	client := httpClient(cfg.Timeout, proxy)

	var sinks []Sink
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		t := NewTelegramSink(cfg.Telegram, cfg.Timeout)
		t.client = client
		sinks = append(sinks, t)
	}
	if cfg.Slack.WebhookURL != "" {
		s := NewSlackSink(cfg.Slack.WebhookURL, cfg.Timeout)
		s.client = client
		sinks = append(sinks, s)
	}
	return NewDispatcher(logger, cfg.RatePerMinute, cfg.Timeout, sinks...)
}

func httpClient(timeout time.Duration, proxy *url.URL) *http.Client {
	return network.NewClient(&network.ClientConfig{RequestTimeout: timeout, ProxyURL: proxy})
}

// Sinks reports the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (d *Dispatcher) SendMessage(ctx context.Context, text string) {
	d.dispatch(ctx, Message{Text: text})
}

func (d *Dispatcher) SendMessageWithImage(ctx context.Context, text string, image []byte) {
	d.dispatch(ctx, Message{Text: text, Image: image})
}

func (d *Dispatcher) SendSummary(ctx context.Context, text string) {
	d.deliver(ctx, Message{Text: text}, false)
}

func (d *Dispatcher) dispatch(ctx context.Context, msg Message) {
	d.deliver(ctx, msg, true)
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message, limited bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Notifier panicked; message dropped", zap.Any("panic", r))
		}
	}()

	if len(d.sinks) == 0 {
		d.warnOnce.Do(func() {
			d.logger.Warn("No notification channel configured; messages will only be logged.")
		})
		d.logger.Debug("Notification suppressed", zap.Int("text_length", len(msg.Text)))
		return
	}

	if limited && !d.limiter.Allow() {
		d.logger.Warn("Notification rate limit reached; message dropped")
		return
	}

	// A cancelled run still gets its reports out, within the send timeout.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	for _, s := range d.sinks {
		if err := s.Send(sendCtx, msg); err != nil {
			d.logger.Warn("Notification delivery failed",
				zap.String("sink", s.Name()),
				zap.Bool("with_image", len(msg.Image) > 0),
				zap.Error(err),
			)
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) SendMessage(context.Context, string)                  {}
func (Nop) SendMessageWithImage(context.Context, string, []byte) {}
func (Nop) SendSummary(context.Context, string)                  {}

// truncate cuts s to at most limit runes, marking the cut.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return string(r[:limit])
	}
	return string(r[:limit-1]) + "…"
}

type statusError struct {
	sink string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.sink, e.code, e.body)
}
