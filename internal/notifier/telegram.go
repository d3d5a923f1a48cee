package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/retry"
)

// DefaultAPIBase is the Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// DefaultSendPolicy retries sends with short delays.
func DefaultSendPolicy() retry.Policy {
	return retry.Policy{
		Rules: map[model.ErrorKind]retry.Rule{
			model.KindRateLimited: {Base: 5 * time.Second, MaxAttempts: 3},
			model.KindTransport:   {Base: time.Second, MaxAttempts: 4},
		},
		MaxDelay: 30 * time.Second,
	}
}

// Options configures a TelegramNotifier.
type Options struct {
	BotToken string
	ChatID   string
	APIBase  string
	Proxy    string
	Timeout  time.Duration
	Policy   *retry.Policy
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	chatID string
	client *resty.Client
	policy retry.Policy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(opts Options, logger *zap.Logger) *TelegramNotifier {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 35 * time.Second
	}
	policy := DefaultSendPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.APIBase, "/") + "/bot" + opts.BotToken).
		SetTimeout(opts.Timeout)
	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}
	return &TelegramNotifier{
		chatID: opts.ChatID,
		client: client,
		policy: policy,
		logger: logger.With(zap.String("component", "telegram")),
		sleep:  sleepCtx,
	}
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post("/sendMessage")
	if err != nil {
		return model.NewError(model.KindTransport, "", fmt.Errorf("send message: %w", err))
	}
	switch status := resp.StatusCode(); {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return model.Errorf(model.KindRateLimited, "", "telegram API throttled: %s", resp.String())
	case status >= 500:
		return model.Errorf(model.KindTransport, "", "telegram API error: status %d, body: %s", status, resp.String())
	default:
		return model.Errorf(model.KindMalformed, "", "telegram API error: status %d, body: %s", status, resp.String())
	}
}

// SendWithRetry sends a message, retrying per the notifier's policy.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string) error {
	for attempt := 0; ; attempt++ {
		err := t.Send(ctx, text)
		if err == nil {
			return nil
		}
		kind := model.KindOf(err)
		delay, ok := t.policy.NextDelay(kind, attempt)
		if !ok {
			return fmt.Errorf("telegram send failed after %d attempts: %w", attempt+1, err)
		}
		t.logger.Warn("telegram send failed, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		if serr := t.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
