// Package notifier surfaces the "user already registered" condition: the wallet
// must restore an existing account instead of creating a new one.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/pkg/security"
)

// Config holds the email settings of the broadcaster
type Config struct {
	Provider       string
	APIKey         string
	FromEmail      string
	FromName       string
	AlertRecipient string
}

// Alert is one already-registered notification
type Alert struct {
	WalletIDHint string
	GUID         string
	Email        string
	At           time.Time
}

type sendFunc func(ctx context.Context, message *mail.SGMailV3) (status int, body string, err error)

// Broadcaster fans alerts out to in-process listeners and, when configured, email
type Broadcaster struct {
	config Config
	send   sendFunc
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []func(Alert)
}

// NewBroadcaster builds a broadcaster; an empty provider only notifies listeners
func NewBroadcaster(config Config, logger *zap.Logger) (*Broadcaster, error) {
	b := &Broadcaster{config: config, logger: logger}

	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "":
	case "sendgrid":
		if strings.TrimSpace(config.APIKey) == "" {
			return nil, fmt.Errorf("sendgrid api key is required")
		}
		client := sendgrid.NewSendClient(config.APIKey)
		b.send = func(ctx context.Context, message *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, message)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		}
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", config.Provider)
	}
	return b, nil
}

// OnAlert registers fn for every alert
func (b *Broadcaster) OnAlert(fn func(Alert)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Send broadcasts an alert. Email failures are logged, listeners always run.
func (b *Broadcaster) Send(ctx context.Context, alert Alert) {
	if alert.At.IsZero() {
		alert.At = time.Now()
	}
	b.logger.Warn("User already registered, wallet must be restored",
		zap.String("wallet_id_hint", alert.WalletIDHint),
		zap.String("guid", security.MaskIdentifier(alert.GUID)))

	b.mu.RLock()
	listeners := append([]func(Alert){}, b.listeners...)
	b.mu.RUnlock()
	for _, fn := range listeners {
		fn(alert)
	}

	if b.send == nil || alert.Email == "" {
		return
	}
	if err := b.sendEmail(ctx, alert); err != nil {
		b.logger.Error("Failed to send already-registered email", zap.Error(err))
	}
}

func (b *Broadcaster) sendEmail(ctx context.Context, alert Alert) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	from := mail.NewEmail(b.config.FromName, b.config.FromEmail)
	to := mail.NewEmail("", alert.Email)
	subject := "Restore your existing wallet"
	text := fmt.Sprintf("An account already exists for this email. Restore the wallet starting with %s to continue.", alert.WalletIDHint)
	html := fmt.Sprintf("<p>An account already exists for this email.</p><p>Restore the wallet starting with <b>%s</b> to continue.</p>", alert.WalletIDHint)
	message := mail.NewSingleEmail(from, subject, to, text, html)
	if b.config.AlertRecipient != "" {
		message.Personalizations[0].AddBCCs(mail.NewEmail("", b.config.AlertRecipient))
	}

	status, body, err := b.send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("email service error: status %d, body: %s", status, body)
	}
	b.logger.Info("Already-registered email sent", zap.Int("status_code", status))
	return nil
}
