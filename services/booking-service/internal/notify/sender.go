// Package notify delivers customer-facing booking messages through an
// external messaging provider.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Kind string

const (
	KindCreated       Kind = "appointment_created"
	KindConfirmed     Kind = "appointment_confirmed"
	KindCancelled     Kind = "appointment_cancelled"
	KindRescheduled   Kind = "appointment_rescheduled"
	KindRecoveryOffer Kind = "recovery_offer"
	KindRecoveryNudge Kind = "recovery_nudge"
)

type Message struct {
	TenantID      string       `json:"tenant_id"`
	AppointmentID string       `json:"appointment_id"`
	Kind          Kind         `json:"kind"`
	Body          string       `json:"body"`
	Slots         []model.Slot `json:"slots,omitempty"`
}

// Sender delivers a message to a customer. recipient is the customer id; the
// provider resolves it to a channel.
type Sender interface {
	Send(ctx context.Context, recipient string, msg Message) error
	ProviderID() string
}

type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "notify-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, recipient string, msg Message) error {
	if s.url == "" {
		return errors.New("notify webhook url not configured")
	}
	raw, err := json.Marshal(struct {
		To string `json:"to"`
		Message
	}{To: recipient, Message: msg})
	if err != nil {
		return err
	}
	return postJSON(ctx, s.http, s.url, s.token, raw)
}

func postJSON(ctx context.Context, client *http.Client, url, token string, raw []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned %d", url, resp.StatusCode)
	}
	return nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "notify-noop"
}

func (s *NoopSender) Send(_ context.Context, _ string, _ Message) error {
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used in dev mode.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) ProviderID() string {
	return "notify-log"
}

func (s *LogSender) Send(ctx context.Context, recipient string, msg Message) error {
	s.logger.InfoContext(ctx, "notification",
		"tenant_id", msg.TenantID,
		"appointment_id", msg.AppointmentID,
		"customer_id", recipient,
		"kind", string(msg.Kind),
		"body", msg.Body,
		"slots", len(msg.Slots),
	)
	return nil
}
