package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MetricsWebhook asks the customer metrics service to recompute a customer's
// aggregates after an appointment completes.
type MetricsWebhook struct {
	url  string
	http *http.Client
}

func NewMetricsWebhook(url string) *MetricsWebhook {
	return &MetricsWebhook{
		url: strings.TrimSpace(url),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (m *MetricsWebhook) RecomputeCustomerMetrics(ctx context.Context, tenantID, customerID string) error {
	if m.url == "" {
		return nil
	}
	raw, err := json.Marshal(map[string]string{
		"tenant_id":   tenantID,
		"customer_id": customerID,
	})
	if err != nil {
		return err
	}
	return postJSON(ctx, m.http, m.url, "", raw)
}
