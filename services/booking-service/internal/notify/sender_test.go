package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

func TestWebhookSender_PostsMessage(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "secret")
	err := s.Send(context.Background(), "cust-1", Message{
		TenantID:      "t1",
		AppointmentID: "a1",
		Kind:          KindRecoveryOffer,
		Body:          "hello",
		Slots:         []model.Slot{{Date: model.Date{Year: 2026, Month: time.March, Day: 2}, Start: model.NewTimeOfDay(9, 0), End: model.NewTimeOfDay(10, 0)}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got["to"] != "cust-1" || got["kind"] != string(KindRecoveryOffer) {
		t.Fatalf("unexpected payload %v", got)
	}
	slots, ok := got["slots"].([]any)
	if !ok || len(slots) != 1 {
		t.Fatalf("expected one slot, got %v", got["slots"])
	}
	slot := slots[0].(map[string]any)
	if slot["date"] != "2026-03-02" || slot["start"] != "09:00" {
		t.Fatalf("unexpected slot encoding %v", slot)
	}
}

func TestWebhookSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookSender(srv.URL, "").Send(context.Background(), "c", Message{}); err == nil {
		t.Fatal("expected error on 502")
	}
	if err := NewWebhookSender("", "").Send(context.Background(), "c", Message{}); err == nil {
		t.Fatal("expected error without url")
	}
}

func TestMetricsWebhook(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["customer_id"] != "c1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewMetricsWebhook(srv.URL).RecomputeCustomerMetrics(context.Background(), "t1", "c1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if err := NewMetricsWebhook("").RecomputeCustomerMetrics(context.Background(), "t1", "c1"); err != nil {
		t.Fatalf("unconfigured webhook should be a no-op: %v", err)
	}
}
