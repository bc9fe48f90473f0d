package outbox

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/md-rashed-zaman/groomly/libs/kafkax"
	"github.com/md-rashed-zaman/groomly/libs/runtime"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

var outboxColumns = []string{"id", "event_id", "tenant_id", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}

func TestPublishBatch_SendsAndMarksPublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events")).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(1), "evt-1", "t1", "appt-1", AppointmentCreated, []byte(`{"a":1}`), "", "", created).
			AddRow(int64(2), "evt-2", "t1", "appt-1", AppointmentConfirmed, []byte(`{"a":2}`), "", "", created))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events")).
		WithArgs([]int64{1, 2}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	w := &fakeWriter{}
	p := NewPublisher(mock, NewRepository(), runtime.DiscardLogger(), PublisherConfig{})
	n, err := p.PublishBatch(context.Background(), w)
	if err != nil {
		t.Fatalf("PublishBatch: %v", err)
	}
	if n != 2 || len(w.msgs) != 2 {
		t.Fatalf("expected 2 published messages, got n=%d msgs=%d", n, len(w.msgs))
	}
	first := w.msgs[0]
	if first.Topic != AppointmentCreated || string(first.Key) != "appt-1" {
		t.Fatalf("unexpected message %s/%s", first.Topic, first.Key)
	}
	meta := kafkax.ExtractEventMeta(first)
	if meta.EventID != "evt-1" || meta.TenantID != "t1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPublishBatch_WriterFailureLeavesRowsUnpublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events")).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(7), "evt-7", "t1", "appt-9", AppointmentCancelled, []byte(`{}`), "", "", time.Now()))
	mock.ExpectRollback()

	boom := errors.New("broker unavailable")
	p := NewPublisher(mock, NewRepository(), runtime.DiscardLogger(), PublisherConfig{BatchSize: 10})
	if _, err := p.PublishBatch(context.Background(), &fakeWriter{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
