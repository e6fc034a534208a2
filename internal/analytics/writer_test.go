package analytics

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

type putCall struct {
	table     string
	insertIDs []string
}

type fakeInserter struct {
	responses []error
	calls     []putCall
}

func (f *fakeInserter) Put(_ context.Context, table string, rows any) error {
	call := putCall{table: table}
	for _, saver := range rows.([]*bigquery.StructSaver) {
		call.insertIDs = append(call.insertIDs, saver.InsertID)
	}
	f.calls = append(f.calls, call)
	if len(f.calls) <= len(f.responses) {
		return f.responses[len(f.calls)-1]
	}
	return nil
}

func newTestWriter(t *testing.T, opts ...WriterOption) (*Writer, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	opts = append([]WriterOption{WithBackoff(time.Millisecond, time.Millisecond, 2)}, opts...)
	w, err := NewWriter(fake, "payment_events", logger.Nop(), opts...)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	return w, fake
}

func TestNewWriterValidation(t *testing.T) {
	if _, err := NewWriter(nil, "payment_events", logger.Nop()); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := NewWriter(&fakeInserter{}, " ", logger.Nop()); err == nil {
		t.Fatal("expected error when table missing")
	}
	if _, err := NewWriter(&fakeInserter{}, "payment_events", nil); err == nil {
		t.Fatal("expected error when logger missing")
	}
}

func TestWriterRetriesTransientErrors(t *testing.T) {
	w, fake := newTestWriter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}

	if err := w.Add(context.Background(), PaymentEventRow{EventID: "evt-1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two attempts, got %d", len(fake.calls))
	}
	if fake.calls[1].table != "payment_events" || fake.calls[1].insertIDs[0] != "evt-1" {
		t.Fatalf("unexpected retry call %+v", fake.calls[1])
	}
	if len(w.buf) != 0 {
		t.Fatal("expected buffer to drain after success")
	}
}

func TestWriterGivesUpAfterRetries(t *testing.T) {
	w, fake := newTestWriter(t)
	unavailable := status.Error(codes.Unavailable, "down")
	fake.responses = []error{unavailable, unavailable, unavailable, unavailable}

	err := w.Add(context.Background(), PaymentEventRow{EventID: "evt-1"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected one attempt plus two retries, got %d", len(fake.calls))
	}
}

func TestWriterKeepsRowsOnPermanentError(t *testing.T) {
	w, fake := newTestWriter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	if err := w.Add(context.Background(), PaymentEventRow{EventID: "evt-1"}); err == nil {
		t.Fatal("expected permanent error to surface")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}

	// redelivery of the same event must not double the row
	if err := w.Add(context.Background(), PaymentEventRow{EventID: "evt-1"}); err != nil {
		t.Fatalf("second add: %v", err)
	}
	if got := fake.calls[1].insertIDs; len(got) != 1 || got[0] != "evt-1" {
		t.Fatalf("expected the buffered row once, got %v", got)
	}
}

func TestWriterBatchesAndFlushes(t *testing.T) {
	w, fake := newTestWriter(t, WithBatchSize(2))
	ctx := context.Background()

	if err := w.Add(ctx, PaymentEventRow{EventID: "evt-1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected no insert before the batch fills, got %d", len(fake.calls))
	}
	if err := w.Add(ctx, PaymentEventRow{EventID: "evt-2"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(fake.calls) != 1 || len(fake.calls[0].insertIDs) != 2 {
		t.Fatalf("expected one insert of two rows, got %+v", fake.calls)
	}

	if err := w.Add(ctx, PaymentEventRow{EventID: "evt-3"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(fake.calls) != 2 || fake.calls[1].insertIDs[0] != "evt-3" {
		t.Fatalf("expected flush to insert the remainder, got %+v", fake.calls)
	}
	if err := w.Flush(ctx); err != nil || len(fake.calls) != 2 {
		t.Fatalf("empty flush should be a no-op: %v, %d calls", err, len(fake.calls))
	}
}

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "http 429", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: true},
		{name: "http 404", err: &googleapi.Error{Code: http.StatusNotFound}, want: false},
		{name: "grpc unavailable", err: status.Error(codes.Unavailable, "down"), want: true},
		{name: "grpc invalid", err: status.Error(codes.InvalidArgument, "bad"), want: false},
		{
			name: "multi all transient",
			err:  bigquery.MultiError{&googleapi.Error{Code: http.StatusBadGateway}},
			want: true,
		},
		{
			name: "multi mixed",
			err: bigquery.MultiError{
				&googleapi.Error{Code: http.StatusBadGateway},
				&googleapi.Error{Code: http.StatusBadRequest},
			},
			want: false,
		},
		{
			name: "row backend error",
			err: bigquery.PutMultiError{
				{InsertID: "evt-1", Errors: bigquery.MultiError{&bigquery.Error{Reason: "backendError"}}},
			},
			want: true,
		},
		{
			name: "row invalid",
			err: bigquery.PutMultiError{
				{InsertID: "evt-1", Errors: bigquery.MultiError{&bigquery.Error{Reason: "invalid"}}},
			},
			want: false,
		},
	}

	for _, tc := range cases {
		if got := transient(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
