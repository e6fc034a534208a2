package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

type inserter interface {
	Put(ctx context.Context, table string, rows any) error
}

// Writer buffers payment_events rows and streams them to BigQuery. Each row
// carries its event id as the insert id so BigQuery can drop replays.
type Writer struct {
	client  inserter
	table   string
	schema  bigquery.Schema
	batch   int
	backoff func() retry.Backoff
	logg    *logger.Logger

	mu      sync.Mutex
	buf     []PaymentEventRow
	pending map[string]struct{}
}

type WriterOption func(*Writer)

// WithBatchSize buffers up to n rows per insert. Rows acked before a flush
// are lost if the process dies first, so the default is 1.
func WithBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithBackoff sets the exponential retry schedule for transient insert errors.
func WithBackoff(base, ceiling time.Duration, retries uint64) WriterOption {
	return func(w *Writer) {
		w.backoff = func() retry.Backoff {
			return retry.WithMaxRetries(retries, retry.WithCappedDuration(ceiling, retry.NewExponential(base)))
		}
	}
}

func NewWriter(client inserter, table string, logg *logger.Logger, opts ...WriterOption) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("payment events table required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	schema, err := bigquery.InferSchema(PaymentEventRow{})
	if err != nil {
		return nil, fmt.Errorf("infer payment events schema: %w", err)
	}
	w := &Writer{
		client:  client,
		table:   table,
		schema:  schema,
		batch:   1,
		logg:    logg,
		pending: map[string]struct{}{},
	}
	WithBackoff(250*time.Millisecond, 2*time.Second, 2)(w)
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add buffers row and flushes once the batch is full. A row whose event id is
// already buffered is not added twice.
func (w *Writer) Add(ctx context.Context, row PaymentEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.pending[row.EventID]; !ok {
		w.buf = append(w.buf, row)
		w.pending[row.EventID] = struct{}{}
	}
	if len(w.buf) < w.batch {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush inserts whatever is buffered. Failed rows stay buffered.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	savers := make([]*bigquery.StructSaver, len(w.buf))
	for i := range w.buf {
		savers[i] = &bigquery.StructSaver{Schema: w.schema, InsertID: w.buf[i].EventID, Struct: &w.buf[i]}
	}

	attempt := 0
	err := retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		attempt++
		err := w.client.Put(ctx, w.table, savers)
		if err != nil && transient(err) {
			w.logg.Warn(w.logg.WithFields(ctx, map[string]any{
				"table":   w.table,
				"rows":    len(savers),
				"attempt": attempt,
				"error":   err.Error(),
			}), "bigquery insert failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(savers), w.table, err)
	}

	w.buf = w.buf[:0]
	clear(w.pending)
	return nil
}

var transientHTTP = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var transientGRPC = map[codes.Code]bool{
	codes.Aborted:           true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
}

var transientReasons = map[string]bool{
	"backendError":      true,
	"internalError":     true,
	"rateLimitExceeded": true,
	"timeout":           true,
}

// transient reports whether a failed insert is worth retrying. Row level
// failures only count when every row failed for a transient reason.
func transient(err error) bool {
	if err == nil {
		return false
	}
	var rows bigquery.PutMultiError
	if errors.As(err, &rows) {
		if len(rows) == 0 {
			return false
		}
		for _, row := range rows {
			if !allTransient(row.Errors) {
				return false
			}
		}
		return true
	}
	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}
	var rowErr *bigquery.Error
	if errors.As(err, &rowErr) {
		return transientReasons[rowErr.Reason]
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return transientHTTP[apiErr.Code]
	}
	if st, ok := status.FromError(err); ok {
		return transientGRPC[st.Code()]
	}
	return false
}

func allTransient(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !transient(err) {
			return false
		}
	}
	return true
}
