package kpi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	pkgbigquery "github.com/aryanmotgi/Arcus-Sheets/pkg/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// MetricRow is one metric value of one run as stored in BigQuery.
type MetricRow struct {
	RunID      string    `bigquery:"run_id"`
	MetricKey  string    `bigquery:"metric_key"`
	Value      string    `bigquery:"value"`
	RecordedAt time.Time `bigquery:"recorded_at"`
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// HistoryWriter appends every metric snapshot to a BigQuery table.
type HistoryWriter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

// NewHistoryWriter creates a writer backed by a shared client.
func NewHistoryWriter(client *pkgbigquery.Client, table string, retry RetryPolicy) (*HistoryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newHistoryWriter(client, table, retry)
}

func newHistoryWriter(client tableInserter, table string, retry RetryPolicy) (*HistoryWriter, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("metrics table is required")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}
	return &HistoryWriter{client: client, table: table, retry: retry}, nil
}

// Record inserts one row per metric key.
func (w *HistoryWriter) Record(ctx context.Context, runID string, at time.Time, snapshot Snapshot) error {
	rows := make([]any, 0, len(Keys))
	for _, k := range Keys {
		if _, ok := snapshot[k]; !ok {
			continue
		}
		rows = append(rows, &MetricRow{
			RunID:      runID,
			MetricKey:  string(k),
			Value:      snapshot.Format(k),
			RecordedAt: at.UTC(),
		})
	}
	return w.insertWithRetry(ctx, rows)
}

func (w *HistoryWriter) insertWithRetry(ctx context.Context, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	attempts := 0
	backoff := w.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var pme *cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if pme == nil || len(*pme) == 0 {
			return false
		}
		for _, rowErr := range *pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}
