package destination

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/grid"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

const (
	defaultMinInterval = time.Second
	defaultMaxAttempts = 5
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 32 * time.Second
	defaultJitter      = 250 * time.Millisecond
	defaultMaxRows     = 1000
)

// State is a step of the per-call write state machine.
type State string

const (
	StateIdle       State = "idle"
	StateThrottling State = "throttling"
	StateAttempting State = "attempting"
	StateSuccess    State = "success"
	StateRetryable  State = "retryable"
	StateFatal      State = "fatal"
)

// RetryPolicy controls the backoff schedule: delay = base * 2^attempt + jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Jitter      time.Duration
}

// Config controls the writer behavior.
type Config struct {
	MinInterval       time.Duration
	Retry             RetryPolicy
	MaxRowsPerRequest int
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer receives every state transition.
type Observer interface {
	ObserveWriteState(op string, state State)
}

// PartialWrite enumerates which ranges of a failed write were applied.
type PartialWrite struct {
	Op          string   `json:"op"`
	Applied     []string `json:"applied"`
	Failed      []string `json:"failed"`
	RowsApplied int      `json:"rows_applied"`
}

// Writer is the single mutation path to the destination. Every call is
// throttled to a minimum interval and retried with exponential backoff on
// rate-limit, quota and 5xx errors.
type Writer struct {
	store    Store
	limiter  *rate.Limiter
	retry    RetryPolicy
	maxRows  int
	sleep    Sleeper
	jitter   func(max time.Duration) time.Duration
	logg     *logger.Logger
	observer Observer

	mu      sync.Mutex
	headers map[string][]string
}

// Option configures optional writer behavior.
type Option func(*Writer)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(w *Writer) {
		if s != nil {
			w.sleep = s
		}
	}
}

// WithJitter replaces the jitter source.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(w *Writer) {
		if fn != nil {
			w.jitter = fn
		}
	}
}

// WithObserver attaches a state observer.
func WithObserver(o Observer) Option {
	return func(w *Writer) {
		w.observer = o
	}
}

func NewWriter(store Store, cfg Config, logg *logger.Logger, opts ...Option) *Writer {
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.BaseBackoff <= 0 {
		retry.BaseBackoff = defaultBaseBackoff
	}
	if retry.MaxBackoff <= 0 {
		retry.MaxBackoff = defaultMaxBackoff
	}
	if retry.MaxBackoff < retry.BaseBackoff {
		retry.MaxBackoff = retry.BaseBackoff
	}
	if retry.Jitter < 0 {
		retry.Jitter = 0
	}

	maxRows := cfg.MaxRowsPerRequest
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	w := &Writer{
		store:   store,
		limiter: limiter,
		retry:   retry,
		maxRows: maxRows,
		sleep:   sleepContext,
		jitter:  randomJitter,
		logg:    logg,
		headers: map[string][]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// BeginRun drops intra-run caches. Call once at the start of every sync.
func (w *Writer) BeginRun() {
	w.mu.Lock()
	w.headers = map[string][]string{}
	w.mu.Unlock()
	if f, ok := w.store.(interface{ Forget() }); ok {
		f.Forget()
	}
}

// Read returns all rows on tab, retried like a write.
func (w *Writer) Read(ctx context.Context, tab string) ([][]string, error) {
	var rows [][]string
	err := w.do(ctx, "read "+tab, func(ctx context.Context) error {
		var err error
		rows, err = w.store.Read(ctx, tab)
		return err
	})
	return rows, err
}

// EnsureTab creates tab if needed.
func (w *Writer) EnsureTab(ctx context.Context, tab string) error {
	return w.do(ctx, "ensure tab "+tab, func(ctx context.Context) error {
		return w.store.EnsureTab(ctx, tab)
	})
}

// Write applies updates in request-sized batches. When a batch fails after
// retries the returned error is CodeWriteFailure carrying a PartialWrite.
func (w *Writer) Write(ctx context.Context, op string, updates []Update) error {
	batches := w.batch(updates)
	report := PartialWrite{Op: op}
	for i, b := range batches {
		err := w.do(ctx, op, func(ctx context.Context) error {
			return w.store.Write(ctx, b)
		})
		if err != nil {
			for _, rest := range batches[i:] {
				for _, u := range rest {
					report.Failed = append(report.Failed, u.Range.A1())
				}
			}
			return pkgerrors.Wrap(pkgerrors.CodeWriteFailure, err, op+": write partially applied").WithDetails(report)
		}
		for _, u := range b {
			report.Applied = append(report.Applied, u.Range.A1())
			report.RowsApplied += len(u.Values)
		}
	}
	return nil
}

// Clear blanks rng.
func (w *Writer) Clear(ctx context.Context, op string, rng grid.Range) error {
	err := w.do(ctx, op, func(ctx context.Context) error {
		return w.store.Clear(ctx, rng)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeWriteFailure, err, op+": clear failed").
			WithDetails(PartialWrite{Op: op, Failed: []string{rng.A1()}})
	}
	return nil
}

// batch splits updates so no request carries more than maxRows rows.
func (w *Writer) batch(updates []Update) [][]Update {
	var (
		out     [][]Update
		current []Update
		rows    int
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, current)
			current, rows = nil, 0
		}
	}
	for _, u := range updates {
		for _, piece := range split(u, w.maxRows) {
			if rows+len(piece.Values) > w.maxRows {
				flush()
			}
			current = append(current, piece)
			rows += len(piece.Values)
		}
	}
	flush()
	return out
}

func split(u Update, maxRows int) []Update {
	if len(u.Values) <= maxRows {
		return []Update{u}
	}
	var out []Update
	for off := 0; off < len(u.Values); off += maxRows {
		end := off + maxRows
		if end > len(u.Values) {
			end = len(u.Values)
		}
		start := grid.Coord{Row: u.Range.Start.Row + off, Col: u.Range.Start.Col}
		out = append(out, NewUpdate(u.Range.Tab, start, u.Values[off:end]))
	}
	return out
}

// do runs call through Throttling -> Attempting -> {Success | Retryable | Fatal}.
func (w *Writer) do(ctx context.Context, op string, call func(context.Context) error) error {
	var (
		lastErr     error
		rateLimited bool
	)
	w.transition(op, StateIdle)
	for attempt := 0; attempt < w.retry.MaxAttempts; attempt++ {
		w.transition(op, StateThrottling)
		if err := w.limiter.Wait(ctx); err != nil {
			w.transition(op, StateFatal)
			return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, op+": throttle wait interrupted")
		}

		w.transition(op, StateAttempting)
		err := call(ctx)
		if err == nil {
			w.transition(op, StateSuccess)
			return nil
		}
		if ctx.Err() != nil {
			w.transition(op, StateFatal)
			return pkgerrors.Wrap(pkgerrors.CodeCanceled, ctx.Err(), op+": canceled")
		}

		retryable, limited := classify(err)
		if !retryable {
			w.transition(op, StateFatal)
			return err
		}
		lastErr, rateLimited = err, limited
		w.transition(op, StateRetryable)

		if attempt+1 >= w.retry.MaxAttempts {
			break
		}
		delay := w.delay(attempt)
		if w.logg != nil {
			logCtx := w.logg.WithFields(ctx, map[string]any{
				"op":           op,
				"attempt":      attempt + 1,
				"delay_ms":     delay.Milliseconds(),
				"rate_limited": limited,
			})
			w.logg.Warn(logCtx, "destination call failed, backing off")
		}
		if err := w.sleep(ctx, delay); err != nil {
			w.transition(op, StateFatal)
			return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, op+": backoff interrupted")
		}
	}

	w.transition(op, StateFatal)
	code := pkgerrors.CodeDependency
	if rateLimited {
		code = pkgerrors.CodeRateLimited
	}
	return pkgerrors.Wrap(code, lastErr, fmt.Sprintf("%s: retry budget exhausted after %d attempts", op, w.retry.MaxAttempts))
}

func (w *Writer) delay(attempt int) time.Duration {
	d := w.retry.BaseBackoff << uint(attempt)
	if d <= 0 || d > w.retry.MaxBackoff {
		d = w.retry.MaxBackoff
	}
	if w.retry.Jitter > 0 {
		d += w.jitter(w.retry.Jitter)
	}
	return d
}

func (w *Writer) transition(op string, s State) {
	if w.observer != nil {
		w.observer.ObserveWriteState(op, s)
	}
}

// classify reports whether err is transient and whether it was a rate limit.
func classify(err error) (retryable, rateLimited bool) {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return true, true
		case http.StatusForbidden:
			if quotaExceeded(apiErr) {
				return true, true
			}
			return false, false
		case http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true, false
		default:
			return false, false
		}
	}

	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeRateLimited:
			return true, true
		case pkgerrors.CodeDependency:
			return true, false
		}
	}

	if isQuotaMessage(err.Error()) {
		return true, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true, false
	}
	return false, false
}

func quotaExceeded(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return isQuotaMessage(apiErr.Message)
}

func isQuotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota exceeded") || strings.Contains(lower, "rate limit exceeded")
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
