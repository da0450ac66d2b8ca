// Package ratelimit paces bulk mailbox operations against the provider's
// quota. It splits work into fixed-size batches, dispatches the items of a
// batch concurrently through a token bucket, waits a fixed delay between
// batches and keeps an approximate per-minute counter in the store.
//
// Pacing is closed-loop: when the executor observes a throttling response it
// calls Throttle and every caller blocks until the penalty has elapsed.
// The per-window budget is a real gate: a batch waits for the active window
// to end when the budget is spent.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

// Defaults mirror the provider guidance the dashboard was tuned for.
const (
	DefaultBatchSize        = 50
	DefaultBatchDelay       = 2500 * time.Millisecond
	DefaultActionsPerSecond = 20
	DefaultWindow           = time.Minute

	// ActionTypeGmail is the rate window action type for mailbox API calls.
	ActionTypeGmail = "gmail_api"
)

// Limiter gates outbound API calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// WindowStore persists the per-user rate windows.
type WindowStore interface {
	ActiveWindow(ctx context.Context, userID, actionType string, now time.Time) (*domain.RateWindow, error)
	OpenWindow(ctx context.Context, userID, actionType string, now time.Time, d time.Duration) (*domain.RateWindow, error)
	AddActions(ctx context.Context, windowID string, n int) error
}

// ErrNoWindow is returned by WindowStore.ActiveWindow when no window is open.
var ErrNoWindow = errors.New("no active rate window")

// Options configures a Batcher. Zero values take the package defaults.
type Options struct {
	BatchSize        int
	BatchDelay       time.Duration
	ActionsPerSecond float64
	WindowBudget     int
	Window           time.Duration
	Concurrency      int
	ActionType       string
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.ActionsPerSecond <= 0 {
		o.ActionsPerSecond = DefaultActionsPerSecond
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.WindowBudget <= 0 {
		o.WindowBudget = int(o.ActionsPerSecond * o.Window.Seconds())
	}
	if o.Concurrency <= 0 {
		o.Concurrency = o.BatchSize
	}
	if o.ActionType == "" {
		o.ActionType = ActionTypeGmail
	}
	return o
}

// Failure is an item that could not be processed and the reason.
type Failure struct {
	ID  string
	Err error
}

// Outcome is the result of one batch, in input order.
type Outcome struct {
	Succeeded []string
	Failed    []Failure
}

// Summary aggregates all batches of a run.
type Summary struct {
	Succeeded []string
	Failed    []Failure
	Batches   int
}

// FailedIDs returns the ids of failed items in order.
func (s Summary) FailedIDs() []string {
	out := make([]string, 0, len(s.Failed))
	for _, f := range s.Failed {
		out = append(out, f.ID)
	}
	return out
}

// ItemFunc performs the action for one item.
type ItemFunc func(ctx context.Context, id string) error

// Batcher is safe for concurrent use by multiple requests.
type Batcher struct {
	opts    Options
	store   WindowStore
	limiter Limiter
	log     zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	throttledUntil time.Time
}

// New returns a Batcher. A nil store disables window accounting.
func New(store WindowStore, opts Options, lg zerolog.Logger) *Batcher {
	opts = opts.withDefaults()
	return &Batcher{
		opts:    opts,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(opts.ActionsPerSecond), 1),
		log:     lg.With().Str("component", "batcher").Logger(),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Options returns the effective options.
func (b *Batcher) Options() Options { return b.opts }

// WithLimiter replaces the per-item pacing limiter.
func (b *Batcher) WithLimiter(l Limiter) *Batcher {
	b.limiter = l
	return b
}

// WithClock replaces the time source and the sleep function.
func (b *Batcher) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Batcher {
	if now != nil {
		b.now = now
	}
	if sleep != nil {
		b.sleep = sleep
	}
	return b
}

// CreateBatches splits items into order-preserving chunks of size. Every
// chunk has exactly size elements except possibly the last.
func CreateBatches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}

// Batches splits ids using the configured batch size.
func (b *Batcher) Batches(ids []string) [][]string {
	return CreateBatches(ids, b.opts.BatchSize)
}

// Throttle blocks all callers for d. Overlapping calls keep the later deadline.
func (b *Batcher) Throttle(d time.Duration) {
	if d <= 0 {
		return
	}
	until := b.now().Add(d)
	b.mu.Lock()
	if until.After(b.throttledUntil) {
		b.throttledUntil = until
	}
	b.mu.Unlock()
	b.log.Warn().Dur("penalty", d).Msg("provider throttled requests")
}

// CanPerformAction reports whether the user's active window still has budget.
// A window is opened when none is active. Store errors allow the call.
func (b *Batcher) CanPerformAction(ctx context.Context, userID string) bool {
	ok, _ := b.checkWindow(ctx, userID)
	return ok
}

// checkWindow returns the budget verdict and, when exhausted, the window end.
func (b *Batcher) checkWindow(ctx context.Context, userID string) (bool, time.Time) {
	if b.store == nil {
		return true, time.Time{}
	}
	now := b.now().UTC()
	w, err := b.store.ActiveWindow(ctx, userID, b.opts.ActionType, now)
	if errors.Is(err, ErrNoWindow) {
		if _, err := b.store.OpenWindow(ctx, userID, b.opts.ActionType, now, b.opts.Window); err != nil {
			b.log.Warn().Err(err).Str("user_id", userID).Msg("open rate window failed")
		}
		return true, time.Time{}
	}
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("rate window lookup failed")
		return true, time.Time{}
	}
	if w.ActionsCount < b.opts.WindowBudget {
		return true, time.Time{}
	}
	return false, w.WindowEnd
}

// RecordActions adds n to the user's active window. Failures are logged only.
func (b *Batcher) RecordActions(ctx context.Context, userID string, n int) {
	if b.store == nil || n <= 0 {
		return
	}
	now := b.now().UTC()
	w, err := b.store.ActiveWindow(ctx, userID, b.opts.ActionType, now)
	if errors.Is(err, ErrNoWindow) {
		w, err = b.store.OpenWindow(ctx, userID, b.opts.ActionType, now, b.opts.Window)
	}
	if err == nil {
		err = b.store.AddActions(ctx, w.ID, n)
	}
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Int("actions", n).Msg("record rate window actions failed")
	}
}

// awaitBudget blocks until the user's window has budget or ctx ends.
func (b *Batcher) awaitBudget(ctx context.Context, userID string) error {
	for {
		ok, until := b.checkWindow(ctx, userID)
		if ok {
			return nil
		}
		d := until.Sub(b.now())
		if d <= 0 {
			d = 10 * time.Millisecond
		}
		b.log.Info().Str("user_id", userID).Dur("wait", d).Msg("rate window budget spent, waiting")
		if err := b.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// wait applies the throttle penalty and the pacing limiter for one item.
func (b *Batcher) wait(ctx context.Context) error {
	b.mu.Lock()
	until := b.throttledUntil
	b.mu.Unlock()
	if d := until.Sub(b.now()); d > 0 {
		if err := b.sleep(ctx, d); err != nil {
			return err
		}
	}
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// ProcessBatch runs fn for every id with bounded concurrency. Item errors are
// isolated and reported; nothing is retried. Succeeded items are counted
// against the user's rate window.
func (b *Batcher) ProcessBatch(ctx context.Context, userID string, batch []string, fn ItemFunc) Outcome {
	errs := make([]error, len(batch))
	if err := b.awaitBudget(ctx, userID); err != nil {
		for i := range errs {
			errs[i] = err
		}
		return collect(batch, errs)
	}

	var g errgroup.Group
	g.SetLimit(b.opts.Concurrency)
	for i, id := range batch {
		g.Go(func() error {
			if err := b.wait(ctx); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	out := collect(batch, errs)
	b.RecordActions(ctx, userID, len(out.Succeeded))
	return out
}

// ProcessAll runs batches sequentially with the inter-batch delay between
// them. A cancelled context marks every unprocessed item as failed.
func (b *Batcher) ProcessAll(ctx context.Context, userID string, batches [][]string, fn ItemFunc) Summary {
	var sum Summary
	for i, batch := range batches {
		if i > 0 && b.opts.BatchDelay > 0 {
			if err := b.sleep(ctx, b.opts.BatchDelay); err != nil {
				for _, rest := range batches[i:] {
					for _, id := range rest {
						sum.Failed = append(sum.Failed, Failure{ID: id, Err: err})
					}
				}
				return sum
			}
		}
		out := b.ProcessBatch(ctx, userID, batch, fn)
		sum.Batches++
		sum.Succeeded = append(sum.Succeeded, out.Succeeded...)
		sum.Failed = append(sum.Failed, out.Failed...)
		b.log.Debug().
			Str("user_id", userID).
			Int("batch", i+1).
			Int("of", len(batches)).
			Int("succeeded", len(out.Succeeded)).
			Int("failed", len(out.Failed)).
			Msg("batch processed")
	}
	return sum
}

func collect(batch []string, errs []error) Outcome {
	var out Outcome
	for i, id := range batch {
		if errs[i] != nil {
			out.Failed = append(out.Failed, Failure{ID: id, Err: errs[i]})
			continue
		}
		out.Succeeded = append(out.Succeeded, id)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
