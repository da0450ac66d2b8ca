// Package housekeeping purges expired rows on a cron schedule: finished rate
// limit windows and idempotency records past their TTL.
package housekeeping

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/repo"
)

// windowGrace keeps recently ended rate windows around for inspection.
const windowGrace = time.Hour

// Result reports how many rows one sweep removed.
type Result struct {
	RateWindows int64
	Idempotency int64
}

// Janitor runs Sweep on a schedule.
type Janitor struct {
	db   *gorm.DB
	cron *cron.Cron
	log  zerolog.Logger
	now  func() time.Time

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a Janitor bound to db.
func New(db *gorm.DB, lg zerolog.Logger) *Janitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		db: db,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		log:    lg.With().Str("component", "housekeeping").Logger(),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule registers the sweep under spec (e.g. "@every 10m" or "*/15 * * * *").
func (j *Janitor) Schedule(spec string) error {
	_, err := j.cron.AddFunc(spec, j.tick)
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins executing scheduled sweeps.
func (j *Janitor) Start() {
	j.cron.Start()
	j.log.Info().Int("jobs", len(j.cron.Entries())).Msg("housekeeping started")
}

// Stop halts the schedule and waits for a running sweep until ctx is done.
func (j *Janitor) Stop(ctx context.Context) error {
	cronCtx := j.cron.Stop()
	j.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tick runs one sweep unless the previous one is still going.
func (j *Janitor) tick() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.wg.Add(1)
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
		j.wg.Done()
	}()

	if _, err := j.Sweep(j.ctx); err != nil {
		j.log.Error().Err(err).Msg("housekeeping sweep failed")
	}
}

// Sweep deletes expired rate windows and idempotency records once.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	start := j.now()
	var res Result

	n, err := repo.DeleteExpiredRateWindows(ctx, j.db, start.Add(-windowGrace))
	if err != nil {
		return res, fmt.Errorf("purge rate windows: %w", err)
	}
	res.RateWindows = n

	n, err = repo.DeleteExpiredIdempotency(ctx, j.db, start.UTC())
	if err != nil {
		return res, fmt.Errorf("purge idempotency: %w", err)
	}
	res.Idempotency = n

	j.log.Debug().
		Int64("rate_windows", res.RateWindows).
		Int64("idempotency", res.Idempotency).
		Dur("took", time.Since(start)).
		Msg("housekeeping sweep")
	return res, nil
}
