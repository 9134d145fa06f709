// Package live keeps the current set of reports fresh in memory.
package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"alarm/live/internal/report"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoSnapshot is returned when no refresh has completed yet.
	ErrNoSnapshot = errors.New("no reports fetched yet")
	// ErrClosed is returned by refreshes requested after Close.
	ErrClosed = errors.New("refresher closed")
)

// Source produces the full report list for a region.
type Source interface {
	ListAllReportDetails(ctx context.Context, regionURL string) ([]report.Details, error)
}

// Archiver records every report of a completed refresh.
type Archiver interface {
	SaveReports(ctx context.Context, reports []report.Details, seenAt time.Time) (int, error)
}

// Options configures a Refresher.
type Options struct {
	RegionURL string
	Interval  time.Duration
	// StaleTime extends how long a snapshot is reused past one interval
	// before a reader forces a synchronous refresh.
	StaleTime time.Duration
	Timeout   time.Duration
	// ReadWait bounds how long Current waits on a refresh before falling
	// back to the previous snapshot. The fetch itself keeps running.
	ReadWait  time.Duration
	Archiver  Archiver
}

// Snapshot is the result of one completed refresh. It is never mutated after
// publication.
type Snapshot struct {
	ID        uuid.UUID
	Reports   []report.Details
	FetchedAt time.Time
	Duration  time.Duration
}

// Age is the time elapsed since the snapshot was fetched.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// Status summarises the refresher for health reporting.
type Status struct {
	LastSuccess time.Time
	LastError   string
	LastErrorAt time.Time
	Reports     int
	InFlight    bool
}

// Refresher periodically replaces the in-memory snapshot with a fresh fetch.
//
// Overlap policy: a TryRefresh that finds a refresh still running is
// skipped. Synchronous callers of Refresh join the running fetch instead of
// starting another one.
type Refresher struct {
	src  Source
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	group    singleflight.Group
	inFlight atomic.Bool

	// life is cancelled by Close and bounds every fetch; wg tracks them.
	life     context.Context
	stopLife context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	current   *Snapshot
	lastErr   error
	lastErrAt time.Time
}

// New builds a Refresher. Zero durations fall back to the dashboard defaults.
func New(src Source, opts Options, log zerolog.Logger) *Refresher {
	if opts.Interval <= 0 {
		opts.Interval = 20 * time.Second
	}
	if opts.StaleTime < 0 {
		opts.StaleTime = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.ReadWait <= 0 {
		opts.ReadWait = 5 * time.Second
	}
	life, stop := context.WithCancel(context.Background())
	return &Refresher{
		src:      src,
		opts:     opts,
		log:      log.With().Str("component", "refresher").Logger(),
		now:      time.Now,
		life:     life,
		stopLife: stop,
	}
}

// Interval is the period of the refresh loop.
func (r *Refresher) Interval() time.Duration {
	return r.opts.Interval
}

// Run refreshes immediately and then on every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.log.Info().
		Str("region", r.opts.RegionURL).
		Dur("interval", r.opts.Interval).
		Msg("refresh loop started")

	r.TryRefresh(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("refresh loop stopped")
			return
		case <-ticker.C:
			r.TryRefresh(ctx)
		}
	}
}

// TryRefresh starts a refresh unless one is already running, in which case it
// returns false without waiting. The refresh itself runs in the background.
// The in-flight flag is claimed before returning, so of two calls in a row
// only the first starts a fetch.
func (r *Refresher) TryRefresh(ctx context.Context) bool {
	if r.isClosed() {
		return false
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		refreshSkippedTotal.Inc()
		r.log.Debug().Msg("refresh still in flight, skipping")
		return false
	}
	go func() {
		defer r.inFlight.Store(false)
		// Wait for the fetch itself, not for ctx, so the claim is held until
		// it completes.
		_, _ = r.Refresh(context.WithoutCancel(ctx))
	}()
	return true
}

// Refresh fetches a new snapshot, or joins the fetch already in flight. The
// fetch is detached from ctx cancellation so one departing caller does not
// fail the others; it is bounded by the configured timeout and by Close.
func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	ch := r.group.DoChan("reports", func() (interface{}, error) {
		if err := r.track(); err != nil {
			return Snapshot{}, err
		}
		defer r.wg.Done()

		r.inFlight.Store(true)
		defer r.inFlight.Store(false)

		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		defer context.AfterFunc(r.life, cancel)()

		return r.fetch(fctx)
	})

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

// track registers a fetch with Close unless the refresher is already closed.
func (r *Refresher) track() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.wg.Add(1)
	return nil
}

func (r *Refresher) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close cancels running fetches and waits for them to return, archiving
// included. Later refreshes fail with ErrClosed.
func (r *Refresher) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.stopLife()
	r.wg.Wait()
	r.log.Info().Msg("refresher closed")
}

func (r *Refresher) fetch(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	runID := uuid.New()
	log := r.log.With().Str("run_id", runID.String()).Logger()
	start := r.now()

	reports, err := r.src.ListAllReportDetails(ctx, r.opts.RegionURL)
	elapsed := r.now().Sub(start)
	if err != nil {
		observeRefresh(elapsed, err)
		r.mu.Lock()
		r.lastErr = err
		r.lastErrAt = r.now()
		r.mu.Unlock()
		log.Error().Err(err).Dur("duration", elapsed).Msg("refresh failed, keeping previous snapshot")
		return Snapshot{}, err
	}

	snap := Snapshot{
		ID:        runID,
		Reports:   reports,
		FetchedAt: r.now(),
		Duration:  elapsed,
	}

	r.mu.Lock()
	r.current = &snap
	r.lastErr = nil
	r.mu.Unlock()

	observeRefresh(elapsed, nil)
	observeReports(reports)
	log.Info().Int("reports", len(reports)).Dur("duration", elapsed).Msg("reports refreshed")

	if r.opts.Archiver != nil {
		n, err := r.opts.Archiver.SaveReports(ctx, reports, snap.FetchedAt)
		if err != nil {
			log.Warn().Err(err).Msg("archiving reports failed")
		} else {
			log.Debug().Int("archived", n).Msg("reports archived")
		}
	}

	return snap, nil
}

// Latest returns the most recent snapshot, if any.
func (r *Refresher) Latest() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return Snapshot{}, false
	}
	return *r.current, true
}

// Current returns the latest snapshot while it is at most one interval plus
// the staleness window old, and refreshes synchronously otherwise. The wait is
// capped at ReadWait. When that refresh fails or is still running an older
// snapshot is returned.
func (r *Refresher) Current(ctx context.Context) (Snapshot, error) {
	snap, ok := r.Latest()
	if ok && snap.Age(r.now()) <= r.opts.Interval+r.opts.StaleTime {
		return snap, nil
	}

	wctx, cancel := context.WithTimeout(ctx, r.opts.ReadWait)
	defer cancel()

	fresh, err := r.Refresh(wctx)
	if err == nil {
		return fresh, nil
	}
	if ok {
		return snap, nil
	}
	return Snapshot{}, errors.Join(ErrNoSnapshot, err)
}

// Status reports the outcome of the latest refreshes.
func (r *Refresher) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{InFlight: r.inFlight.Load(), LastErrorAt: r.lastErrAt}
	if r.current != nil {
		st.LastSuccess = r.current.FetchedAt
		st.Reports = len(r.current.Reports)
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}
