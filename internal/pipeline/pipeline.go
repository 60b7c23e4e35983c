// Package pipeline drives one sync-and-dispatch run per scheduler tick:
// page tasks since the watermark, filter to done-with-tag, resolve the
// client contact through the parent epic, compose and dispatch a message,
// and persist the ledger and watermark once at the end of the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/PedroDircksen/Lighthouse/internal/core"
	"github.com/PedroDircksen/Lighthouse/internal/dispatch"
	"github.com/PedroDircksen/Lighthouse/internal/notify"
	"github.com/PedroDircksen/Lighthouse/internal/storage"
	"github.com/PedroDircksen/Lighthouse/internal/token"
	"github.com/PedroDircksen/Lighthouse/internal/tracker"
)

// ErrRunInFlight is returned when a tick fires before the previous run
// finished. The overlapping run is skipped, not queued.
var ErrRunInFlight = errors.New("pipeline run already in flight")

// TaskSource is the read-only tracker surface the runner consumes.
type TaskSource interface {
	ListTasks(ctx context.Context, updatedAfter int64, page int) ([]core.Task, bool, error)
	GetTask(ctx context.Context, id string) (core.Epic, error)
}

// Composer produces the message text for one delivery. Implementations
// degrade internally; Compose never fails the task.
type Composer interface {
	Compose(ctx context.Context, client core.Client, tc notify.TaskContext) string
}

// Notifier dispatches one composed message to its destinations.
type Notifier interface {
	Notify(ctx context.Context, phone, email, text string) dispatch.Outcome
	Pause()
}

type Config struct {
	Tag          string
	DoneStatuses map[string]struct{}
	PhoneField   string
	EmailField   string
}

// Stats summarizes one run.
type Stats struct {
	Observed     int
	Qualified    int
	Dispatched   int
	NoContact    int
	NewWatermark int64
}

type Runner struct {
	source     TaskSource
	store      storage.Store
	signer     *token.Signer
	composer   Composer
	dispatcher Notifier
	cfg        Config

	running atomic.Bool
	stop    context.CancelFunc
	stopped chan struct{}
}

func NewRunner(source TaskSource, store storage.Store, signer *token.Signer, composer Composer, dispatcher Notifier, cfg Config) *Runner {
	return &Runner{
		source:     source,
		store:      store,
		signer:     signer,
		composer:   composer,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Start runs the pipeline once immediately, then on every tick of the
// injected cadence until ctx is canceled or Stop is called.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ctx, r.stop = context.WithCancel(ctx)
	r.stopped = make(chan struct{})

	go func() {
		defer close(r.stopped)

		r.tick(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop cancels the scheduler loop and waits for it to finish.
func (r *Runner) Stop() {
	if r.stop != nil {
		r.stop()
		<-r.stopped
	}
}

func (r *Runner) tick(ctx context.Context) {
	stats, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrRunInFlight):
		log.Printf("pipeline: previous run still in flight, skipping tick")
	case err != nil:
		log.Printf("pipeline: run failed: %v", err)
	default:
		log.Printf("pipeline: run done: observed=%d qualified=%d dispatched=%d watermark=%d",
			stats.Observed, stats.Qualified, stats.Dispatched, stats.NewWatermark)
	}
}

// RunOnce executes a single pipeline run. Durable state is read once at
// the start and written once at the end; a run-level error aborts before
// any write, so the next tick recomputes from the last good snapshot.
func (r *Runner) RunOnce(ctx context.Context) (Stats, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Stats{}, ErrRunInFlight
	}
	defer r.running.Store(false)

	var stats Stats

	processed, err := r.store.ProcessedIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("load ledger: %w", err)
	}
	watermark, err := r.store.Watermark(ctx)
	if err != nil {
		return stats, fmt.Errorf("load watermark: %w", err)
	}

	maxUpdated := watermark
	var newIDs []string
	seen := make(map[string]struct{})
	dispatchedBefore := false

	for page := 0; ; page++ {
		tasks, lastPage, err := r.source.ListTasks(ctx, watermark, page)
		if err != nil {
			return stats, fmt.Errorf("list tasks page %d: %w", page, err)
		}

		for _, t := range tasks {
			stats.Observed++
			// Every observed task moves the candidate watermark,
			// qualifying or not.
			if u := t.Updated(); u > maxUpdated {
				maxUpdated = u
			}

			if !tracker.IsDone(t, r.cfg.DoneStatuses) || !tracker.HasTag(t, r.cfg.Tag) {
				continue
			}
			if _, done := processed[t.ID]; done {
				continue
			}
			if _, dup := seen[t.ID]; dup {
				continue
			}
			stats.Qualified++

			mark, sent := r.processTask(ctx, t, &stats, dispatchedBefore)
			if mark {
				seen[t.ID] = struct{}{}
				newIDs = append(newIDs, t.ID)
			}
			if sent {
				dispatchedBefore = true
			}
		}

		if lastPage || len(tasks) == 0 {
			break
		}
	}

	if len(newIDs) > 0 {
		if err := r.store.MarkProcessed(ctx, newIDs); err != nil {
			return stats, fmt.Errorf("persist ledger: %w", err)
		}
	}
	if maxUpdated > watermark {
		if err := r.store.SetWatermark(ctx, maxUpdated); err != nil {
			return stats, fmt.Errorf("persist watermark: %w", err)
		}
	}
	stats.NewWatermark = maxUpdated
	return stats, nil
}

// processTask handles one qualifying, unprocessed task. The first return
// says whether to mark the task processed; the second whether a send
// attempt actually went out. Tasks with permanently unresolvable contact
// data are marked processed without a send so they are never retried;
// transient failures leave the task unmarked for the next tick.
func (r *Runner) processTask(ctx context.Context, t core.Task, stats *Stats, delayFirst bool) (mark, sent bool) {
	epicID := tracker.ResolveEpicID(t.Fields)
	if epicID == "" {
		log.Printf("pipeline: task %s has no detectable epic relation, marking processed without send", t.ID)
		stats.NoContact++
		return true, false
	}

	epic, err := r.source.GetTask(ctx, epicID)
	if err != nil {
		// Transient: leave unmarked, the next tick retries.
		log.Printf("pipeline: task %s fetch epic %s: %v", t.ID, epicID, err)
		return false, false
	}

	phone := tracker.ExtractPhone(epic.Fields, r.cfg.PhoneField)
	if phone == "" {
		log.Printf("pipeline: task %s epic %s has no phone in field %q, marking processed without send", t.ID, epicID, r.cfg.PhoneField)
		stats.NoContact++
		return true, false
	}
	email := tracker.ExtractEmail(epic.Fields, r.cfg.EmailField)

	client, err := r.upsertClient(ctx, phone, epic.ID)
	if err != nil {
		log.Printf("pipeline: task %s upsert client: %v", t.ID, err)
		return false, false
	}

	text := r.composer.Compose(ctx, client, notify.TaskContext{
		TaskName:    t.Name,
		EpicName:    epic.Name,
		Description: t.Description,
	})

	if delayFirst {
		// Rate-limit pause between consecutive sends within one run.
		r.dispatcher.Pause()
	}

	outcome := r.dispatcher.Notify(ctx, phone, email, text)
	if outcome.Primary != nil {
		log.Printf("pipeline: task %s primary send to %s: %v", t.ID, phone, outcome.Primary)
	}
	if outcome.Secondary != nil {
		log.Printf("pipeline: task %s secondary send: %v", t.ID, outcome.Secondary)
	}
	if outcome.Primary == nil {
		stats.Dispatched++
	}

	// At-most-one-attempt: the task is processed regardless of the send
	// outcome, so unreachable clients are never retried.
	return true, true
}

// upsertClient returns the client row for phone, creating it with a
// fresh signed token when none exists. One row per phone, ever.
func (r *Runner) upsertClient(ctx context.Context, phone, epicID string) (core.Client, error) {
	existing, ok, err := r.store.ClientByPhone(ctx, phone)
	if err != nil {
		return core.Client{}, err
	}
	if ok {
		return existing, nil
	}
	c := core.Client{
		ID:        uuid.NewString(),
		Phone:     phone,
		Token:     r.signer.Sign(epicID),
		EpicID:    epicID,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.InsertClient(ctx, c); err != nil {
		return core.Client{}, err
	}
	return c, nil
}
