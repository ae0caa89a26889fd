package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/statlens/statlens-worker/internal/cache"
	"github.com/statlens/statlens-worker/internal/config"
	"github.com/statlens/statlens-worker/internal/engine"
	"github.com/statlens/statlens-worker/internal/metrics"
	"github.com/statlens/statlens-worker/internal/models"
	"github.com/statlens/statlens-worker/internal/utils"
)

// ErrBusy signals a direct Process call while another run is in flight.
// Callers are expected to go through Submit and the coalescer instead.
var ErrBusy = errors.New("a run is already in flight")

// State enumerates the coalescer's phases. The worker is idle until a
// request arrives, debouncing while the quiet period is pending, and
// running while the pipeline executes.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateRunning
)

// Worker owns the request coalescer and the single-flight pipeline driver.
// Requests enter through Submit/SubmitRaw; progress and results leave
// through Events. Run must be started on its own goroutine.
type Worker struct {
	logger      *slog.Logger
	cfg         config.WorkerConfig
	transformer *engine.Transformer
	memo        *cache.ResultCache
	latencies   *utils.LatencyTracker

	requests chan models.Request
	events   chan models.Event

	busy atomic.Bool
}

// New constructs a worker around the supplied transformer and memo cache.
func New(logger *slog.Logger, cfg config.WorkerConfig, transformer *engine.Transformer, memo *cache.ResultCache) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 128
	}
	return &Worker{
		logger:      logger,
		cfg:         cfg,
		transformer: transformer,
		memo:        memo,
		latencies:   utils.NewLatencyTracker(1024),
		requests:    make(chan models.Request, 16),
		events:      make(chan models.Event, buffer),
	}
}

// Events returns the outbound message stream. During a run the worker emits
// zero or more PROGRESS_UPDATE events followed by exactly one
// PROCESSED_DATA or PROCESS_ERROR. Cache hits emit no progress events.
func (w *Worker) Events() <-chan models.Event {
	return w.events
}

// Submit enqueues a request for coalescing. Bursts arriving within the
// debounce window collapse to a single run of the latest payload.
func (w *Worker) Submit(req models.Request) {
	w.requests <- req
}

// SubmitRaw decodes a wire message. The discriminator is sniffed before the
// full payload is unmarshalled; malformed or unrecognized messages are
// answered with a single PROCESS_ERROR event and no progress.
func (w *Worker) SubmitRaw(raw []byte) {
	kind := gjson.GetBytes(raw, "type").String()
	if kind != models.TypeProcessMetrics {
		w.emitError(fmt.Sprintf("unrecognized message type %q", kind))
		return
	}
	var req models.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		w.emitError(fmt.Sprintf("decode request: %v", err))
		return
	}
	w.Submit(req)
}

// Run owns the coalescing state machine: a single state value, a single
// timer handle, and a single pending payload slot. It blocks until ctx is
// cancelled; an in-flight run is allowed to finish first so its result
// still lands in the cache.
func (w *Worker) Run(ctx context.Context) {
	state := StateIdle
	var pending *models.Request
	var timer *time.Timer
	var timerC <-chan time.Time
	runDone := make(chan struct{}, 1)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	arm := func() {
		stopTimer()
		timer = time.NewTimer(w.cfg.DebounceWindow)
		timerC = timer.C
		state = StateDebouncing
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			if state == StateRunning {
				<-runDone
			}
			return

		case req := <-w.requests:
			if req.Type != models.TypeProcessMetrics {
				w.emitError(fmt.Sprintf("unrecognized message type %q", req.Type))
				continue
			}
			if pending != nil {
				// Superseded payloads are dropped silently.
				metrics.ObserveCoalesced()
			}
			captured := req
			pending = &captured
			if state == StateRunning {
				// Accepted immediately; a fresh debounce cycle starts
				// once the current run completes.
				continue
			}
			arm()

		case <-timerC:
			timer = nil
			timerC = nil
			if pending == nil {
				state = StateIdle
				continue
			}
			payload := *pending
			pending = nil
			state = StateRunning
			go func() {
				w.runPipeline(ctx, payload)
				runDone <- struct{}{}
			}()

		case <-runDone:
			state = StateIdle
			if pending != nil {
				arm()
			}
		}
	}
}

// runPipeline drives one run and emits its terminal event.
func (w *Worker) runPipeline(ctx context.Context, req models.Request) {
	start := time.Now()
	bundle, cached, err := w.Process(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveRun(duration, metrics.OutcomeError)
		w.logger.Error("pipeline run failed", slog.Any("error", err))
		w.emitError(err.Error())
		return
	}

	metrics.ObserveRun(duration, metrics.OutcomeSuccess)
	w.latencies.Observe(duration)
	if count := w.latencies.Count(); count >= 20 && count%20 == 0 {
		stats := w.memo.Snapshot()
		w.logger.Info("pipeline health",
			slog.Duration("p95", w.latencies.Percentile(95)),
			slog.Duration("avg", w.latencies.Average()),
			slog.Int("samples", count),
			slog.Uint64("cache_hits", stats.Hits),
			slog.Uint64("cache_misses", stats.Misses),
			slog.Uint64("cache_evictions", stats.Evictions))
	}
	w.logger.Debug("pipeline run complete",
		slog.Int("points", len(bundle.PerformancePoints)),
		slog.Bool("cached", cached),
		slog.Duration("duration", duration))

	w.emit(models.Event{Type: models.TypeProcessedData, Data: &bundle})
}

// Process executes one transformation synchronously, bypassing the
// coalescer. At most one run may be in flight; a concurrent call fails with
// ErrBusy. The busy flag is cleared unconditionally on exit, and a failed
// run never writes a cache entry. The second return reports a cache hit.
func (w *Worker) Process(ctx context.Context, req models.Request) (models.ResultBundle, bool, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return models.ResultBundle{}, false, utils.NewAppError("process", "pipeline is busy", ErrBusy)
	}
	defer w.busy.Store(false)

	if len(req.Metrics) == 0 {
		return models.ResultBundle{}, false, utils.NewAppError("process", "metrics are required", engine.ErrEmptyMetrics)
	}

	key := engine.Fingerprint(req.Metrics, req.Summary)
	if bundle, ok := w.memo.Get(key); ok {
		metrics.ObserveCacheLookup(true)
		w.logger.Debug("memo cache hit", slog.String("fingerprint", key))
		// Cache hits are deliberately silent: no progress events.
		return bundle, true, nil
	}
	metrics.ObserveCacheLookup(false)

	bundle, err := w.transformer.Transform(ctx, req.Metrics, req.Summary, w.progressSink())
	if err != nil {
		return models.ResultBundle{}, false, fmt.Errorf("transform: %w", err)
	}

	w.memo.Set(key, bundle)
	return bundle, false, nil
}

// progressSink returns a per-run callback that throttles progress reports
// to at most one per ProgressInterval, always letting 100% through.
func (w *Worker) progressSink() func(float64) {
	interval := w.cfg.ProgressInterval
	var lastEmit time.Time
	lastPct := -1
	return func(p float64) {
		pct := int(p)
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if pct == lastPct {
			return
		}
		now := time.Now()
		if pct < 100 && interval > 0 && !lastEmit.IsZero() && now.Sub(lastEmit) < interval {
			return
		}
		lastEmit = now
		lastPct = pct
		w.emitProgress(pct)
	}
}

// emit delivers a terminal event; these are reliable within the buffer.
func (w *Worker) emit(ev models.Event) {
	w.events <- ev
}

// emitProgress is best-effort: progress updates are dropped rather than
// blocking the pipeline when the consumer falls behind.
func (w *Worker) emitProgress(pct int) {
	select {
	case w.events <- models.Event{Type: models.TypeProgressUpdate, Progress: pct}:
	default:
	}
}

func (w *Worker) emitError(msg string) {
	w.emit(models.Event{Type: models.TypeProcessError, Error: msg})
}
