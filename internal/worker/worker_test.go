package worker

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/statlens/statlens-worker/internal/cache"
	"github.com/statlens/statlens-worker/internal/config"
	"github.com/statlens/statlens-worker/internal/engine"
	"github.com/statlens/statlens-worker/internal/models"
)

func newTestWorker(debounce time.Duration) *Worker {
	transformer := engine.NewTransformer(nil,
		engine.BatchConfig{ChunkSize: 10},
		engine.AggregationConfig{TopPercent: 100})
	cfg := config.WorkerConfig{
		DebounceWindow: debounce,
		EventBuffer:    64,
	}
	return New(nil, cfg, transformer, cache.New(5, time.Hour))
}

func sampleRequest(cpu float64) models.Request {
	return models.Request{
		Type: models.TypeProcessMetrics,
		Metrics: []models.Sample{{
			Timestamp: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
			CPUUsage:  cpu,
		}},
	}
}

func awaitTerminal(t *testing.T, w *Worker) models.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Type == models.TypeProgressUpdate {
				continue
			}
			return ev
		case <-deadline:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func samplesEndingAt(last time.Time, n int) []models.Sample {
	samples := make([]models.Sample, n)
	for i := range samples {
		samples[i] = models.Sample{Timestamp: last.Add(time.Duration(i-n+1) * time.Second)}
	}
	return samples
}

func TestCoalescingBurstRunsOnceWithLatestPayload(t *testing.T) {
	w := newTestWorker(40 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Submit(sampleRequest(1))
	w.Submit(sampleRequest(2))
	w.Submit(sampleRequest(3))

	ev := awaitTerminal(t, w)
	if ev.Type != models.TypeProcessedData {
		t.Fatalf("expected PROCESSED_DATA, got %+v", ev)
	}
	if got := ev.Data.PerformancePoints[0].CPU; got != 3 {
		t.Fatalf("expected the last payload of the burst, got cpu=%f", got)
	}

	// The earlier payloads were superseded, not queued.
	select {
	case extra := <-w.Events():
		if extra.Type != models.TypeProgressUpdate {
			t.Fatalf("unexpected second terminal event: %+v", extra)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRequestArrivingWhileRunningIsDeferred(t *testing.T) {
	// Tiny chunks with a long yield keep the first run in flight long
	// enough to land a second request mid-run.
	transformer := engine.NewTransformer(nil,
		engine.BatchConfig{ChunkSize: 1, YieldThreshold: time.Nanosecond, YieldDuration: 10 * time.Millisecond},
		engine.AggregationConfig{TopPercent: 100})
	cfg := config.WorkerConfig{DebounceWindow: 20 * time.Millisecond, EventBuffer: 64}
	w := New(nil, cfg, transformer, cache.New(5, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	lastA := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	lastB := lastA.Add(time.Minute)
	w.Submit(models.Request{Type: models.TypeProcessMetrics, Metrics: samplesEndingAt(lastA, 6)})

	var terminals []models.Event
	submitted := false
	deadline := time.After(5 * time.Second)
	for len(terminals) < 2 {
		select {
		case ev := <-w.Events():
			if ev.Type == models.TypeProgressUpdate {
				if !submitted {
					// The first run is underway; this request must be
					// deferred until it completes, never dropped.
					w.Submit(models.Request{Type: models.TypeProcessMetrics, Metrics: samplesEndingAt(lastB, 6)})
					submitted = true
				}
				continue
			}
			terminals = append(terminals, ev)
		case <-deadline:
			t.Fatalf("timed out with %d terminal events", len(terminals))
		}
	}

	for i, ev := range terminals {
		if ev.Type != models.TypeProcessedData {
			t.Fatalf("terminal %d: expected PROCESSED_DATA, got %+v", i, ev)
		}
	}
	if got := terminals[0].Data.LastSampleAt; !got.Equal(lastA) {
		t.Fatalf("first run processed wrong payload: %v", got)
	}
	if got := terminals[1].Data.LastSampleAt; !got.Equal(lastB) {
		t.Fatalf("deferred request was not re-debounced and run: %v", got)
	}
}

func TestRunEmitsErrorForUnrecognizedRequestType(t *testing.T) {
	w := newTestWorker(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Submit(models.Request{Type: "FLUSH_METRICS"})

	ev := awaitTerminal(t, w)
	if ev.Type != models.TypeProcessError {
		t.Fatalf("expected PROCESS_ERROR, got %+v", ev)
	}
	if ev.Error == "" {
		t.Fatal("expected a populated error message")
	}
}

func TestProcessSecondIdenticalCallHitsCache(t *testing.T) {
	w := newTestWorker(time.Millisecond)
	req := sampleRequest(7)

	first, cached, err := w.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Fatal("first call should compute, not hit the cache")
	}

	// Drain progress from the first run; the cached replay must add none.
	for len(w.events) > 0 {
		<-w.events
	}

	second, cached, err := w.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cached {
		t.Fatal("second identical call should hit the cache")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached bundle differs from computed bundle")
	}
	if n := len(w.events); n != 0 {
		t.Fatalf("cache hit emitted %d progress events", n)
	}
}

func TestProcessRejectsEmptyMetrics(t *testing.T) {
	w := newTestWorker(time.Millisecond)

	_, _, err := w.Process(context.Background(), models.Request{Type: models.TypeProcessMetrics})
	if !errors.Is(err, engine.ErrEmptyMetrics) {
		t.Fatalf("expected ErrEmptyMetrics, got %v", err)
	}
	if n := len(w.events); n != 0 {
		t.Fatalf("validation failure emitted %d events from Process", n)
	}
}

func TestFailedRunWritesNoCacheEntry(t *testing.T) {
	w := newTestWorker(time.Millisecond)
	req := sampleRequest(5)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := w.Process(cancelled, req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to abort the transform, got %v", err)
	}
	if n := w.memo.Len(); n != 0 {
		t.Fatalf("failed run wrote %d cache entries", n)
	}

	// The busy flag was released and a retry recomputes from scratch.
	_, cached, err := w.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Fatal("retry after a failed run must not be served from the cache")
	}
}

func TestProcessWhileBusyFails(t *testing.T) {
	w := newTestWorker(time.Millisecond)
	w.busy.Store(true)

	_, _, err := w.Process(context.Background(), sampleRequest(1))
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	w.busy.Store(false)
	if _, _, err := w.Process(context.Background(), sampleRequest(1)); err != nil {
		t.Fatalf("expected recovery once the flag clears, got %v", err)
	}
}

func TestSubmitRawUnknownDiscriminator(t *testing.T) {
	w := newTestWorker(time.Millisecond)

	w.SubmitRaw([]byte(`{"type":"UNKNOWN_KIND","metrics":[]}`))

	select {
	case ev := <-w.Events():
		if ev.Type != models.TypeProcessError {
			t.Fatalf("expected PROCESS_ERROR, got %+v", ev)
		}
	default:
		t.Fatal("expected an immediate error event")
	}
	if n := len(w.events); n != 0 {
		t.Fatalf("expected exactly one event, %d remain", n)
	}
}

func TestSubmitRawMalformedPayload(t *testing.T) {
	w := newTestWorker(time.Millisecond)

	w.SubmitRaw([]byte(`{"type":"PROCESS_METRICS","metrics":"not-an-array"}`))

	select {
	case ev := <-w.Events():
		if ev.Type != models.TypeProcessError {
			t.Fatalf("expected PROCESS_ERROR, got %+v", ev)
		}
	default:
		t.Fatal("expected an immediate error event")
	}
}
