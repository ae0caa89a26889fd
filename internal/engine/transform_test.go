package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/statlens/statlens-worker/internal/models"
)

func testTransformer() *Transformer {
	return NewTransformer(nil, BatchConfig{ChunkSize: 10}, AggregationConfig{TopPercent: 100})
}

func TestTransformSingleSampleScenario(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	samples := []models.Sample{{
		Timestamp:                ts,
		CPUUsage:                 10,
		MemoryUsage:              20,
		DiskUsage:                5,
		ActiveConnections:        4,
		AuthenticatedConnections: 3,
		AnonymousConnections:     1,
		AvgConnectionDuration:    100,
		ResponseTime:             50,
		UniqueIPs:                2,
	}}

	bundle, err := testTransformer().Transform(context.Background(), samples, &models.Summary{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bundle.PerformancePoints) != 1 {
		t.Fatalf("expected one performance point, got %d", len(bundle.PerformancePoints))
	}
	perf := bundle.PerformancePoints[0]
	if perf.CPU != 10 || perf.Memory != 20 || perf.Disk != 5 || perf.Duration != 100 {
		t.Fatalf("unexpected performance point: %+v", perf)
	}

	if len(bundle.ConnectionPoints) != 1 {
		t.Fatalf("expected one connection point, got %d", len(bundle.ConnectionPoints))
	}
	conn := bundle.ConnectionPoints[0]
	if conn.Total != 4 || conn.Authenticated != 3 || conn.Anonymous != 1 {
		t.Fatalf("unexpected connection point: %+v", conn)
	}

	if len(bundle.AuthBreakdown) != 2 {
		t.Fatalf("expected two auth slices, got %d", len(bundle.AuthBreakdown))
	}
	if bundle.AuthBreakdown[0].Name != "Authenticated" || bundle.AuthBreakdown[0].Percent != 75.0 {
		t.Fatalf("unexpected authenticated slice: %+v", bundle.AuthBreakdown[0])
	}
	if bundle.AuthBreakdown[1].Name != "Anonymous" || bundle.AuthBreakdown[1].Percent != 25.0 {
		t.Fatalf("unexpected anonymous slice: %+v", bundle.AuthBreakdown[1])
	}

	if len(bundle.EndpointStats) != 0 || len(bundle.IPStats) != 0 {
		t.Fatalf("expected empty aggregations, got %d/%d", len(bundle.EndpointStats), len(bundle.IPStats))
	}
	if !bundle.LastSampleAt.Equal(ts) {
		t.Fatalf("expected LastSampleAt %v, got %v", ts, bundle.LastSampleAt)
	}
}

func TestTransformOutputMatchesInputLengthAndOrder(t *testing.T) {
	now := time.Now()
	samples := make([]models.Sample, 0, 137)
	for i := 0; i < 137; i++ {
		samples = append(samples, models.Sample{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			CPUUsage:  float64(i),
		})
	}

	bundle, err := testTransformer().Transform(context.Background(), samples, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bundle.PerformancePoints) != len(samples) {
		t.Fatalf("performance points: expected %d, got %d", len(samples), len(bundle.PerformancePoints))
	}
	if len(bundle.ConnectionPoints) != len(samples) {
		t.Fatalf("connection points: expected %d, got %d", len(samples), len(bundle.ConnectionPoints))
	}
	for i, p := range bundle.PerformancePoints {
		if p.CPU != float64(i) {
			t.Fatalf("point %d out of order: cpu=%f", i, p.CPU)
		}
	}
}

func TestTransformProgressIsOneContinuousSweep(t *testing.T) {
	now := time.Now()
	samples := make([]models.Sample, 60)
	for i := range samples {
		samples[i] = models.Sample{Timestamp: now.Add(time.Duration(i) * time.Second)}
	}

	var reports []float64
	_, err := testTransformer().Transform(context.Background(), samples, nil, func(p float64) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) == 0 {
		t.Fatalf("expected progress reports")
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] < reports[i-1] {
			t.Fatalf("progress regressed between passes: %v", reports)
		}
	}
	if first := reports[0]; first > 50 {
		t.Fatalf("first report should fall in the lower half, got %f", first)
	}
	if last := reports[len(reports)-1]; last != 100 {
		t.Fatalf("expected final progress 100, got %f", last)
	}
}

func TestTransformRejectsEmptyInput(t *testing.T) {
	_, err := testTransformer().Transform(context.Background(), nil, nil, nil)
	if !errors.Is(err, ErrEmptyMetrics) {
		t.Fatalf("expected ErrEmptyMetrics, got %v", err)
	}
}

func TestAuthBreakdownZeroConnections(t *testing.T) {
	slices := authBreakdown(models.Sample{})
	if len(slices) != 2 {
		t.Fatalf("expected two slices, got %d", len(slices))
	}
	if slices[0].Percent != 0 || slices[1].Percent != 0 {
		t.Fatalf("expected 0/0 split for zero connections, got %+v", slices)
	}
}
