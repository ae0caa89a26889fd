package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/statlens/statlens-worker/internal/models"
	"github.com/statlens/statlens-worker/internal/utils"
)

// ErrEmptyMetrics signals a request without any samples to transform.
var ErrEmptyMetrics = errors.New("metrics payload is empty")

// Fixed colors for the auth breakdown slices.
const (
	authenticatedColor = "#22c55e"
	anonymousColor     = "#94a3b8"
)

// Transformer reshapes a sample window into the chart-ready ResultBundle.
type Transformer struct {
	logger *slog.Logger
	batch  BatchConfig
	agg    AggregationConfig
	now    func() time.Time
}

// NewTransformer constructs a transformer with the supplied pacing and
// aggregation settings.
func NewTransformer(logger *slog.Logger, batch BatchConfig, agg AggregationConfig) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		logger: logger,
		batch:  batch,
		agg:    agg,
		now:    time.Now,
	}
}

// Transform runs the two chunked projections over the samples, derives the
// auth breakdown and endpoint/IP aggregations from the summary, and
// assembles the bundle. Progress spans one continuous 0-100 sweep: the
// performance pass occupies the lower half, the connection pass the upper.
func (t *Transformer) Transform(ctx context.Context, samples []models.Sample, summary *models.Summary, onProgress func(float64)) (models.ResultBundle, error) {
	if len(samples) == 0 {
		return models.ResultBundle{}, utils.NewAppError("transform", "no samples provided", ErrEmptyMetrics)
	}

	half := func(offset float64) func(float64) {
		if onProgress == nil {
			return nil
		}
		return func(p float64) { onProgress(offset + p/2) }
	}

	perf, err := ProcessInBatches(ctx, t.batch, samples, performancePoint, half(0))
	if err != nil {
		return models.ResultBundle{}, fmt.Errorf("performance projection: %w", err)
	}
	conns, err := ProcessInBatches(ctx, t.batch, samples, connectionPoint, half(50))
	if err != nil {
		return models.ResultBundle{}, fmt.Errorf("connection projection: %w", err)
	}

	last := samples[len(samples)-1]
	bundle := models.ResultBundle{
		PerformancePoints: perf,
		ConnectionPoints:  conns,
		AuthBreakdown:     authBreakdown(last),
		EndpointStats:     []models.EndpointStat{},
		IPStats:           []models.IPStat{},
		Summary:           summary,
		LastSampleAt:      last.Timestamp,
	}

	if summary != nil && summary.Last24h != nil {
		if eps := AggregateEndpoints(summary.Last24h.EndpointStats, t.agg, t.now()); eps != nil {
			bundle.EndpointStats = eps
		}
		if ips := AggregateIPs(summary.Last24h.IPStats); ips != nil {
			bundle.IPStats = ips
		}
	}

	return bundle, nil
}

func performancePoint(s models.Sample) (models.PerformancePoint, error) {
	return models.PerformancePoint{
		Time:         utils.ChartLabel(s.Timestamp),
		CPU:          s.CPUUsage,
		Memory:       s.MemoryUsage,
		Disk:         s.DiskUsage,
		Duration:     s.AvgConnectionDuration,
		ResponseTime: s.ResponseTime,
		UniqueIPs:    s.UniqueIPs,
	}, nil
}

func connectionPoint(s models.Sample) (models.ConnectionPoint, error) {
	return models.ConnectionPoint{
		Time:          utils.ChartLabel(s.Timestamp),
		Total:         s.ActiveConnections,
		Authenticated: s.AuthenticatedConnections,
		Anonymous:     s.AnonymousConnections,
	}, nil
}

// authBreakdown splits the newest sample's connections into fixed-color
// authenticated/anonymous shares. Zero connections yields 0/0 rather than NaN.
func authBreakdown(last models.Sample) []models.AuthSlice {
	total := last.AuthenticatedConnections + last.AnonymousConnections
	var authPct, anonPct float64
	if total > 0 {
		authPct = float64(last.AuthenticatedConnections) / float64(total) * 100
		anonPct = float64(last.AnonymousConnections) / float64(total) * 100
	}
	return []models.AuthSlice{
		{Name: "Authenticated", Percent: authPct, Color: authenticatedColor},
		{Name: "Anonymous", Percent: anonPct, Color: anonymousColor},
	}
}
