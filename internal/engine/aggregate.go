package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/statlens/statlens-worker/internal/models"
)

// AggregationConfig controls the endpoint/IP rollups derived from the
// summary aggregate.
type AggregationConfig struct {
	// ExcludedEndpoints are self-monitoring routes removed outright,
	// matched against the raw path before normalization.
	ExcludedEndpoints []string
	// Window restricts aggregation to entries whose own timestamp falls
	// within this distance of now. Entries without a usable timestamp are
	// retained. Zero disables the window.
	Window time.Duration
	// TopPercent is the share of routes kept after sorting by volume,
	// rounded up so a non-empty input always yields at least one route.
	TopPercent float64
}

// NormalizeEndpoint collapses purely numeric path segments into a wildcard
// marker so per-resource-ID routes aggregate as one logical route, e.g.
// /users/42/profile -> /users/*/profile.
func NormalizeEndpoint(path string) string {
	if !strings.Contains(path, "/") {
		return path
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isDigits(seg) {
			segments[i] = "*"
		}
	}
	return strings.Join(segments, "/")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// AggregateEndpoints groups raw endpoint counters by normalized route,
// summing request counts and computing request-weighted rate averages,
// then keeps the top TopPercent routes by volume.
func AggregateEndpoints(entries []models.EndpointActivity, cfg AggregationConfig, now time.Time) []models.EndpointStat {
	if len(entries) == 0 {
		return nil
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedEndpoints))
	for _, e := range cfg.ExcludedEndpoints {
		excluded[e] = struct{}{}
	}

	type group struct {
		requests    int64
		errWeighted float64
		latWeighted float64
	}
	groups := make(map[string]*group, len(entries))
	order := make([]string, 0, len(entries))

	for _, entry := range entries {
		if _, skip := excluded[entry.Endpoint]; skip {
			continue
		}
		if cfg.Window > 0 && !entry.LastSeen.IsZero() && now.Sub(entry.LastSeen) > cfg.Window {
			continue
		}
		key := NormalizeEndpoint(entry.Endpoint)
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.requests += entry.Requests
		g.errWeighted += entry.ErrorRate * float64(entry.Requests)
		g.latWeighted += entry.AvgResponseMS * float64(entry.Requests)
	}
	if len(order) == 0 {
		return nil
	}

	stats := make([]models.EndpointStat, 0, len(order))
	for _, key := range order {
		g := groups[key]
		stat := models.EndpointStat{Endpoint: key, Requests: g.requests}
		if g.requests > 0 {
			stat.ErrorRate = g.errWeighted / float64(g.requests)
			stat.AvgResponseMS = g.latWeighted / float64(g.requests)
		}
		stats = append(stats, stat)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Requests > stats[j].Requests
	})

	pct := cfg.TopPercent
	if pct <= 0 || pct > 100 {
		pct = 100
	}
	keep := int(math.Ceil(float64(len(stats)) * pct / 100))
	if keep < 1 {
		keep = 1
	}
	if keep < len(stats) {
		stats = stats[:keep]
	}
	return stats
}

// AggregateIPs sums request and rate-limited counts per source address and
// counts the distinct endpoints each address touched, sorted descending by
// request volume.
func AggregateIPs(entries []models.IPActivity) []models.IPStat {
	if len(entries) == 0 {
		return nil
	}

	type rollup struct {
		requests    int64
		rateLimited int64
		endpoints   map[string]struct{}
	}
	byAddr := make(map[string]*rollup, len(entries))
	order := make([]string, 0, len(entries))

	for _, entry := range entries {
		r, ok := byAddr[entry.Address]
		if !ok {
			r = &rollup{endpoints: make(map[string]struct{})}
			byAddr[entry.Address] = r
			order = append(order, entry.Address)
		}
		r.requests += entry.Requests
		r.rateLimited += entry.RateLimited
		if entry.Endpoint != "" {
			r.endpoints[entry.Endpoint] = struct{}{}
		}
	}

	stats := make([]models.IPStat, 0, len(order))
	for _, addr := range order {
		r := byAddr[addr]
		stats = append(stats, models.IPStat{
			Address:     addr,
			Requests:    r.requests,
			RateLimited: r.rateLimited,
			Endpoints:   len(r.endpoints),
		})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Requests > stats[j].Requests
	})
	return stats
}
