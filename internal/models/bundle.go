package models

import "time"

// PerformancePoint is one chart-ready gauge record derived from a Sample.
type PerformancePoint struct {
	Time         string  `json:"time"`
	CPU          float64 `json:"cpu"`
	Memory       float64 `json:"memory"`
	Disk         float64 `json:"disk"`
	Duration     float64 `json:"duration"`
	ResponseTime float64 `json:"response_time"`
	UniqueIPs    int     `json:"unique_ips"`
}

// ConnectionPoint is one chart-ready connection-count record.
type ConnectionPoint struct {
	Time          string `json:"time"`
	Total         int    `json:"total"`
	Authenticated int    `json:"authenticated"`
	Anonymous     int    `json:"anonymous"`
}

// AuthSlice is one entry of the authenticated/anonymous breakdown.
type AuthSlice struct {
	Name    string  `json:"name"`
	Percent float64 `json:"value"`
	Color   string  `json:"color"`
}

// EndpointStat is an aggregated, normalized route with request-weighted rates.
type EndpointStat struct {
	Endpoint      string  `json:"endpoint"`
	Requests      int64   `json:"request_count"`
	ErrorRate     float64 `json:"error_rate"`
	AvgResponseMS float64 `json:"avg_response_time"`
}

// IPStat is an aggregated source address with its distinct endpoint count.
type IPStat struct {
	Address     string `json:"ip"`
	Requests    int64  `json:"request_count"`
	RateLimited int64  `json:"rate_limited"`
	Endpoints   int    `json:"endpoint_count"`
}

// ResultBundle is the complete derived output of one transformation. It is
// the unit stored in the memo cache and returned to the caller; entry age
// is measured from LastSampleAt, not from insertion time.
type ResultBundle struct {
	PerformancePoints []PerformancePoint `json:"performance"`
	ConnectionPoints  []ConnectionPoint  `json:"connections"`
	AuthBreakdown     []AuthSlice        `json:"auth_breakdown"`
	EndpointStats     []EndpointStat     `json:"endpoint_stats"`
	IPStats           []IPStat           `json:"ip_stats"`
	Summary           *Summary           `json:"summary,omitempty"`
	LastSampleAt      time.Time          `json:"last_sample_at"`
}
