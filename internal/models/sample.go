package models

import "time"

// Sample is one raw performance observation reported by the host
// application. Samples are owned by the caller and read-only here.
type Sample struct {
	Timestamp                time.Time `json:"timestamp"`
	CPUUsage                 float64   `json:"cpu_usage"`
	MemoryUsage              float64   `json:"memory_usage"`
	DiskUsage                float64   `json:"disk_usage"`
	ActiveConnections        int       `json:"active_connections"`
	AuthenticatedConnections int       `json:"authenticated_connections"`
	AnonymousConnections     int       `json:"anonymous_connections"`
	AvgConnectionDuration    float64   `json:"avg_connection_duration"`
	ResponseTime             float64   `json:"response_time"`
	UniqueIPs                int       `json:"unique_ips"`
}

// Summary carries optional pre-aggregated statistics alongside the samples.
type Summary struct {
	Last24h *WindowAggregate `json:"last_24h,omitempty"`
}

// WindowAggregate holds last-period counters broken down per endpoint and
// per source address.
type WindowAggregate struct {
	TotalRequests int64              `json:"total_requests"`
	EndpointStats []EndpointActivity `json:"endpoint_stats,omitempty"`
	IPStats       []IPActivity       `json:"ip_stats,omitempty"`
}

// EndpointActivity is a raw per-endpoint counter from the summary window.
// LastSeen may be zero when the host did not record one.
type EndpointActivity struct {
	Endpoint      string    `json:"endpoint"`
	Requests      int64     `json:"request_count"`
	ErrorRate     float64   `json:"error_rate"`
	AvgResponseMS float64   `json:"avg_response_time"`
	LastSeen      time.Time `json:"last_seen,omitempty"`
}

// IPActivity is a raw per-address counter from the summary window.
type IPActivity struct {
	Address     string `json:"ip"`
	Endpoint    string `json:"endpoint"`
	Requests    int64  `json:"request_count"`
	RateLimited int64  `json:"rate_limited"`
}
