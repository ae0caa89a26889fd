package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"time"
)

type sample struct {
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

type endpointActivity struct {
	Endpoint      string    `json:"endpoint"`
	Requests      int64     `json:"request_count"`
	ErrorRate     float64   `json:"error_rate"`
	AvgResponseMS float64   `json:"avg_response_time"`
	LastSeen      time.Time `json:"last_seen,omitempty"`
}

type ipActivity struct {
	Address     string `json:"ip"`
	Endpoint    string `json:"endpoint"`
	Requests    int64  `json:"request_count"`
	RateLimited int64  `json:"rate_limited"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/stats/snapshot", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		samples := make([]sample, 0, 30)
		for i := 29; i >= 0; i-- {
			auth := 5 + rand.Intn(20)
			anon := rand.Intn(10)
			samples = append(samples, sample{
				Timestamp:                now.Add(-time.Duration(i) * time.Minute),
				CPUUsage:                 20 + rand.Float64()*60,
				MemoryUsage:              30 + rand.Float64()*40,
				DiskUsage:                55 + rand.Float64()*5,
				ActiveConnections:        auth + anon,
				AuthenticatedConnections: auth,
				AnonymousConnections:     anon,
				AvgConnectionDuration:    50 + rand.Float64()*200,
				ResponseTime:             10 + rand.Float64()*90,
				UniqueIPs:                3 + rand.Intn(12),
			})
		}

		writeJSON(w, map[string]any{
			"metrics": samples,
			"summary": map[string]any{
				"last_24h": map[string]any{
					"total_requests": 48211,
					"endpoint_stats": []endpointActivity{
						{Endpoint: "/users/42/profile", Requests: 1200, ErrorRate: 0.8, AvgResponseMS: 45, LastSeen: now.Add(-5 * time.Minute)},
						{Endpoint: "/users/7/profile", Requests: 300, ErrorRate: 1.2, AvgResponseMS: 61, LastSeen: now.Add(-12 * time.Minute)},
						{Endpoint: "/search", Requests: 2400, ErrorRate: 0.1, AvgResponseMS: 120, LastSeen: now.Add(-time.Minute)},
						{Endpoint: "/metrics", Requests: 9000, ErrorRate: 0, AvgResponseMS: 2},
					},
					"ip_stats": []ipActivity{
						{Address: "203.0.113.9", Endpoint: "/search", Requests: 900, RateLimited: 12},
						{Address: "203.0.113.9", Endpoint: "/users/42/profile", Requests: 340, RateLimited: 0},
						{Address: "198.51.100.4", Endpoint: "/search", Requests: 210, RateLimited: 3},
					},
				},
			},
		})
	})

	addr := ":8900"
	log.Printf("mock-agent listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("mock-agent exited: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
