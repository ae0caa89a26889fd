package models

// Message discriminators. An inbound message whose Type is not
// TypeProcessMetrics is answered with a single TypeProcessError event.
const (
	TypeProcessMetrics = "PROCESS_METRICS"
	TypeProgressUpdate = "PROGRESS_UPDATE"
	TypeProcessedData  = "PROCESSED_DATA"
	TypeProcessError   = "PROCESS_ERROR"
)

// Request is the inbound message handled by the worker.
type Request struct {
	Type    string   `json:"type"`
	Metrics []Sample `json:"metrics"`
	Summary *Summary `json:"summary,omitempty"`
}

// Event is an outbound message. During a run the worker emits zero or more
// progress events, then exactly one data or error event.
type Event struct {
	Type     string        `json:"type"`
	Progress int           `json:"progress,omitempty"`
	Data     *ResultBundle `json:"data,omitempty"`
	Error    string        `json:"error,omitempty"`
}
