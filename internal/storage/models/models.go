package models

import "time"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// PlotRecord is one plot request as kept in the history table.
type PlotRecord struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Kind      string            `json:"kind"`
	Volcano   string            `json:"volcano"`
	Inputs    map[string]string `json:"inputs"`
	Features  []float64         `json:"features,omitempty"`
	ModelID   string            `json:"model_id"`
	Status    string            `json:"status"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
	Points    int               `json:"points"`
	Cached    bool              `json:"cached"`
	LatencyMS int               `json:"latency_ms"`
	CreatedAt time.Time         `json:"created_at"`
}

// KindStats aggregates history for one activity kind.
type KindStats struct {
	Kind         string  `json:"kind"`
	Total        int     `json:"total"`
	Failed       int     `json:"failed"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}
