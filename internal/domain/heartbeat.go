package domain

import "time"

// Health is the heartbeat classification.
type Health string

const (
	HealthHealthy  Health = "HEALTHY"
	HealthWarning  Health = "WARNING"
	HealthCritical Health = "CRITICAL"
	HealthError    Health = "ERROR"
)

// OpenPositionSummary is what the heartbeat needs to judge price freshness.
type OpenPositionSummary struct {
	Count      int64
	LastUpdate *time.Time
}

// HeartbeatRecord is the persisted mirror of a monitor's state, readable by
// processes that do not run the monitor themselves.
type HeartbeatRecord struct {
	Service       string
	LastHeartbeat time.Time
	Health        Health
	UpdatedAt     time.Time
}

// ConnectionStatus backs the price-feed indicator on the dashboard.
type ConnectionStatus struct {
	Source    string    `json:"source"`
	Status    string    `json:"status"` // connected, disconnected, error
	LatencyMS int64     `json:"latency_ms"`
	UpdatedAt time.Time `json:"updated_at"`
}
