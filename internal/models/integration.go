package models

import "time"

// Integration is the connection config for an external service. The ID is a
// stable short string such as "pg" or "redis". Password fields inside
// ConfigJSON are encrypted in place by the cipher before persistence.
type Integration struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ConfigJSON string     `json:"config_json"`
	Status     string     `json:"status"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

const (
	IntegrationConnected    = "connected"
	IntegrationDisconnected = "disconnected"
)

// IntegrationTestResult reports a live connection attempt.
type IntegrationTestResult struct {
	ID        string  `json:"id"`
	Success   bool    `json:"success"`
	LatencyMS float64 `json:"latency_ms"`
	Message   string  `json:"message,omitempty"`
}
