package gateway

import (
	"net/http"
	"time"
)

// HealthStatus describes the gateway's liveness
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	NATSConnected bool          `json:"nats_connected"`
	HasBoardState bool          `json:"has_board_state"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	Intake        PipelineStats `json:"intake"`
	Errors        []string      `json:"errors"`
}

type connectionStatus interface {
	IsConnected() bool
}

// HealthChecker reports whether the broadcast channel is reachable
type HealthChecker struct {
	pipeline *Pipeline
	nats     connectionStatus
}

// NewHealthChecker creates a health checker for a pipeline fed by conn
func NewHealthChecker(pipeline *Pipeline, conn connectionStatus) *HealthChecker {
	return &HealthChecker{
		pipeline: pipeline,
		nats:     conn,
	}
}

// Check gathers the current health status. A missing board state is not
// unhealthy: it only means no game is being broadcast.
func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Healthy:       true,
		NATSConnected: h.nats.IsConnected(),
		HasBoardState: h.pipeline.Snapshot().BoardState != nil,
		Intake:        h.pipeline.Stats(),
		Errors:        []string{},
	}
	if last := h.pipeline.LastMessageAt(); !last.IsZero() {
		status.LastMessageAt = &last
	}

	if !status.NATSConnected {
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS disconnected")
	}
	if !status.Intake.DelaySet && status.Intake.Buffered > 0 {
		status.Errors = append(status.Errors, "broadcaster latency unknown, messages are being held")
	}

	return status
}

// ServeHTTP writes the health status, 503 when unhealthy
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

