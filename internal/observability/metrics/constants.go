package metrics

import "time"

// Outcome labels shared by counters.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ShutdownTimeout bounds graceful shutdown of the metrics HTTP server.
const ShutdownTimeout = 5 * time.Second

func statusLabel(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
