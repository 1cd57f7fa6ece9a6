package handlers

import "net/http"

// ConsumerState is the part of the consumer loop exposed on /status.
type ConsumerState interface {
	Running() bool
	ProcessedCount() int64
}

// NewStatusHandler returns GET /status handler.
func NewStatusHandler(group, consumer string, state ConsumerState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"group":     group,
			"consumer":  consumer,
			"running":   state.Running(),
			"processed": state.ProcessedCount(),
		})
	}
}
