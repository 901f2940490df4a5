package client

import "time"

// TargetStatus is the JSON projection of one supervised target's state, as
// returned by the status HTTP surface.
type TargetStatus struct {
	Nick           string    `json:"nick"`
	Desired        bool      `json:"desired"`
	ObservedOnline bool      `json:"observed_online"`
	Responsive     bool      `json:"responsive"`
	Restarts       int       `json:"restarts"`
	LastTick       time.Time `json:"last_tick,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
