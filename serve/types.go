package serve

import (
	"time"

	"github.com/everydev1618/nbslot"
)

// --- API Request Types ---

// LaunchRequest is the body of POST /api/launch. Either LaunchID and Build
// are given directly, or ContextID, UserID and Roles are given and the
// launch ID and build flag are derived from them.
type LaunchRequest struct {
	LaunchID   string   `json:"launch_id,omitempty"`
	ResourceID string   `json:"resource_id"`
	Build      bool     `json:"build,omitempty"`
	ContextID  string   `json:"context_id,omitempty"`
	UserID     string   `json:"user_id,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// toLaunch converts the body into a domain request.
func (r LaunchRequest) toLaunch() (nbslot.LaunchRequest, error) {
	if r.LaunchID != "" {
		return nbslot.LaunchRequest{LaunchID: r.LaunchID, ResourceID: r.ResourceID, Build: r.Build}, nil
	}
	id, err := nbslot.LaunchID(r.ContextID, r.UserID, r.ResourceID)
	if err != nil {
		return nbslot.LaunchRequest{}, err
	}
	return nbslot.LaunchRequest{
		LaunchID:   id,
		ResourceID: r.ResourceID,
		Build:      r.Build || nbslot.IsBuildRoles(r.Roles),
	}, nil
}

// --- API Response Types ---

// LaunchResponse is returned by a successful launch.
type LaunchResponse struct {
	URL       string `json:"url"`
	RequestID string `json:"request_id"`
}

// HealthResponse reports server and runtime health.
type HealthResponse struct {
	Status  string `json:"status"`
	Runtime string `json:"runtime"`
	Uptime  string `json:"uptime"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the API error format.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// --- Broker Types ---

// BrokerEvent is published to SSE subscribers.
type BrokerEvent struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id"`
	Launch    string    `json:"launch"`
	Resource  string    `json:"resource"`
	Build     bool      `json:"build"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}
