package serve

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/everydev1618/nbslot"
)

// maxBodySize caps launch request bodies.
const maxBodySize = 64 << 10

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var body LaunchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     "invalid request body: " + err.Error(),
			Kind:      string(nbslot.KindInvalidRequest),
			RequestID: requestID,
		})
		return
	}

	req, err := body.toLaunch()
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	ctx := r.Context()
	if s.cfg.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LaunchTimeout)
		defer cancel()
	}

	event := BrokerEvent{
		RequestID: requestID,
		Launch:    req.LaunchID,
		Resource:  req.ResourceID,
		Build:     req.Build,
	}
	s.publish("launch.started", event)

	accessURL, err := s.launcher.Launch(ctx, req)
	if err != nil {
		event.Kind = string(nbslot.Kind(err))
		event.Error = err.Error()
		s.publish("launch.failed", event)
		s.logger.Error("launch request failed", "request", requestID, "kind", event.Kind, "error", err)
		writeError(w, requestID, err)
		return
	}

	if u, err := url.Parse(accessURL); err == nil {
		event.Host = u.Host
	}
	s.publish("launch.completed", event)

	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, accessURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, LaunchResponse{URL: accessURL, RequestID: requestID})
}

func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	status, err := s.slot.Status(r.Context())
	if err != nil {
		writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Runtime: "ok",
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	}
	if err := s.runtime.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Runtime = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) publish(typ string, e BrokerEvent) {
	e.Type = typ
	e.Timestamp = time.Now()
	s.broker.Publish(e)
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch nbslot.Kind(err) {
	case nbslot.KindInvalidRequest:
		return http.StatusBadRequest
	case nbslot.KindRuntimeUnavailable:
		return http.StatusServiceUnavailable
	case nbslot.KindTokenTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, requestID string, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{
		Error:     err.Error(),
		Kind:      string(nbslot.Kind(err)),
		RequestID: requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
