package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/approval"
	"github.com/junki-kanda/AutGuardRails/pkg/event"
	"github.com/junki-kanda/AutGuardRails/pkg/guardrail"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/telemetry/logging"
	"github.com/junki-kanda/AutGuardRails/pkg/telemetry/metrics"
)

// MaxEventBodySize is the maximum allowed event body size (1MB). Cost
// notifications are a few KB; anything near the cap is not one.
const MaxEventBodySize = 1 << 20

// errorResponse is the JSON error body every handler writes.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// EventsHandler ingests cost events.
type EventsHandler struct {
	controller Guardrail
	collector  *metrics.Collector
	logger     *slog.Logger
}

// NewEventsHandler creates the POST /events handler. The collector may be
// nil.
func NewEventsHandler(controller Guardrail, collector *metrics.Collector) *EventsHandler {
	return &EventsHandler{
		controller: controller,
		collector:  collector,
		logger:     slog.With("component", "events-handler"),
	}
}

// ServeHTTP implements http.Handler. It normalizes the posted payload,
// evaluates it, and answers 202 with the decision. Malformed payloads are
// 400 and never reach evaluation.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxEventBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > MaxEventBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "event body exceeds 1MB")
		return
	}

	ev, err := event.Parse(body)
	if err != nil {
		if h.collector != nil {
			h.collector.RecordEvent("unknown", "invalid", 0)
		}
		h.logger.WarnContext(ctx, "rejected cost event",
			"request_id", logging.GetRequestID(ctx),
			"error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.collector != nil {
		h.collector.RecordEvent(string(ev.Source), "accepted", ev.AmountUSD)
	}

	start := time.Now()
	decision, err := h.controller.Evaluate(ctx, ev)
	if err != nil {
		h.logger.ErrorContext(ctx, "event evaluation failed",
			"request_id", logging.GetRequestID(ctx),
			"event_id", ev.EventID,
			"error", err)
		writeError(w, http.StatusInternalServerError, "event evaluation failed")
		return
	}

	if h.collector != nil {
		h.collector.RecordEvaluation(decision.PolicyID, string(decision.Outcome), time.Since(start))
		for _, exec := range decision.Executions {
			h.collector.RecordExecution(exec.PolicyID, string(exec.Mode), string(exec.Status))
		}
	}

	h.logger.InfoContext(ctx, "event evaluated",
		"request_id", logging.GetRequestID(ctx),
		"event_id", ev.EventID,
		"source", ev.Source,
		"account_id", ev.AccountID,
		"amount_usd", ev.AmountUSD,
		"outcome", decision.Outcome,
		"policy_id", decision.PolicyID,
	)

	writeJSON(w, http.StatusAccepted, decision)
}

// ApproveHandler consumes signed decision links.
type ApproveHandler struct {
	controller Guardrail
	collector  *metrics.Collector
	logger     *slog.Logger
}

// NewApproveHandler creates the /approve handler. The collector may be nil.
func NewApproveHandler(controller Guardrail, collector *metrics.Collector) *ApproveHandler {
	return &ApproveHandler{
		controller: controller,
		collector:  collector,
		logger:     slog.With("component", "approve-handler"),
	}
}

// ServeHTTP implements http.Handler. Links are clicked from chat clients, so
// both GET and POST are accepted, and a consumed link answers 200 with
// outcome "already_resolved" rather than an error. Every token defect is the
// same opaque 403.
func (h *ApproveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET or POST")
		return
	}

	req := guardrail.ResolveRequest{
		ExecutionID: r.FormValue("id"),
		Decision:    approval.Decision(r.FormValue("decision")),
		Token:       r.FormValue("sig"),
		Timestamp:   r.FormValue("ts"),
		Actor:       r.FormValue("actor"),
	}

	resolution, err := h.controller.ResolveApproval(ctx, req)
	if err != nil {
		if errors.Is(err, approval.ErrInvalidToken) {
			if h.collector != nil {
				h.collector.RecordResolution(string(req.Decision), "invalid_token")
			}
			h.logger.WarnContext(ctx, "rejected approval link",
				"request_id", logging.GetRequestID(ctx),
				"execution_id", req.ExecutionID)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		var notFound *ledger.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}

		h.logger.ErrorContext(ctx, "approval resolution failed",
			"request_id", logging.GetRequestID(ctx),
			"execution_id", req.ExecutionID,
			"error", err)
		writeError(w, http.StatusInternalServerError, "approval resolution failed")
		return
	}

	if h.collector != nil {
		h.collector.RecordResolution(string(req.Decision), string(resolution.Outcome))
	}

	h.logger.InfoContext(ctx, "approval link resolved",
		"request_id", logging.GetRequestID(ctx),
		"execution_id", resolution.ExecutionID,
		"decision", req.Decision,
		"outcome", resolution.Outcome,
	)

	writeJSON(w, http.StatusOK, resolution)
}
