package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ajiwo/throttler"
	"github.com/ajiwo/throttler/metrics"
)

type checkRequest struct {
	Tokens *int64 `json:"tokens"`
}

type checkResponse struct {
	Allowed   bool   `json:"allowed"`
	Remaining uint64 `json:"remaining"`
	Limit     uint64 `json:"limit"`
	WindowMs  int64  `json:"window_ms"`
	Degraded  bool   `json:"degraded,omitempty"`
}

type denyResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds uint64 `json:"retry_after_seconds"`
	Limit             uint64 `json:"limit"`
	WindowMs          int64  `json:"window_ms"`
}

type statusResponse struct {
	Key       string `json:"key"`
	Remaining uint64 `json:"remaining"`
	Limit     uint64 `json:"limit"`
	WindowMs  int64  `json:"window_ms"`
	Degraded  bool   `json:"degraded,omitempty"`
}

type ruleRequest struct {
	Capacity   uint64  `json:"capacity"`
	RefillRate float64 `json:"refill_rate"`
	WindowMs   int64   `json:"window_ms"`
	Enabled    *bool   `json:"enabled"`
}

type ruleResponse struct {
	Capacity   uint64  `json:"capacity"`
	RefillRate float64 `json:"refill_rate"`
	WindowMs   int64   `json:"window_ms"`
	Enabled    bool    `json:"enabled"`
}

type rulesResponse struct {
	Default ruleResponse            `json:"default"`
	Rules   map[string]ruleResponse `json:"rules"`
}

type mutationResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Key     string `json:"key"`
}

type metricsResponse struct {
	Global metrics.Counters            `json:"global"`
	Keys   map[string]metrics.Counters `json:"keys"`
}

type storeReport struct {
	Mode           string `json:"mode"`
	Connected      bool   `json:"connected"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	LastError      string `json:"last_error,omitempty"`
}

type healthResponse struct {
	Status        string      `json:"status"`
	Version       string      `json:"version"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Store         storeReport `json:"store"`
}

type readyResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
	Note   string `json:"note,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// check admits or denies one request for the key. The optional body
// sets the token cost; an empty body costs one token.
func (a *api) check(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	tokens := int64(1)
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "bad_request",
			Message: "request body must be JSON: " + err.Error(),
		})
		return
	}
	if req.Tokens != nil {
		tokens = *req.Tokens
	}
	if tokens < 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "bad_config",
			Message: "tokens must be non-negative",
		})
		return
	}

	out, err := a.limiter.DecideN(r.Context(), key, uint64(tokens))
	if err != nil {
		respondError(w, err)
		return
	}
	a.metrics.Record(key, out.Allowed)

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatUint(out.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatUint(out.Remaining, 10))
	h.Set("X-RateLimit-Window", strconv.FormatInt(out.WindowMs, 10))

	if out.Allowed {
		respondJSON(w, http.StatusOK, checkResponse{
			Allowed:   true,
			Remaining: out.Remaining,
			Limit:     out.Limit,
			WindowMs:  out.WindowMs,
			Degraded:  out.Degraded,
		})
		return
	}

	retry := retryAfterSeconds(out)
	h.Set("Retry-After", strconv.FormatUint(retry, 10))
	respondJSON(w, http.StatusTooManyRequests, denyResponse{
		Error:             "rate_limit_exceeded",
		Message:           fmt.Sprintf("rate limit exceeded for key %q, retry after %d seconds", key, retry),
		RetryAfterSeconds: retry,
		Limit:             out.Limit,
		WindowMs:          out.WindowMs,
	})
}

// status reports the key's balance without consuming anything.
func (a *api) status(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	st, err := a.limiter.Peek(r.Context(), key)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Key:       key,
		Remaining: st.Remaining,
		Limit:     st.Limit,
		WindowMs:  st.WindowMs,
		Degraded:  st.Degraded,
	})
}

// setRule installs or replaces the key's rule.
func (a *api) setRule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "bad_request",
			Message: "request body must be JSON: " + err.Error(),
		})
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := throttler.Rule{
		Capacity:   req.Capacity,
		RefillRate: req.RefillRate,
		Window:     time.Duration(req.WindowMs) * time.Millisecond,
		Enabled:    enabled,
	}
	if err := a.limiter.SetRule(key, rule); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, mutationResponse{
		Status:  "success",
		Message: "rate limit configured",
		Key:     key,
	})
}

// deleteRule removes the key's explicit rule and resets its bucket, so
// the key starts over under the default rule.
func (a *api) deleteRule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if _, _, err := a.limiter.DeleteRule(key); err != nil {
		respondError(w, err)
		return
	}
	if err := a.limiter.Reset(r.Context(), key); err != nil {
		respondError(w, err)
		return
	}
	a.metrics.ResetKey(key)
	respondJSON(w, http.StatusOK, mutationResponse{
		Status:  "success",
		Message: "rate limit removed",
		Key:     key,
	})
}

// listRules returns the default rule and every explicit rule.
func (a *api) listRules(w http.ResponseWriter, r *http.Request) {
	resp := rulesResponse{
		Default: toRuleResponse(a.limiter.DefaultRule()),
		Rules:   make(map[string]ruleResponse),
	}
	for key, rule := range a.limiter.Rules() {
		resp.Rules[key] = toRuleResponse(rule)
	}
	respondJSON(w, http.StatusOK, resp)
}

// metricsSnapshot returns per-key and aggregate request counters.
func (a *api) metricsSnapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, metricsResponse{
		Global: a.metrics.Global(),
		Keys:   a.metrics.Snapshot(),
	})
}

// health always answers 200 while the process lives; a degraded status
// means the shared store is down and the local fallback is serving.
func (a *api) health(w http.ResponseWriter, r *http.Request) {
	report := a.limiter.Probe()

	status := "healthy"
	if report.FallbackActive {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		Version:       a.version,
		UptimeSeconds: int64(time.Since(a.started).Seconds()),
		Store: storeReport{
			Mode:           a.mode,
			Connected:      report.StoreReachable,
			ResponseTimeMs: report.PingLatency.Milliseconds(),
			LastError:      report.LastError,
		},
	})
}

// ready answers 503 only when the store is down and the policy refuses
// local decisions; a degraded open-local instance still serves.
func (a *api) ready(w http.ResponseWriter, r *http.Request) {
	report := a.limiter.Probe()
	switch {
	case report.StoreReachable:
		respondJSON(w, http.StatusOK, readyResponse{Status: "ready", Store: "connected"})
	case report.FallbackActive:
		respondJSON(w, http.StatusOK, readyResponse{
			Status: "ready",
			Store:  "disconnected",
			Note:   "running on local fallback",
		})
	default:
		respondJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "unavailable"})
	}
}

func toRuleResponse(rule throttler.Rule) ruleResponse {
	return ruleResponse{
		Capacity:   rule.Capacity,
		RefillRate: rule.RefillRate,
		WindowMs:   rule.WindowMs(),
		Enabled:    rule.Enabled,
	}
}

// retryAfterSeconds renders a denial's retry hint for the Retry-After
// header. A hint that no waiting can satisfy maps to the rule's window,
// and the result is never zero.
func retryAfterSeconds(out throttler.Outcome) uint64 {
	if out.RetryAfterMs == throttler.Never {
		return max(uint64((out.WindowMs+999)/1000), 1)
	}
	return max((out.RetryAfterMs+999)/1000, 1)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps the engine's error taxonomy onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, throttler.ErrInvalidKey):
		status, code = http.StatusBadRequest, "invalid_key"
	case errors.Is(err, throttler.ErrBadConfig):
		status, code = http.StatusBadRequest, "bad_config"
	case errors.Is(err, throttler.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "store_unavailable"
	}
	respondJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}
