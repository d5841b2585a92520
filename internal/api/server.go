// Package api provides the HTTP API over the chain.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (operator control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/orchestrator"
)

// Server serves the chain state over HTTP.
type Server struct {
	Chain    *orchestrator.Orchestrator
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	decisionLimiter := NewRateLimiter(120, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/traces", s.handleTraces)
	mux.HandleFunc("/api/v1/trace/", s.handleTraceDetail)
	mux.HandleFunc("/api/v1/requests", s.handleRequests)
	mux.HandleFunc("/api/v1/decisions", s.handleDecisionLog)
	mux.HandleFunc("/api/v1/results", s.handleResults)

	// Operator endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/decision", s.adminOnly(RateLimitMiddleware(decisionLimiter, s.handleDecision)))
	mux.HandleFunc("/api/v1/inject", s.adminOnly(s.handleInject))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "operator endpoints disabled (no CHAINFLOW_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Chain.Snapshot()
	status := map[string]any{
		"name":             "chainflow",
		"time":             snap.Time,
		"agents":           len(snap.Agents),
		"active_traces":    snap.ActiveTraces,
		"pending_requests": snap.PendingRequests,
		"total_revenue":    snap.TotalRevenue,
	}
	writeJSON(w, status)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Chain.Snapshot())
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	type traceSummary struct {
		ID       string  `json:"id"`
		Material string  `json:"material"`
		Quantity float64 `json:"quantity"`
		Location string  `json:"location"`
		Steps    int     `json:"steps"`
	}

	var result []traceSummary
	for _, t := range s.Chain.Traces() {
		result = append(result, traceSummary{
			ID:       t.ID,
			Material: t.CurrentMaterial,
			Quantity: t.CurrentQuantity,
			Location: t.CurrentLocation,
			Steps:    len(t.Steps),
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleTraceDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing trace id", http.StatusBadRequest)
		return
	}
	t, ok := s.Chain.Trace(parts[4])
	if !ok {
		http.Error(w, "trace not found", http.StatusNotFound)
		return
	}
	writeJSON(w, t)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Chain.PendingRequests())
}

func (s *Server) handleDecisionLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Chain.DecisionLog())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Chain.Results())
}

// handleDecision resolves one pending operator request:
// POST {"request_id": "...", "values": {...}}.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID string          `json:"request_id"`
		Values    decision.Values `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.RequestID == "" {
		http.Error(w, "request_id required", http.StatusBadRequest)
		return
	}

	if err := s.Chain.ProcessRequest(req.RequestID, req.Values); err != nil {
		var verr *decision.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"request_id": req.RequestID,
		"status":     "completed",
		"pending":    len(s.Chain.PendingRequests()),
	})
}

// handleInject starts a new material flow at a mine:
// POST {"mine_id": "...", "ore": "...", "quantity": 300}.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MineID   string  `json:"mine_id"`
		Ore      string  `json:"ore"`
		Quantity float64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.MineID == "" || req.Ore == "" {
		http.Error(w, "mine_id and ore required", http.StatusBadRequest)
		return
	}

	t, err := s.Chain.InjectRawMaterials(req.MineID, req.Ore, req.Quantity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, t)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
