package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/ticket"
	"github.com/zen-systems/ticketflow/pkg/workflow"
)

const (
	maxSubjectLen = 200
	maxBodyLen    = 5000
	maxHintLen    = 50
	bodyLimit     = 64 << 10
)

// TicketRequest is the POST /tickets body.
type TicketRequest struct {
	CustomerID   string `json:"customer_id"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	Email        string `json:"email,omitempty"`
	Tier         string `json:"tier,omitempty"`
	CategoryHint string `json:"category_hint,omitempty"`
}

// Validate checks field presence and lengths.
func (r TicketRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.CustomerID) == "":
		return errors.New("customer_id is required")
	case strings.TrimSpace(r.Subject) == "":
		return errors.New("subject is required")
	case utf8.RuneCountInString(r.Subject) > maxSubjectLen:
		return errors.New("subject must be at most 200 characters")
	case strings.TrimSpace(r.Body) == "":
		return errors.New("body is required")
	case utf8.RuneCountInString(r.Body) > maxBodyLen:
		return errors.New("body must be at most 5000 characters")
	case r.Email != "" && !strings.Contains(r.Email, "@"):
		return errors.New("email is invalid")
	case utf8.RuneCountInString(r.CategoryHint) > maxHintLen:
		return errors.New("category_hint must be at most 50 characters")
	}
	return nil
}

// TicketResponse is the processed ticket.
type TicketResponse struct {
	TicketID         string                       `json:"ticket_id"`
	CorrelationID    string                       `json:"correlation_id"`
	Status           ticket.Status                `json:"status"`
	Routing          *ticket.RoutingDecision      `json:"routing,omitempty"`
	Resolution       *ticket.Resolution           `json:"resolution,omitempty"`
	Interactions     []ticket.Interaction         `json:"interactions"`
	TokenUsage       map[string]ticket.TokenUsage `json:"token_usage"`
	ProcessingTimeMS int64                        `json:"processing_time_ms"`
	Error            string                       `json:"error,omitempty"`
}

func responseFor(s ticket.State) TicketResponse {
	status := ticket.StatusPending
	if s.Resolution != nil {
		status = s.Resolution.Status
	}
	return TicketResponse{
		TicketID:         s.TicketID,
		CorrelationID:    s.CorrelationID,
		Status:           status,
		Routing:          s.Routing,
		Resolution:       s.Resolution,
		Interactions:     s.Interactions,
		TokenUsage:       s.Metadata.TokenUsage,
		ProcessingTimeMS: s.Metadata.Latency.Milliseconds(),
	}
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	req, ok := readJSON[TicketRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	state, err := s.processor.ProcessRequest(ctx, workflow.Request{
		TicketID:      workflow.NewTicketID(),
		CorrelationID: CorrelationID(r.Context()),
		CustomerID:    req.CustomerID,
		Email:         req.Email,
		Tier:          ticket.ParseTier(req.Tier),
		Subject:       req.Subject,
		Body:          req.Body,
		CategoryHint:  req.CategoryHint,
	})
	s.remember(state)

	resp := responseFor(state)
	if err != nil {
		s.logger.Error("ticket_processing_failed",
			zap.String("ticket_id", state.TicketID),
			zap.String("correlation_id", state.CorrelationID),
			zap.Error(err),
		)
		resp.Error = "ticket processing failed"
		code := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrInvalidRequest) {
			code = http.StatusBadRequest
		}
		writeJSON(w, code, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, ok := s.results.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, responseFor(state))
}

func (s *Server) remember(state ticket.State) {
	if state.TicketID == "" {
		return
	}
	s.results.SetWithTTL(state.TicketID, state, 1, s.cfg.ResultCacheTTL)
	s.results.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	summary := s.processor.UsageSummary()
	writeJSON(w, http.StatusOK, struct {
		PromptTokens     int64   `json:"total_prompt_tokens"`
		CompletionTokens int64   `json:"total_completion_tokens"`
		TotalTokens      int64   `json:"total_tokens"`
		Cost             float64 `json:"total_cost"`
		Calls            int64   `json:"total_calls"`
	}{
		PromptTokens:     summary.PromptTokens,
		CompletionTokens: summary.CompletionTokens,
		TotalTokens:      summary.TotalTokens(),
		Cost:             summary.Cost,
		Calls:            summary.Calls,
	})
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
