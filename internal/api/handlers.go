package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"hirelane.com/interview-orchestrator/internal/auth"
	"hirelane.com/interview-orchestrator/internal/interview"
	"hirelane.com/interview-orchestrator/internal/store"
)

// Orchestrator is the interview service surface the handlers depend on.
type Orchestrator interface {
	Initialize(ctx context.Context, applicationID string, forceRestart bool) (*interview.InitResult, error)
	Chat(ctx context.Context, applicationID, message string) (*interview.ChatResult, error)
	Evaluate(ctx context.Context, applicationID string, refresh bool) (*interview.EvalResult, error)
	State(ctx context.Context, applicationID string) (*interview.StateResult, error)
	ClearHistory(ctx context.Context, applicationID string) error
}

type contextKey string

const subjectContextKey contextKey = "subject"

// SubjectFromContext returns the token subject stored by JWTAuthMiddleware,
// or "" when the request was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey).(string)
	return subject
}

type APIHandler struct {
	interviews Orchestrator
	tokens     *auth.TokenValidator
	validate   *validator.Validate
}

func NewAPIHandler(interviews Orchestrator, tokens *auth.TokenValidator) *APIHandler {
	return &APIHandler{
		interviews: interviews,
		tokens:     tokens,
		validate:   validator.New(),
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		subject, err := h.tokens.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type InitRequest struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	ForceRestart  bool   `json:"forceRestart"`
}

func (h *APIHandler) InitHandler(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "applicationId is required", http.StatusBadRequest)
		return
	}

	result, err := h.interviews.Initialize(r.Context(), req.ApplicationID, req.ForceRestart)
	if err != nil {
		log.Printf("Error initializing interview for application %s: %v", req.ApplicationID, err)
		http.Error(w, "Failed to initialize interview", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type ChatRequest struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	Message       string `json:"message" validate:"required"`
	// History is accepted for contract compatibility but the stored
	// transcript is authoritative.
	History []store.Message `json:"history,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "applicationId and message are required", http.StatusBadRequest)
		return
	}

	result, err := h.interviews.Chat(r.Context(), req.ApplicationID, req.Message)
	if err != nil {
		if errors.Is(err, interview.ErrSessionNotFound) {
			http.Error(w, "Interview not found", http.StatusNotFound)
			return
		}
		log.Printf("Error processing chat for application %s: %v", req.ApplicationID, err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type EvaluateRequest struct {
	ApplicationID string `json:"applicationId" validate:"required"`
}

func (h *APIHandler) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "applicationId is required", http.StatusBadRequest)
		return
	}
	h.evaluate(w, r, req.ApplicationID, false)
}

func (h *APIHandler) AutoEvaluateHandler(w http.ResponseWriter, r *http.Request) {
	applicationID := r.URL.Query().Get("applicationId")
	if applicationID == "" {
		http.Error(w, "applicationId is required", http.StatusBadRequest)
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"
	h.evaluate(w, r, applicationID, refresh)
}

func (h *APIHandler) evaluate(w http.ResponseWriter, r *http.Request, applicationID string, refresh bool) {
	result, err := h.interviews.Evaluate(r.Context(), applicationID, refresh)
	if err != nil {
		switch {
		case errors.Is(err, interview.ErrSessionNotFound):
			http.Error(w, "Interview not found", http.StatusNotFound)
		case errors.Is(err, interview.ErrNotCompleted):
			http.Error(w, "Interview is not completed yet", http.StatusConflict)
		default:
			log.Printf("Error evaluating interview for application %s: %v", applicationID, err)
			http.Error(w, "Failed to evaluate interview", http.StatusInternalServerError)
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *APIHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	applicationID := r.URL.Query().Get("applicationId")
	if applicationID == "" {
		http.Error(w, "applicationId is required", http.StatusBadRequest)
		return
	}

	result, err := h.interviews.State(r.Context(), applicationID)
	if err != nil {
		if errors.Is(err, interview.ErrSessionNotFound) {
			http.Error(w, "Interview not found", http.StatusNotFound)
			return
		}
		log.Printf("Error fetching interview state for application %s: %v", applicationID, err)
		http.Error(w, "Failed to fetch interview state", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *APIHandler) DeleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	applicationID := r.URL.Query().Get("applicationId")
	if applicationID == "" {
		http.Error(w, "applicationId is required", http.StatusBadRequest)
		return
	}

	if err := h.interviews.ClearHistory(r.Context(), applicationID); err != nil {
		log.Printf("Error clearing interview history for application %s: %v", applicationID, err)
		http.Error(w, "Failed to clear interview history", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
