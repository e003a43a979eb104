package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lazywriter/internal/gemini"
	"github.com/pavelanni/lazywriter/internal/i18n"
	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/prompts"
	"github.com/pavelanni/lazywriter/internal/session"
	"github.com/pavelanni/lazywriter/internal/store"
)

// Catalog lists models and validates keys. *gemini.Catalog implements it.
type Catalog interface {
	ListModels(ctx context.Context, apiKey string) ([]model.ModelInfo, error)
	Greet(ctx context.Context, apiKey, modelName string) (string, error)
}

// Grader grades one quiz answer. *llm.Client implements it.
type Grader interface {
	GradeAnswer(ctx context.Context, apiKey, modelName, prompt string, numOptions int, correct []int) (model.Feedback, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *session.Manager
	gemini   *gemini.Client
	catalog  Catalog
	grader   Grader
	prompts  *prompts.Resolver
	config   model.Config

	// background grading
	wg sync.WaitGroup
}

// New creates a new Handler.
func New(s *store.Store, up *gemini.Client, cat Catalog, g Grader, res *prompts.Resolver, cfg model.Config) (*Handler, error) {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = model.DefaultModel
	}
	return &Handler{
		store:    s,
		sessions: session.NewManager(s),
		gemini:   up,
		catalog:  cat,
		grader:   g,
		prompts:  res,
		config:   cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/generate-question", h.handleGenerateQuestion)
		r.Post("/finalize", h.handleFinalize)
		r.Post("/quiz-finalize", h.handleQuizFinalize)
		r.Post("/quiz-feedback", h.handleQuizFeedback)

		r.Get("/list-models", h.handleListModels)
		r.Post("/test-key", h.handleTestKey)
		r.Get("/system-prompt", h.handleSystemPrompt)

		r.Get("/prompts/{kind}", h.handleGetPrompt)
		r.Put("/prompts/{kind}", h.handlePutPrompt)
		r.Delete("/prompts/{kind}", h.handleDeletePrompt)

		r.Get("/settings", h.handleGetSettings)
		r.Put("/settings", h.handlePutSettings)

		r.Get("/sessions", h.handleListSessions)
		r.Post("/sessions", h.handleStartSession)
		r.Get("/sessions/{id}", h.handleGetSession)
		r.Delete("/sessions/{id}", h.handleDeleteSession)
		r.Post("/sessions/{id}/turns", h.handleAppendTurn)
		r.Get("/sessions/{id}/score", h.handleScore)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Wait blocks until background grading has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// maxBodyBytes caps request bodies. Essays and histories fit easily.
const maxBodyBytes = 4 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		slog.Warn("invalid request body", "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "InvalidRequest"), "")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg, modelName string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Model: modelName})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		if ue.Status >= 400 && ue.Status < 600 {
			return ue.Status
		}
		return http.StatusBadGateway
	}
	var te *model.TransportError
	switch {
	case errors.As(err, &te), errors.Is(err, model.ErrIncompleteResult):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrEmptyTopic), errors.Is(err, model.ErrEmptyQuestion),
		errors.Is(err, model.ErrMissingCorrectIndices), errors.Is(err, model.ErrInvalidIndex):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrTurnChanged), errors.Is(err, model.ErrAlreadyGraded):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	var modelName string
	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		modelName = ue.Model
	}
	writeMessage(w, status, i18n.ErrorMessage(r.Context(), err), modelName)
}

// apiKey picks the request key, falling back to the configured one.
func (h *Handler) apiKey(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	if k := strings.TrimSpace(requested); k != "" {
		return k, true
	}
	if h.config.DefaultAPIKey != "" {
		return h.config.DefaultAPIKey, true
	}
	writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "ApiKeyRequired"), "")
	return "", false
}

// modelFor picks the request model, then the saved preference, then the
// configured default. finalize selects the finalize preference.
func (h *Handler) modelFor(requested string, finalize bool) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}
	if st, err := h.store.GetSettings(); err != nil {
		slog.Warn("load settings", "error", err)
	} else {
		if finalize && st.FinalizeModel != "" {
			return st.FinalizeModel
		}
		if st.Model != "" {
			return st.Model
		}
	}
	return h.config.DefaultModel
}
