package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lazywriter/internal/i18n"
	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/prompts"
)

type promptBody struct {
	Kind   string         `json:"kind,omitempty"`
	Prompt string         `json:"prompt"`
	Source prompts.Source `json:"source,omitempty"`
}

type keyRequest struct {
	APIKey string `json:"apiKey"`
	Model  string `json:"model"`
}

type keyResponse struct {
	Valid    bool   `json:"valid"`
	Greeting string `json:"greeting,omitempty"`
	Error    string `json:"error,omitempty"`
}

// promptKind reads {kind} and rejects unknown kinds with 404.
func promptKind(w http.ResponseWriter, r *http.Request) (prompts.Kind, bool) {
	k := chi.URLParam(r, "kind")
	if !prompts.IsValidKind(k) {
		writeMessage(w, http.StatusNotFound, i18n.Td(r.Context(), "UnknownPromptKind", map[string]any{"Kind": k}), "")
		return "", false
	}
	return prompts.Kind(k), true
}

func (h *Handler) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	kind, ok := promptKind(w, r)
	if !ok {
		return
	}
	tmpl, src, err := h.prompts.Template(kind, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promptBody{Kind: string(kind), Prompt: tmpl, Source: src})
}

func (h *Handler) handlePutPrompt(w http.ResponseWriter, r *http.Request) {
	kind, ok := promptKind(w, r)
	if !ok {
		return
	}
	var req promptBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "InvalidRequest"), "")
		return
	}
	if err := h.store.SetPromptOverride(string(kind), req.Prompt); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("prompt override saved", "kind", kind, "len", len(req.Prompt))
	writeJSON(w, http.StatusOK, promptBody{Kind: string(kind), Prompt: req.Prompt, Source: prompts.SourceOverride})
}

// handleDeletePrompt drops the override and answers with the default.
func (h *Handler) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	kind, ok := promptKind(w, r)
	if !ok {
		return
	}
	if err := h.store.DeletePromptOverride(string(kind)); err != nil {
		writeError(w, r, err)
		return
	}
	tmpl, src, err := h.prompts.Default(kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("prompt override removed", "kind", kind)
	writeJSON(w, http.StatusOK, promptBody{Kind: string(kind), Prompt: tmpl, Source: src})
}

// handleSystemPrompt serves the built-in question template.
func (h *Handler) handleSystemPrompt(w http.ResponseWriter, r *http.Request) {
	tmpl, _, err := h.prompts.Default(prompts.KindQuestion)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promptBody{Prompt: tmpl})
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.GetSettings()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var st model.Settings
	if !decodeJSON(w, r, &st) {
		return
	}
	st.Context = prompts.Sanitize(st.Context)
	if err := h.store.SaveSettings(st); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	key, ok := h.apiKey(w, r, r.URL.Query().Get("apiKey"))
	if !ok {
		return
	}
	models, err := h.catalog.ListModels(r.Context(), key)
	if err != nil {
		var ue *model.UpstreamError
		if !errors.As(err, &ue) {
			err = &model.UpstreamError{Status: http.StatusBadGateway, Message: err.Error()}
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handleTestKey always answers 200; a rejected key is reported in the body.
func (h *Handler) handleTestKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "ApiKeyRequired"), "")
		return
	}
	greeting, err := h.catalog.Greet(r.Context(), req.APIKey, h.modelFor(req.Model, false))
	if err != nil {
		slog.Warn("API key check failed", "error", err)
		writeJSON(w, http.StatusOK, keyResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, keyResponse{Valid: true, Greeting: greeting})
}
