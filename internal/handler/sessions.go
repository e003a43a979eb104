package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lazywriter/internal/i18n"
	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/scoring"
	"github.com/pavelanni/lazywriter/internal/session"
)

type startRequest struct {
	Context string `json:"context"`
	Model   string `json:"model"`
	Quiz    bool   `json:"quiz"`
}

type turnRequest struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	SelectedIndices []int    `json:"selectedIndices"`
	FreeText        string   `json:"freeText"`
	CorrectIndices  []int    `json:"correctIndices"`
	APIKey          string   `json:"apiKey"`
	Model           string   `json:"model"`
}

type turnResponse struct {
	Index   int    `json:"index"`
	TurnID  string `json:"turnId"`
	Answer  string `json:"answer"`
	Grading bool   `json:"grading"`
}

type turnScoreView struct {
	session.TurnScore
	Label string `json:"label"`
}

type scoreResponse struct {
	ContextID  string          `json:"contextId"`
	Turns      []turnScoreView `json:"turns"`
	Total      scoring.Total   `json:"total"`
	Percent    float64         `json:"percent"`
	TotalLabel string          `json:"totalLabel"`
	Answered   string          `json:"answered"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.List()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode := model.ModeEssay
	if req.Quiz {
		mode = model.ModeQuiz
	}
	sess, err := h.sessions.Start(req.Context, h.modelFor(req.Model, false), mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("session started", "id", sess.ID, "mode", sess.Mode, "turns", len(sess.Turns))
	w.Header().Set("Location", model.BasePathFromContext(r.Context())+"/api/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Delete(id); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("session deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleAppendTurn records an answer. In quiz mode the answer is graded in
// the background when an API key is available.
func (h *Handler) handleAppendTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req turnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quiz := sess.Mode == model.ModeQuiz
	ref, turn, err := h.sessions.AppendTurn(id, session.TurnInput{
		Question:        req.Question,
		Options:         req.Options,
		SelectedIndices: req.SelectedIndices,
		FreeText:        req.FreeText,
		CorrectIndices:  req.CorrectIndices,
		Quiz:            quiz,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := turnResponse{Index: ref.Index, TurnID: ref.TurnID, Answer: turn.Answer}
	if quiz {
		key := req.APIKey
		if key == "" {
			key = h.config.DefaultAPIKey
		}
		if key != "" {
			modelName := req.Model
			if modelName == "" {
				modelName = sess.Model
			}
			h.gradeInBackground(r.Context(), ref, turn, sess.Topic, key, h.modelFor(modelName, false))
			resp.Grading = true
		} else {
			slog.Warn("quiz turn not graded, no API key", "session", id, "turn", ref.Index)
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rep, err := h.sessions.Scores(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	views := make([]turnScoreView, 0, len(rep.Turns))
	for _, t := range rep.Turns {
		views = append(views, turnScoreView{TurnScore: t, Label: i18n.ScoreLabel(ctx, t.Score)})
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		ContextID:  id,
		Turns:      views,
		Total:      rep.Total,
		Percent:    rep.Total.Percent(),
		TotalLabel: i18n.TotalLabel(ctx, rep.Total),
		Answered:   i18n.Tp(ctx, "QuestionsAnswered", len(rep.Turns)),
	})
}
