package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/lazywriter/internal/gemini"
	"github.com/pavelanni/lazywriter/internal/i18n"
	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/prompts"
	"github.com/pavelanni/lazywriter/internal/session"
	"github.com/pavelanni/lazywriter/internal/sse"
	"github.com/pavelanni/lazywriter/internal/stream"
)

// readGenerate decodes and validates a generation request. When the body
// names a session but carries no history, the stored history is used.
func (h *Handler) readGenerate(w http.ResponseWriter, r *http.Request) (model.GenerateRequest, string, bool) {
	var req model.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return req, "", false
	}
	key, ok := h.apiKey(w, r, req.APIKey)
	if !ok {
		return req, "", false
	}
	if strings.TrimSpace(req.Context) == "" {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "ContextRequired"), "")
		return req, "", false
	}
	if req.ConversationHistory == nil && req.ContextID != "" {
		sess, err := h.sessions.Get(req.ContextID)
		if err != nil {
			writeError(w, r, err)
			return req, "", false
		}
		req.ConversationHistory = sess.Turns
	}
	return req, key, true
}

func (h *Handler) template(w http.ResponseWriter, r *http.Request, kind prompts.Kind, requested string) (string, bool) {
	tmpl, src, err := h.prompts.Template(kind, requested)
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	slog.Debug("prompt resolved", "kind", kind, "source", src)
	return tmpl, true
}

// openStream starts the upstream call. Failures are answered as JSON since
// no event has been written yet.
func (h *Handler) openStream(w http.ResponseWriter, r *http.Request, apiKey, modelName, prompt string) (*gemini.Stream, bool) {
	up, err := h.gemini.Stream(r.Context(), apiKey, modelName, prompt)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return up, true
}

func (h *Handler) relay(w http.ResponseWriter, r *http.Request, modelName string) stream.Relay {
	ctx := r.Context()
	return stream.Relay{
		Sink:     sse.NewWriter(w),
		Model:    modelName,
		Describe: func(err error) string { return i18n.ErrorMessage(ctx, err) },
	}
}

func (h *Handler) handleGenerateQuestion(w http.ResponseWriter, r *http.Request) {
	req, key, ok := h.readGenerate(w, r)
	if !ok {
		return
	}
	kind := prompts.KindQuestion
	if req.Quiz {
		kind = prompts.KindQuiz
	}
	tmpl, ok := h.template(w, r, kind, req.SystemPrompt)
	if !ok {
		return
	}
	prompt := prompts.Fill(tmpl, map[string]string{
		"Context": prompts.ComposeContext(req.Context, req.ConversationHistory),
	})

	modelName := h.modelFor(req.Model, false)
	up, ok := h.openStream(w, r, key, modelName, prompt)
	if !ok {
		return
	}
	defer up.Close()

	mcq, err := h.relay(w, r, modelName).MCQ(up, req.Quiz)
	if err != nil {
		slog.Warn("question generation failed", "model", modelName, "quiz", req.Quiz, "error", err)
		return
	}
	slog.Info("question generated", "model", modelName, "quiz", req.Quiz, "options", len(mcq.Options), "skipped_lines", up.Skipped())
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	req, key, ok := h.readGenerate(w, r)
	if !ok {
		return
	}
	tmpl, ok := h.template(w, r, prompts.KindFinalize, req.SystemPrompt)
	if !ok {
		return
	}
	prompt := prompts.Fill(tmpl, map[string]string{
		"Context": prompts.ComposeContext(req.Context, req.ConversationHistory),
	})
	prompt = prompts.WithRefinement(prompt, req.Refinement)
	h.streamText(w, r, "finalize", key, h.modelFor(req.Model, true), prompt)
}

func (h *Handler) handleQuizFinalize(w http.ResponseWriter, r *http.Request) {
	req, key, ok := h.readGenerate(w, r)
	if !ok {
		return
	}
	tmpl, ok := h.template(w, r, prompts.KindQuizFinalize, req.SystemPrompt)
	if !ok {
		return
	}
	prompt := prompts.Fill(tmpl, map[string]string{
		"Context": prompts.Sanitize(req.Context),
		"History": prompts.QuizHistory(req.ConversationHistory),
	})
	h.streamText(w, r, "quiz-finalize", key, h.modelFor(req.Model, true), prompt)
}

func (h *Handler) streamText(w http.ResponseWriter, r *http.Request, what, key, modelName, prompt string) {
	up, ok := h.openStream(w, r, key, modelName, prompt)
	if !ok {
		return
	}
	defer up.Close()

	text, err := h.relay(w, r, modelName).Text(up)
	if err != nil {
		slog.Warn("text generation failed", "kind", what, "model", modelName, "error", err)
		return
	}
	slog.Info("text generated", "kind", what, "model", modelName, "chars", len(text))
}

func (h *Handler) handleQuizFeedback(w http.ResponseWriter, r *http.Request) {
	var req model.FeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, ok := h.apiKey(w, r, req.APIKey)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "QuestionRequired"), "")
		return
	}
	turn, err := session.NewTurn(session.TurnInput{
		Question:        req.Question,
		Options:         req.Options,
		SelectedIndices: req.SelectedIndices,
		CorrectIndices:  req.CorrectIndices,
		Quiz:            true,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	tmpl, ok := h.template(w, r, prompts.KindQuizFeedback, req.SystemPrompt)
	if !ok {
		return
	}
	fb, err := h.grade(r.Context(), tmpl, turn, req.Context, key, h.modelFor(req.Model, false))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.FeedbackResponse{
		Feedback:       fb.Feedback,
		OptionFeedback: fb.OptionFeedback,
		CorrectIndices: turn.CorrectIndices,
	})
}

// grade fills the feedback template for turn and asks the grader.
func (h *Handler) grade(ctx context.Context, tmpl string, turn model.ConversationTurn, topic, key, modelName string) (model.Feedback, error) {
	prompt := prompts.Fill(tmpl, prompts.FeedbackVars(turn.Question, turn.Options, turn.CorrectIndices, turn.SelectedIndices, topic))
	return h.grader.GradeAnswer(ctx, key, modelName, prompt, len(turn.Options), turn.CorrectIndices)
}

// gradeInBackground grades a freshly appended quiz turn without holding up
// the response. The result is applied to ref only.
func (h *Handler) gradeInBackground(ctx context.Context, ref model.TurnRef, turn model.ConversationTurn, topic, key, modelName string) {
	ctx = context.WithoutCancel(ctx)
	tmpl, _, err := h.prompts.Template(prompts.KindQuizFeedback, "")
	if err != nil {
		slog.Error("background grading: resolve prompt", "error", err)
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fb, err := h.grade(ctx, tmpl, turn, topic, key, modelName)
		if err != nil {
			slog.Warn("background grading failed", "session", ref.SessionID, "turn", ref.Index, "error", err)
			return
		}
		if err := h.sessions.ApplyFeedback(ref, fb); err != nil {
			slog.Warn("feedback not applied", "session", ref.SessionID, "turn", ref.Index, "error", err)
			return
		}
		slog.Info("turn graded", "session", ref.SessionID, "turn", ref.Index, "model", modelName)
	}()
}
