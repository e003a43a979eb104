package i18n

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/scoring"
)

var sentinelIDs = []struct {
	err error
	id  string
}{
	{model.ErrSessionNotFound, "SessionNotFound"},
	{model.ErrEmptyTopic, "ContextRequired"},
	{model.ErrEmptyQuestion, "QuestionRequired"},
	{model.ErrMissingCorrectIndices, "MissingCorrectIndices"},
	{model.ErrInvalidIndex, "InvalidIndex"},
	{model.ErrTurnChanged, "TurnChanged"},
	{model.ErrAlreadyGraded, "AlreadyGraded"},
	{model.ErrIncompleteResult, "IncompleteResult"},
}

// ErrorMessage renders err as a user-visible message.
func ErrorMessage(ctx context.Context, err error) string {
	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		return Td(ctx, "UpstreamFailed", map[string]any{"Message": ue.Message})
	}
	var te *model.TransportError
	if errors.As(err, &te) {
		return T(ctx, "NetworkError")
	}
	for _, s := range sentinelIDs {
		if errors.Is(err, s.err) {
			return T(ctx, s.id)
		}
	}
	return T(ctx, "InternalError")
}

// ScoreLabel renders a turn score, or the "no correct answers" note when the
// score is undefined.
func ScoreLabel(ctx context.Context, s scoring.Score) string {
	if !s.Defined() {
		return T(ctx, "NoCorrectAnswers")
	}
	return Td(ctx, "ScoreLabel", map[string]any{"Score": s.String()})
}

// TotalLabel renders a session total with its percentage.
func TotalLabel(ctx context.Context, t scoring.Total) string {
	if !t.Defined() {
		return T(ctx, "NoCorrectAnswers")
	}
	return Td(ctx, "TotalScoreLabel", map[string]any{
		"Score":   t.String(),
		"Percent": fmt.Sprintf("%.0f", t.Percent()),
	})
}
