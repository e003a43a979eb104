package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/scoring"
)

// Export builds the export document from all sessions and settings.
func (s *Store) Export() (model.Export, error) {
	settings, err := s.GetSettings()
	if err != nil {
		return model.Export{}, fmt.Errorf("get settings: %w", err)
	}
	sessions, err := s.ListSessions()
	if err != nil {
		return model.Export{}, fmt.Errorf("list sessions: %w", err)
	}

	out := model.Export{ExportedAt: time.Now(), Settings: settings, Sessions: []model.SessionExport{}}
	for _, sess := range sessions {
		se := model.SessionExport{
			ContextID: sess.ID,
			Topic:     sess.Topic,
			Mode:      sess.Mode,
			Model:     sess.Model,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		}

		var total scoring.Total
		for _, t := range sess.Turns {
			tr := model.TurnResult{
				Question:       t.Question,
				Options:        t.Options,
				Selected:       t.SelectedIndices,
				FreeText:       t.FreeText,
				Answer:         t.Answer,
				CorrectIndices: t.CorrectIndices,
				Feedback:       t.Feedback,
			}
			if t.IsQuiz {
				sc := scoring.Compute(t.CorrectIndices, t.SelectedIndices, len(t.Options))
				tr.Score = sc.String()
				total.Add(sc)
			}
			se.Turns = append(se.Turns, tr)
		}
		if total.Graded > 0 {
			se.Earned = total.Earned
			se.Possible = total.Possible
			se.Score = total.String()
		}
		out.Sessions = append(out.Sessions, se)
	}

	return out, nil
}
