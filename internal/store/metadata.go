package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/lazywriter/internal/model"
)

// SetSetting upserts a key-value pair in the settings table.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetSetting returns the value for a settings key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SaveSettings stores all Settings fields as rows.
func (s *Store) SaveSettings(st model.Settings) error {
	pairs := []struct{ k, v string }{
		{"context", st.Context},
		{"model", st.Model},
		{"finalize_model", st.FinalizeModel},
	}
	for _, p := range pairs {
		if err := s.SetSetting(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetSettings reads all Settings fields.
func (s *Store) GetSettings() (model.Settings, error) {
	var st model.Settings
	var err error

	if st.Context, err = s.GetSetting("context"); err != nil {
		return st, err
	}
	if st.Model, err = s.GetSetting("model"); err != nil {
		return st, err
	}
	if st.FinalizeModel, err = s.GetSetting("finalize_model"); err != nil {
		return st, err
	}
	return st, nil
}

// SetPromptOverride stores a user-edited template for a prompt kind.
func (s *Store) SetPromptOverride(kind, prompt string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO prompt_overrides (kind, prompt, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(kind) DO UPDATE SET prompt = ?, updated_at = ?`,
		kind, prompt, now, prompt, now,
	)
	return err
}

// GetPromptOverride returns the stored template for a kind.
// Returns empty string and nil error if none is stored.
func (s *Store) GetPromptOverride(kind string) (string, error) {
	var prompt string
	err := s.db.QueryRow(`SELECT prompt FROM prompt_overrides WHERE kind = ?`, kind).Scan(&prompt)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return prompt, err
}

// DeletePromptOverride reverts a kind to its default template.
func (s *Store) DeletePromptOverride(kind string) error {
	_, err := s.db.Exec(`DELETE FROM prompt_overrides WHERE kind = ?`, kind)
	return err
}
