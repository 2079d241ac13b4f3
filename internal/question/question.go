// Package question defines the quiz question set and its loader. A set is
// loaded and validated once at startup; questions are immutable afterwards.
package question

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrEmptySet = errors.New("question set is empty")
var ErrInvalidSet = errors.New("question set is invalid")

// DefaultDuration is applied to questions that omit a duration.
const DefaultDuration = 10 * time.Second

// Question is a single-choice question. Correct indexes into Options.
type Question struct {
	ID       int
	Text     string
	Options  []string
	Correct  int
	Duration time.Duration
}

// fileQuestion is the on-disk JSON shape.
type fileQuestion struct {
	ID              int      `json:"id"`
	Text            string   `json:"text"`
	Options         []string `json:"options"`
	CorrectIndex    int      `json:"correct_index"`
	DurationSeconds int      `json:"duration_seconds"`
}

// LoadFile reads and validates a question set from a JSON file.
func LoadFile(path string) ([]Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question set: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a JSON question set.
func Parse(raw []byte) ([]Question, error) {
	var entries []fileQuestion
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSet, err)
	}

	qs := make([]Question, 0, len(entries))
	for i, e := range entries {
		q := Question{
			ID:       e.ID,
			Text:     e.Text,
			Options:  e.Options,
			Correct:  e.CorrectIndex,
			Duration: time.Duration(e.DurationSeconds) * time.Second,
		}
		if q.ID == 0 {
			q.ID = i + 1
		}
		if q.Duration == 0 {
			q.Duration = DefaultDuration
		}
		qs = append(qs, q)
	}

	if err := Validate(qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// Validate enforces the loader contract: a non-empty ordered set where every
// question has at least two options, an in-range correct index, and a
// positive duration.
func Validate(qs []Question) error {
	if len(qs) == 0 {
		return ErrEmptySet
	}
	for i, q := range qs {
		if q.Text == "" {
			return fmt.Errorf("%w: question %d has no text", ErrInvalidSet, i)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %d has %d options, need at least 2", ErrInvalidSet, i, len(q.Options))
		}
		if q.Correct < 0 || q.Correct >= len(q.Options) {
			return fmt.Errorf("%w: question %d correct index %d out of range", ErrInvalidSet, i, q.Correct)
		}
		if q.Duration <= 0 {
			return fmt.Errorf("%w: question %d has non-positive duration", ErrInvalidSet, i)
		}
	}
	return nil
}
