package engine

import "slices"

// NewState returns the initial lobby state for a fresh session.
func NewState(rules Rules) State {
	return State{
		Phase:   PhaseLobby,
		Current: -1,
		Players: map[string]PlayerState{},
		Answers: map[string]AnswerRecord{},
		Rules:   rules,
	}
}

// Standing is one leaderboard row.
type Standing struct {
	Name  string
	Score int
}

// Leaderboard derives the current standings from the registry: score
// descending, ties broken by name ascending. It is recomputed on demand and
// never stored.
func Leaderboard(s State) []Standing {
	rows := make([]Standing, 0, len(s.Players))
	for name, p := range s.Players {
		rows = append(rows, Standing{Name: name, Score: p.Score})
	}
	slices.SortFunc(rows, func(a, b Standing) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return rows
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
