// Package engine holds the pure quiz state machine. Apply takes the current
// state plus one command and returns the events it produced and the next
// state; it never does I/O and never blocks, so the session loop can process
// commands one at a time without locks.
package engine

import (
	"errors"
	"slices"
	"time"

	"github.com/quizwire/trivia-backend/internal/question"
)

var ErrNameTaken = errors.New("name already taken")
var ErrInvalidName = errors.New("invalid player name")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrDuplicateAnswer = errors.New("duplicate answer")
var ErrLateAnswer = errors.New("late answer")
var ErrNotAcceptingAnswers = errors.New("not accepting answers")
var ErrInvalidOption = errors.New("invalid option index")
var ErrNotHost = errors.New("only the host may start")
var ErrNoPlayers = errors.New("no players registered")
var ErrAlreadyStarted = errors.New("session already started")
var ErrSessionEnded = errors.New("session has ended")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseResolved Phase = "resolved"
	PhaseEnded    Phase = "ended"
)

// PlayerState is the registry entry for one registered name. A disconnected
// player stays in the registry until the current question resolves so their
// recorded answer can still be scored.
type PlayerState struct {
	Score     int
	Connected bool
}

// AnswerRecord is one accepted answer for the current question. Correctness
// and first-correct status are fixed at acceptance time, in arrival order.
type AnswerRecord struct {
	Option  int
	Elapsed time.Duration
	Correct bool
	First   bool
}

type State struct {
	Phase        Phase
	Current      int // index into the question set; -1 before start
	Host         string
	Players      map[string]PlayerState
	Answers      map[string]AnswerRecord // current question only
	FirstCorrect string
	Rules        Rules
}

type CommandType string

const (
	CmdJoin     CommandType = "Join"
	CmdLeave    CommandType = "Leave"
	CmdAnswer   CommandType = "Answer"
	CmdStart    CommandType = "Start"
	CmdDeadline CommandType = "Deadline"
)

// Command is one intake item. Elapsed is stamped by the session against the
// question broadcast time; client-reported timing is never used. Question
// carries the client-claimed question ID for CmdAnswer and the armed
// question index for CmdDeadline.
type Command struct {
	Type     CommandType
	Name     string
	Question int
	Option   int
	Elapsed  time.Duration
}

type EventType string

const (
	EvtPlayerJoined       EventType = "PlayerJoined"
	EvtPlayerLeft         EventType = "PlayerLeft"
	EvtPlayerDisconnected EventType = "PlayerDisconnected"
	EvtHostChanged        EventType = "HostChanged"
	EvtQuestionStarted    EventType = "QuestionStarted"
	EvtAnswerRecorded     EventType = "AnswerRecorded"
	EvtQuestionResolved   EventType = "QuestionResolved"
	EvtSessionEnded       EventType = "SessionEnded"
)

// Award is one player's score delta for a resolved question.
type Award struct {
	Name    string
	Points  int
	Correct bool
	First   bool
}

type Event struct {
	Type     EventType
	Name     string
	Question int
	Option   int
	Elapsed  time.Duration
	Correct  bool
	First    bool
	Awards   []Award // EvtQuestionResolved only
}

// Apply processes one command against the current state. On error the
// returned state is the input state, unchanged.
func Apply(s State, qs []question.Question, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdJoin:
		return applyJoin(s, cmd)
	case CmdLeave:
		return applyLeave(s, qs, cmd)
	case CmdStart:
		return applyStart(s, cmd)
	case CmdAnswer:
		return applyAnswer(s, qs, cmd)
	case CmdDeadline:
		// A deadline for anything but the currently active question is a
		// stale timer firing and must be ignored.
		if s.Phase != PhaseQuestion || cmd.Question != s.Current {
			return nil, s, nil
		}
		events, newState := resolve(s, qs)
		return events, newState, nil
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyJoin(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseEnded {
		return nil, s, ErrSessionEnded
	}
	if cmd.Name == "" {
		return nil, s, ErrInvalidName
	}
	if p, ok := s.Players[cmd.Name]; ok && p.Connected {
		return nil, s, ErrNameTaken
	}

	// Either a brand-new name or a stale disconnected entry being replaced.
	newState := s
	newState.Players[cmd.Name] = PlayerState{Connected: true}

	events := []Event{{Type: EvtPlayerJoined, Name: cmd.Name}}
	if newState.Host == "" {
		newState.Host = cmd.Name
		events = append(events, Event{Type: EvtHostChanged, Name: cmd.Name})
	}
	return events, newState, nil
}

func applyLeave(s State, qs []question.Question, cmd Command) ([]Event, State, error) {
	p, ok := s.Players[cmd.Name]
	if !ok {
		// Disconnect notifications can race with removal; tolerate repeats.
		return nil, s, nil
	}

	newState := s

	if s.Phase == PhaseQuestion {
		if !p.Connected {
			return nil, s, nil
		}
		// Mid-question the entry is only marked disconnected: a recorded
		// answer must survive until scoring. Removal happens at resolution.
		p.Connected = false
		newState.Players[cmd.Name] = p

		events := []Event{{Type: EvtPlayerDisconnected, Name: cmd.Name}}
		events = reassignHost(&newState, events)

		if allAnswered(newState) {
			resolveEvents, resolved := resolve(newState, qs)
			return append(events, resolveEvents...), resolved, nil
		}
		return events, newState, nil
	}

	delete(newState.Players, cmd.Name)
	events := []Event{{Type: EvtPlayerLeft, Name: cmd.Name}}
	events = reassignHost(&newState, events)
	return events, newState, nil
}

func applyStart(s State, cmd Command) ([]Event, State, error) {
	switch s.Phase {
	case PhaseEnded:
		return nil, s, ErrSessionEnded
	case PhaseQuestion, PhaseResolved:
		return nil, s, ErrAlreadyStarted
	}
	if cmd.Name != s.Host {
		return nil, s, ErrNotHost
	}
	if countConnected(s) == 0 {
		return nil, s, ErrNoPlayers
	}

	newState := s
	newState.Phase = PhaseQuestion
	newState.Current = 0
	return []Event{{Type: EvtQuestionStarted, Question: 0}}, newState, nil
}

func applyAnswer(s State, qs []question.Question, cmd Command) ([]Event, State, error) {
	switch s.Phase {
	case PhaseLobby:
		return nil, s, ErrNotAcceptingAnswers
	case PhaseEnded:
		return nil, s, ErrLateAnswer
	}

	p, ok := s.Players[cmd.Name]
	if !ok || !p.Connected {
		return nil, s, ErrUnknownPlayer
	}

	q := qs[s.Current]
	if cmd.Question != q.ID {
		return nil, s, ErrLateAnswer
	}
	if cmd.Elapsed > q.Duration {
		return nil, s, ErrLateAnswer
	}
	if _, answered := s.Answers[cmd.Name]; answered {
		return nil, s, ErrDuplicateAnswer
	}
	if cmd.Option < 0 || cmd.Option >= len(q.Options) {
		return nil, s, ErrInvalidOption
	}

	correct := cmd.Option == q.Correct
	first := correct && s.FirstCorrect == ""

	newState := s
	newState.Answers[cmd.Name] = AnswerRecord{
		Option:  cmd.Option,
		Elapsed: cmd.Elapsed,
		Correct: correct,
		First:   first,
	}
	if first {
		newState.FirstCorrect = cmd.Name
	}

	events := []Event{{
		Type:     EvtAnswerRecorded,
		Name:     cmd.Name,
		Question: s.Current,
		Option:   cmd.Option,
		Elapsed:  cmd.Elapsed,
		Correct:  correct,
		First:    first,
	}}

	if allAnswered(newState) {
		resolveEvents, resolved := resolve(newState, qs)
		return append(events, resolveEvents...), resolved, nil
	}
	return events, newState, nil
}

// resolve scores every recorded answer for the current question, purges
// disconnected entries, and advances to the next question or ends the
// session. It returns the events in the order they must be broadcast.
func resolve(s State, qs []question.Question) ([]Event, State) {
	q := qs[s.Current]

	names := make([]string, 0, len(s.Answers))
	for name := range s.Answers {
		names = append(names, name)
	}
	slices.Sort(names)

	awards := make([]Award, 0, len(names))
	for _, name := range names {
		rec := s.Answers[name]
		points := Score(rec.Elapsed, q.Duration, rec.Correct, rec.First, s.Rules)
		if p, ok := s.Players[name]; ok {
			p.Score += points
			s.Players[name] = p
		}
		awards = append(awards, Award{Name: name, Points: points, Correct: rec.Correct, First: rec.First})
	}

	s.Phase = PhaseResolved
	events := []Event{{Type: EvtQuestionResolved, Question: s.Current, Awards: awards}}

	// Arbitration for this question is done; disconnected entries go now.
	var gone []string
	for name, p := range s.Players {
		if !p.Connected {
			gone = append(gone, name)
		}
	}
	slices.Sort(gone)
	for _, name := range gone {
		delete(s.Players, name)
		events = append(events, Event{Type: EvtPlayerLeft, Name: name})
	}
	events = reassignHost(&s, events)

	if s.Current+1 < len(qs) {
		s.Current++
		s.Answers = make(map[string]AnswerRecord)
		s.FirstCorrect = ""
		s.Phase = PhaseQuestion
		events = append(events, Event{Type: EvtQuestionStarted, Question: s.Current})
	} else {
		s.Phase = PhaseEnded
		events = append(events, Event{Type: EvtSessionEnded})
	}
	return events, s
}

// reassignHost hands the host role to the lexicographically smallest
// connected player when the current host is gone, so start stays possible.
func reassignHost(s *State, events []Event) []Event {
	if p, ok := s.Players[s.Host]; ok && p.Connected {
		return events
	}

	next := ""
	for name, p := range s.Players {
		if !p.Connected {
			continue
		}
		if next == "" || name < next {
			next = name
		}
	}
	if next == s.Host {
		return events
	}
	s.Host = next
	if next != "" {
		events = append(events, Event{Type: EvtHostChanged, Name: next})
	}
	return events
}

func allAnswered(s State) bool {
	connected := 0
	for name, p := range s.Players {
		if !p.Connected {
			continue
		}
		connected++
		if _, ok := s.Answers[name]; !ok {
			return false
		}
	}
	return connected > 0
}

func countConnected(s State) int {
	n := 0
	for _, p := range s.Players {
		if p.Connected {
			n++
		}
	}
	return n
}
