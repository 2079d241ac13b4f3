package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/quizwire/trivia-backend/internal/question"
)

func testQuestions() []question.Question {
	return []question.Question{
		{ID: 1, Text: "q1", Options: []string{"a", "b", "c"}, Correct: 1, Duration: 20 * time.Second},
		{ID: 2, Text: "q2", Options: []string{"a", "b"}, Correct: 0, Duration: 10 * time.Second},
	}
}

// stateWithPlayers builds an active-question state with the given players
// joined and the quiz started by the first of them.
func stateWithPlayers(t *testing.T, qs []question.Question, names ...string) State {
	t.Helper()
	s := NewState(DefaultRules())
	for _, name := range names {
		var err error
		_, s, err = Apply(s, qs, Command{Type: CmdJoin, Name: name})
		if err != nil {
			t.Fatalf("join %q: %v", name, err)
		}
	}
	var err error
	_, s, err = Apply(s, qs, Command{Type: CmdStart, Name: names[0]})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func mustApply(t *testing.T, s State, qs []question.Question, cmd Command) ([]Event, State) {
	t.Helper()
	events, next, err := Apply(s, qs, cmd)
	if err != nil {
		t.Fatalf("apply %v: %v", cmd.Type, err)
	}
	return events, next
}

func TestJoin_DuplicateNameRejected(t *testing.T) {
	qs := testQuestions()
	s := NewState(DefaultRules())

	_, s = mustApply(t, s, qs, Command{Type: CmdJoin, Name: "alice"})

	_, _, err := Apply(s, qs, Command{Type: CmdJoin, Name: "alice"})
	if !errors.Is(err, ErrNameTaken) {
		t.Fatalf("want ErrNameTaken, got %v", err)
	}
	if !s.Players["alice"].Connected {
		t.Fatalf("original registration must be unaffected")
	}
}

func TestJoin_StaleDisconnectedEntryIsReplaced(t *testing.T) {
	qs := testQuestions()
	s := stateWithPlayers(t, qs, "alice", "bob")

	// bob disconnects mid-question: marked, not removed.
	_, s = mustApply(t, s, qs, Command{Type: CmdLeave, Name: "bob"})
	if s.Players["bob"].Connected {
		t.Fatalf("expected bob marked disconnected")
	}

	// A new connection may claim the stale name.
	events, next, err := Apply(s, qs, Command{Type: CmdJoin, Name: "bob"})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !next.Players["bob"].Connected {
		t.Fatalf("expected bob connected after replace")
	}
	if !ContainsEvent(events, EvtPlayerJoined) {
		t.Fatalf("expected PlayerJoined event")
	}
}

func TestStart_Gating(t *testing.T) {
	qs := testQuestions()

	cases := []struct {
		name    string
		setup   func(t *testing.T) State
		cmd     Command
		wantErr error
	}{
		{
			name: "no players",
			setup: func(t *testing.T) State {
				return NewState(DefaultRules())
			},
			cmd:     Command{Type: CmdStart},
			wantErr: ErrNoPlayers,
		},
		{
			name: "non-host start rejected",
			setup: func(t *testing.T) State {
				s := NewState(DefaultRules())
				_, s = mustApply(t, s, qs, Command{Type: CmdJoin, Name: "alice"})
				_, s = mustApply(t, s, qs, Command{Type: CmdJoin, Name: "bob"})
				return s
			},
			cmd:     Command{Type: CmdStart, Name: "bob"},
			wantErr: ErrNotHost,
		},
		{
			name: "double start rejected",
			setup: func(t *testing.T) State {
				return stateWithPlayers(t, qs, "alice")
			},
			cmd:     Command{Type: CmdStart, Name: "alice"},
			wantErr: ErrAlreadyStarted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(tc.setup(t), qs, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestStart_BeginsFirstQuestion(t *testing.T) {
	qs := testQuestions()
	s := NewState(DefaultRules())
	_, s = mustApply(t, s, qs, Command{Type: CmdJoin, Name: "alice"})

	events, next, err := Apply(s, qs, Command{Type: CmdStart, Name: "alice"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if next.Phase != PhaseQuestion || next.Current != 0 {
		t.Fatalf("want question phase at index 0, got %v/%d", next.Phase, next.Current)
	}
	if !ContainsEvent(events, EvtQuestionStarted) {
		t.Fatalf("expected QuestionStarted event")
	}
}

func TestAnswer_Rejections(t *testing.T) {
	qs := testQuestions()

	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{
			name:    "unknown player",
			cmd:     Command{Type: CmdAnswer, Name: "mallory", Question: 1, Option: 1, Elapsed: time.Second},
			wantErr: ErrUnknownPlayer,
		},
		{
			name:    "stale question id",
			cmd:     Command{Type: CmdAnswer, Name: "alice", Question: 99, Option: 1, Elapsed: time.Second},
			wantErr: ErrLateAnswer,
		},
		{
			name:    "past the deadline",
			cmd:     Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 1, Elapsed: 21 * time.Second},
			wantErr: ErrLateAnswer,
		},
		{
			name:    "option out of range",
			cmd:     Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 3, Elapsed: time.Second},
			wantErr: ErrInvalidOption,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := stateWithPlayers(t, qs, "alice", "bob")
			_, next, err := Apply(s, qs, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if len(next.Answers) != 0 {
				t.Fatalf("rejected answer must not be recorded")
			}
		})
	}
}

func TestAnswer_DuplicateRejectedFirstStands(t *testing.T) {
	qs := testQuestions()
	s := stateWithPlayers(t, qs, "alice", "bob")

	_, s = mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 1, Elapsed: 2 * time.Second})

	_, next, err := Apply(s, qs, Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 0, Elapsed: 3 * time.Second})
	if !errors.Is(err, ErrDuplicateAnswer) {
		t.Fatalf("want ErrDuplicateAnswer, got %v", err)
	}
	if rec := next.Answers["alice"]; rec.Option != 1 || rec.Elapsed != 2*time.Second {
		t.Fatalf("first answer must stand, got %+v", rec)
	}
}

func TestAnswer_FirstCorrectByArrivalOrder(t *testing.T) {
	// A answers correctly at 3s, B correctly at 1s but is
	// processed after A, C never answers. Arrival order at the intake
	// decides first-correct, not the elapsed stamp.
	qs := testQuestions()
	s := stateWithPlayers(t, qs, "a", "b", "c")

	eventsA, s := mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "a", Question: 1, Option: 1, Elapsed: 3 * time.Second})
	if !eventsA[0].First {
		t.Fatalf("a arrived first, must be first-correct")
	}

	eventsB, s := mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "b", Question: 1, Option: 1, Elapsed: time.Second})
	if eventsB[0].First {
		t.Fatalf("b must not be first-correct despite lower elapsed")
	}
	if s.FirstCorrect != "a" {
		t.Fatalf("want first-correct a, got %q", s.FirstCorrect)
	}

	// Deadline resolves with c unanswered.
	events, s := mustApply(t, s, qs, Command{Type: CmdDeadline, Question: 0})
	if !ContainsEvent(events, EvtQuestionResolved) {
		t.Fatalf("expected QuestionResolved")
	}

	rows := Leaderboard(s)
	if rows[0].Name != "a" || rows[1].Name != "b" || rows[2].Name != "c" {
		t.Fatalf("want order a > b > c, got %+v", rows)
	}
	if rows[0].Score <= rows[1].Score || rows[2].Score != 0 {
		t.Fatalf("want a above b and c at zero, got %+v", rows)
	}
}

func TestAllAnswered_ResolvesWithoutDeadline(t *testing.T) {
	qs := testQuestions()
	s := stateWithPlayers(t, qs, "alice", "bob")

	_, s = mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 1, Elapsed: time.Second})

	events, s := mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "bob", Question: 1, Option: 0, Elapsed: 2 * time.Second})
	if !ContainsEvent(events, EvtQuestionResolved) {
		t.Fatalf("expected resolution once every connected player answered")
	}
	if !ContainsEvent(events, EvtQuestionStarted) {
		t.Fatalf("expected automatic advance to the next question")
	}
	if s.Phase != PhaseQuestion || s.Current != 1 {
		t.Fatalf("want next question active, got %v/%d", s.Phase, s.Current)
	}
	if len(s.Answers) != 0 || s.FirstCorrect != "" {
		t.Fatalf("per-question state must reset")
	}
}

func TestDeadline_StaleFireIsNoOp(t *testing.T) {
	qs := testQuestions()
	s := stateWithPlayers(t, qs, "alice")

	// Resolve question 0 by answering; state advances to question 1.
	_, s = mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 1, Elapsed: time.Second})
	if s.Current != 1 {
		t.Fatalf("setup: want current 1, got %d", s.Current)
	}

	// The old timer for question 0 fires late.
	events, next, err := Apply(s, qs, Command{Type: CmdDeadline, Question: 0})
	if err != nil || len(events) != 0 {
		t.Fatalf("stale deadline must be a no-op, got events=%v err=%v", events, err)
	}
	if next.Current != 1 || next.Phase != PhaseQuestion {
		t.Fatalf("state must be unchanged, got %v/%d", next.Phase, next.Current)
	}
}

func TestDisconnect_MidQuestionPreservesAnswerAndUnblocksRound(t *testing.T) {
	qs := testQuestions()
	s := stateWithPlayers(t, qs, "alice", "bob", "carol")

	_, s = mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 1, Elapsed: time.Second})
	_, s = mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "bob", Question: 1, Option: 0, Elapsed: 2 * time.Second})

	// carol disconnects without answering: the round must resolve on the
	// remaining players rather than wait for the deadline.
	events, s := mustApply(t, s, qs, Command{Type: CmdLeave, Name: "carol"})
	if !ContainsEvent(events, EvtPlayerDisconnected) {
		t.Fatalf("expected PlayerDisconnected")
	}
	if !ContainsEvent(events, EvtQuestionResolved) {
		t.Fatalf("departure of the last holdout must resolve the round")
	}
	if _, ok := s.Players["carol"]; ok {
		t.Fatalf("carol must be purged after resolution")
	}
}

func TestDisconnect_AnsweredPlayerStillScores(t *testing.T) {
	qs := testQuestions()
	s := stateWithPlayers(t, qs, "alice", "bob")

	_, s = mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 1, Elapsed: time.Second})
	_, s = mustApply(t, s, qs, Command{Type: CmdLeave, Name: "alice"})

	if _, ok := s.Answers["alice"]; !ok {
		t.Fatalf("recorded answer must survive a disconnect")
	}

	events, _ := mustApply(t, s, qs, Command{Type: CmdDeadline, Question: 0})
	for _, e := range events {
		if e.Type != EvtQuestionResolved {
			continue
		}
		for _, award := range e.Awards {
			if award.Name == "alice" && award.Points > 0 {
				return
			}
		}
	}
	t.Fatalf("disconnected alice's answer must still be scored")
}

func TestSessionEnd_RejectsFurtherEvents(t *testing.T) {
	qs := testQuestions()[:1]
	s := stateWithPlayers(t, qs, "alice")

	events, s := mustApply(t, s, qs, Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 1, Elapsed: time.Second})
	if !ContainsEvent(events, EvtSessionEnded) {
		t.Fatalf("last question resolution must end the session")
	}
	if s.Phase != PhaseEnded {
		t.Fatalf("want ended phase, got %v", s.Phase)
	}

	if _, _, err := Apply(s, qs, Command{Type: CmdStart, Name: "alice"}); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("want ErrSessionEnded on start, got %v", err)
	}
	if _, _, err := Apply(s, qs, Command{Type: CmdAnswer, Name: "alice", Question: 1, Option: 1}); !errors.Is(err, ErrLateAnswer) {
		t.Fatalf("want ErrLateAnswer after end, got %v", err)
	}
	if _, _, err := Apply(s, qs, Command{Type: CmdJoin, Name: "dave"}); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("want ErrSessionEnded on join, got %v", err)
	}
}

func TestHost_ReassignedWhenHostLeaves(t *testing.T) {
	qs := testQuestions()
	s := NewState(DefaultRules())
	_, s = mustApply(t, s, qs, Command{Type: CmdJoin, Name: "zoe"})
	_, s = mustApply(t, s, qs, Command{Type: CmdJoin, Name: "bob"})

	if s.Host != "zoe" {
		t.Fatalf("first join must be host, got %q", s.Host)
	}

	events, s := mustApply(t, s, qs, Command{Type: CmdLeave, Name: "zoe"})
	if !ContainsEvent(events, EvtHostChanged) {
		t.Fatalf("expected HostChanged")
	}
	if s.Host != "bob" {
		t.Fatalf("want host bob, got %q", s.Host)
	}
}
