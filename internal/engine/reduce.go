package engine

// Reduce replays a recorded event log into a state. Events carry everything
// scoring-relevant (correctness, first-correct flags, point awards), so
// replaying a finished session reproduces the identical final leaderboard
// without re-running arbitration.
func Reduce(events []Event, rules Rules) State {
	s := NewState(rules)

	for _, event := range events {
		switch event.Type {
		case EvtPlayerJoined:
			s.Players[event.Name] = PlayerState{Connected: true}

		case EvtPlayerLeft:
			delete(s.Players, event.Name)

		case EvtPlayerDisconnected:
			if p, ok := s.Players[event.Name]; ok {
				p.Connected = false
				s.Players[event.Name] = p
			}

		case EvtHostChanged:
			s.Host = event.Name

		case EvtQuestionStarted:
			s.Phase = PhaseQuestion
			s.Current = event.Question
			s.Answers = make(map[string]AnswerRecord)
			s.FirstCorrect = ""

		case EvtAnswerRecorded:
			s.Answers[event.Name] = AnswerRecord{
				Option:  event.Option,
				Elapsed: event.Elapsed,
				Correct: event.Correct,
				First:   event.First,
			}
			if event.First {
				s.FirstCorrect = event.Name
			}

		case EvtQuestionResolved:
			for _, award := range event.Awards {
				if p, ok := s.Players[award.Name]; ok {
					p.Score += award.Points
					s.Players[award.Name] = p
				}
			}
			s.Phase = PhaseResolved

		case EvtSessionEnded:
			s.Phase = PhaseEnded
		}
	}
	return s
}
