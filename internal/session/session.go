// Package session runs one quiz round: a single goroutine owns the engine
// state and consumes every state-affecting message (joins, answers, start,
// disconnects, deadline firings) from one serialized intake channel.
// Handlers never touch state directly; they enqueue and return to reading.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quizwire/trivia-backend/internal/engine"
	"github.com/quizwire/trivia-backend/internal/question"
	"github.com/quizwire/trivia-backend/pkg/types"
)

type Msg interface{ isSessionMsg() }

// Join registers a connection under a display name. The reply (ok or an
// error code) is delivered on Outbox either way; on failure the connection
// is not registered and may retry with another name. Done is closed by the
// session when it drops the client; the outbox itself is never closed, so
// sending on it stays safe for the session at all times.
type Join struct {
	ClientID string
	Name     string
	Outbox   chan types.ServerMessage
	Done     chan struct{}
}

func (Join) isSessionMsg() {}

// Leave reports that a connection is gone (read error, close, or drop).
type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

// FromClient carries a decoded wire message from a registered connection.
type FromClient struct {
	ClientID string
	Msg      types.ClientMessage
}

func (FromClient) isSessionMsg() {}

// GetState reflects internal state without data races; used by tests and
// never by the serving path.
type GetState struct{ Reply chan View }

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// deadlineFired is enqueued by the question timer. The index lets the
// engine drop firings for questions that already resolved.
type deadlineFired struct{ question int }

func (deadlineFired) isSessionMsg() {}

type View struct {
	State      engine.State
	NumClients int
	Events     []engine.Event
}

type client struct {
	name   string
	outbox chan types.ServerMessage
	done   chan struct{}
}

type Session struct {
	inbox     chan Msg
	state     engine.State
	questions []question.Question
	clients   map[string]*client // by connection ID
	names     map[string]string  // registered name -> connection ID
	dead      map[string]bool    // connection IDs the session has dropped
	events    []engine.Event
	timer     *time.Timer
	started   time.Time // broadcast time of the current question
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, qs []question.Question, rules engine.Rules, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		inbox:     make(chan Msg, 64),
		state:     engine.NewState(rules),
		questions: qs,
		clients:   make(map[string]*client),
		names:     make(map[string]string),
		dead:      make(map[string]bool),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	go s.loop()
	return s
}

// Inbox is the serialized intake. Everything that mutates session state
// goes through here.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session stops consuming its inbox. Senders must
// pair every inbox send with a select on Done or risk blocking forever on a
// shut-down session.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)

			case Leave:
				s.dropClient(msg.ClientID, "connection closed")

			case FromClient:
				s.handleClientMsg(msg)

			case deadlineFired:
				// Just another intake event; staleness is checked by Apply.
				s.apply(engine.Command{Type: engine.CmdDeadline, Question: msg.question})

			case GetState:
				msg.Reply <- View{
					State:      s.state,
					NumClients: len(s.clients),
					Events:     append([]engine.Event(nil), s.events...),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	if _, connected := s.clients[msg.ClientID]; connected {
		s.offer(msg.Outbox, types.Joined{Type: types.TypeJoined, Name: msg.Name, OK: false, Error: "already_joined"})
		return
	}
	if s.dead[msg.ClientID] {
		// The connection was already dropped; its writer is gone and its
		// outbox must not be re-registered.
		s.offer(msg.Outbox, types.Joined{Type: types.TypeJoined, Name: msg.Name, OK: false, Error: "connection_closed"})
		return
	}

	events, newState, err := engine.Apply(s.state, s.questions, engine.Command{Type: engine.CmdJoin, Name: msg.Name})
	if err != nil {
		s.offer(msg.Outbox, types.Joined{Type: types.TypeJoined, Name: msg.Name, OK: false, Error: errorCode(err)})
		return
	}

	s.state = newState
	s.events = append(s.events, events...)
	s.clients[msg.ClientID] = &client{name: msg.Name, outbox: msg.Outbox, done: msg.Done}
	s.names[msg.Name] = msg.ClientID
	s.logger.Info("player joined",
		zap.String("name", msg.Name),
		zap.Bool("host", s.state.Host == msg.Name))

	s.sendTo(msg.ClientID, types.Joined{Type: types.TypeJoined, Name: msg.Name, OK: true})

	// A mid-round joiner gets the active question immediately so they can
	// participate before the next broadcast.
	if s.state.Phase == engine.PhaseQuestion {
		s.sendTo(msg.ClientID, questionMessage(s.questions[s.state.Current]))
	}
}

func (s *Session) handleClientMsg(msg FromClient) {
	c, ok := s.clients[msg.ClientID]
	if !ok {
		// Unregistered connections have no say; the ws layer rejects
		// pre-join traffic, so this is a late message from a dropped client.
		return
	}

	switch msg.Msg.Type {
	case types.TypeAnswer:
		cmd := engine.Command{
			Type:     engine.CmdAnswer,
			Name:     c.name,
			Question: msg.Msg.QuestionID,
			Option:   msg.Msg.OptionIndex,
			Elapsed:  time.Since(s.started),
		}
		if err := s.apply(cmd); err != nil {
			s.sendTo(msg.ClientID, types.Error{Type: types.TypeError, Code: errorCode(err), Detail: err.Error()})
		}

	case types.TypeStart:
		if err := s.apply(engine.Command{Type: engine.CmdStart, Name: c.name}); err != nil {
			s.sendTo(msg.ClientID, types.Error{Type: types.TypeError, Code: errorCode(err), Detail: err.Error()})
		}

	case types.TypeLeaderboard:
		s.sendTo(msg.ClientID, types.Leaderboard{Type: types.TypeLeaderboardView, Leaderboard: standings(s.state)})

	default:
		s.sendTo(msg.ClientID, types.Error{Type: types.TypeError, Code: "unknown_type", Detail: msg.Msg.Type})
	}
}

// apply runs one command through the engine and reacts to whatever events
// it produced. Errors leave the state untouched and are reported to the
// caller for a targeted reply.
func (s *Session) apply(cmd engine.Command) error {
	events, newState, err := engine.Apply(s.state, s.questions, cmd)
	if err != nil {
		return err
	}
	s.state = newState
	if len(events) > 0 {
		s.events = append(s.events, events...)
		s.react(events)
	}
	return nil
}

// react turns engine events into outbound traffic and timer changes.
// Event order within a batch is the broadcast order.
func (s *Session) react(events []engine.Event) {
	for _, e := range events {
		switch e.Type {
		case engine.EvtAnswerRecorded:
			q := s.questions[e.Question]
			ack := types.AnswerAck{
				Type:          types.TypeAnswerAck,
				Correct:       e.Correct,
				PointsAwarded: engine.Score(e.Elapsed, q.Duration, e.Correct, e.First, s.state.Rules),
				FirstCorrect:  e.First,
			}
			if id, ok := s.names[e.Name]; ok {
				s.sendTo(id, ack)
			}

		case engine.EvtQuestionResolved:
			s.stopTimer()
			q := s.questions[e.Question]
			s.logger.Info("question resolved",
				zap.Int("question", q.ID),
				zap.Int("answers", len(e.Awards)))
			s.broadcast(types.Resolved{
				Type:         types.TypeResolved,
				QuestionID:   q.ID,
				CorrectIndex: q.Correct,
				Leaderboard:  standings(s.state),
			})

		case engine.EvtQuestionStarted:
			s.startQuestion(e.Question)

		case engine.EvtSessionEnded:
			s.stopTimer()
			s.logger.Info("session ended", zap.Int("players", len(s.state.Players)))
			s.broadcast(types.SessionEnded{Type: types.TypeSessionEnded, Leaderboard: standings(s.state)})

		case engine.EvtPlayerDisconnected:
			s.logger.Info("player disconnected mid-question", zap.String("name", e.Name))

		case engine.EvtPlayerLeft:
			s.logger.Info("player removed", zap.String("name", e.Name))
			delete(s.names, e.Name)

		case engine.EvtHostChanged:
			s.logger.Info("host changed", zap.String("name", e.Name))
		}
	}
}

// startQuestion stamps the broadcast time, arms the single authoritative
// deadline timer, and fans the question out.
func (s *Session) startQuestion(index int) {
	q := s.questions[index]
	s.started = time.Now()
	s.stopTimer()
	s.timer = time.AfterFunc(q.Duration, func() {
		select {
		case s.inbox <- deadlineFired{question: index}:
		case <-s.ctx.Done():
		}
	})

	s.logger.Info("question started",
		zap.Int("question", q.ID),
		zap.Duration("duration", q.Duration))
	s.broadcast(questionMessage(q))
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// broadcast fans a message out to every live connection. A full outbox
// means the client stopped draining; it is dropped and handled exactly like
// a disconnect, and delivery to the others proceeds.
func (s *Session) broadcast(msg types.ServerMessage) {
	var stalled []string
	for id, c := range s.clients {
		select {
		case c.outbox <- msg:
		default:
			stalled = append(stalled, id)
		}
	}
	for _, id := range stalled {
		s.dropClient(id, "outbox full")
	}
}

// sendTo delivers a targeted message, with the same drop policy as
// broadcast.
func (s *Session) sendTo(clientID string, msg types.ServerMessage) {
	c, ok := s.clients[clientID]
	if !ok {
		return
	}
	select {
	case c.outbox <- msg:
	default:
		s.dropClient(clientID, "outbox full")
	}
}

// offer sends to an outbox that is not (or no longer) registered, e.g. a
// rejected join reply. Dropping on a full channel is fine here; the ws
// layer owns the connection either way.
func (s *Session) offer(outbox chan types.ServerMessage, msg types.ServerMessage) {
	select {
	case outbox <- msg:
	default:
	}
}

// dropClient unregisters the connection and feeds the disconnect through
// the engine, which decides whether the player is removed outright or kept
// for scoring until the question resolves. The outbox is left open: the
// connection's reader may still enqueue messages (including a racing
// re-join) carrying it, so only the done signal tells the writer to exit.
func (s *Session) dropClient(clientID, reason string) {
	c, ok := s.clients[clientID]
	if !ok {
		return
	}
	delete(s.clients, clientID)
	s.dead[clientID] = true
	if c.done != nil {
		close(c.done)
	}
	s.logger.Info("client dropped",
		zap.String("name", c.name),
		zap.String("reason", reason))

	s.apply(engine.Command{Type: engine.CmdLeave, Name: c.name})
}

func (s *Session) shutdown() {
	s.stopTimer()
	for id, c := range s.clients {
		if c.done != nil {
			close(c.done)
		}
		delete(s.clients, id)
	}
	s.cancel()
}

func questionMessage(q question.Question) types.Question {
	return types.Question{
		Type:            types.TypeQuestion,
		QuestionID:      q.ID,
		Text:            q.Text,
		Options:         q.Options,
		DurationSeconds: int(q.Duration / time.Second),
	}
}

func standings(s engine.State) []types.Standing {
	rows := engine.Leaderboard(s)
	out := make([]types.Standing, len(rows))
	for i, r := range rows {
		out[i] = types.Standing{Name: r.Name, Score: r.Score}
	}
	return out
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrNameTaken):
		return "name_taken"
	case errors.Is(err, engine.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, engine.ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, engine.ErrDuplicateAnswer):
		return "duplicate_answer"
	case errors.Is(err, engine.ErrLateAnswer):
		return "late_answer"
	case errors.Is(err, engine.ErrNotAcceptingAnswers):
		return "not_accepting_answers"
	case errors.Is(err, engine.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, engine.ErrNotHost):
		return "not_host"
	case errors.Is(err, engine.ErrNoPlayers):
		return "no_players"
	case errors.Is(err, engine.ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, engine.ErrSessionEnded):
		return "session_ended"
	default:
		return "internal"
	}
}
