// Package hub manages the set of live quiz rooms, keyed by room code. The
// hub is itself a single-goroutine actor so room creation and lookup need
// no locks.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/quizwire/trivia-backend/internal/engine"
	"github.com/quizwire/trivia-backend/internal/question"
	"github.com/quizwire/trivia-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom creates a fresh room under the given code. The reply is nil
// when the code is already taken; check-then-create in a single message so
// callers need no separate lookup.
type CreateRoom struct {
	Code  string
	Reply chan *session.Session
}

type GetRoom struct {
	Code  string
	Reply chan *session.Session
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox     chan HubMsg
	rooms     map[string]*session.Session
	questions []question.Question
	rules     engine.Rules
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewHub starts the hub actor. Every room it creates runs the given
// question set under the given scoring rules.
func NewHub(parent context.Context, qs []question.Question, rules engine.Rules, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:     make(chan HubMsg, 64),
		rooms:     make(map[string]*session.Session),
		questions: qs,
		rules:     rules,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if _, taken := h.rooms[msg.Code]; taken {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.create(msg.Code)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case RemoveRoom:
				if room := h.rooms[msg.Code]; room != nil {
					room.Inbox() <- session.Shutdown{}
					delete(h.rooms, msg.Code)
				}

			case ShutdownHub:
				for _, room := range h.rooms {
					room.Inbox() <- session.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

func (h *Hub) create(code string) *session.Session {
	room := session.New(h.ctx, h.questions, h.rules, h.logger.With(zap.String("room", code)))
	h.rooms[code] = room
	h.logger.Info("room created", zap.String("room", code))
	return room
}
