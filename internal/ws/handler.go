// Package ws bridges websocket connections to quiz sessions. Each
// connection gets a reader loop (this handler) that only translates frames
// into session messages, and a writer goroutine draining the session's
// outbox; neither ever blocks the session loop.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quizwire/trivia-backend/internal/hub"
	"github.com/quizwire/trivia-backend/internal/session"
	"github.com/quizwire/trivia-backend/pkg/types"
)

const writeTimeout = 3 * time.Second

func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
		room := <-reply
		if room == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		out := make(chan types.ServerMessage, 8)
		done := make(chan struct{})
		log := logger.With(zap.String("room", code), zap.String("client", clientID))

		// Leave is safe to send even if we were never registered or already
		// dropped; the Done guard keeps a shut-down session from blocking us.
		defer func() { send(room, session.Leave{ClientID: clientID}) }()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writePump(writeCtx, conn, out, done)

		readPump(r.Context(), conn, room, clientID, out, done, log)
	}
}

// send enqueues a session message unless the session already stopped
// consuming its inbox. Reports whether the message was accepted.
func send(room *session.Session, msg session.Msg) bool {
	select {
	case room.Inbox() <- msg:
		return true
	case <-room.Done():
		return false
	}
}

// readPump decodes frames and enqueues session messages until the
// connection dies. A decode failure is a transport fault for this
// connection only: report it, then disconnect.
func readPump(ctx context.Context, conn *websocket.Conn, room *session.Session, clientID string, out chan types.ServerMessage, done chan struct{}, log *zap.Logger) {
	joined := false

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				log.Debug("read failed", zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			log.Warn("malformed message, closing connection", zap.Error(err))
			enqueue(out, types.Error{Type: types.TypeError, Code: "malformed", Detail: "invalid message"})
			conn.Close(websocket.StatusInvalidFramePayloadData, "malformed message")
			return
		}

		switch cm.Type {
		case types.TypeJoin:
			if !send(room, session.Join{ClientID: clientID, Name: cm.Name, Outbox: out, Done: done}) {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			joined = true

		case types.TypeAnswer, types.TypeStart, types.TypeLeaderboard:
			if !joined {
				enqueue(out, types.Error{Type: types.TypeError, Code: "not_joined", Detail: "join first"})
				continue
			}
			if !send(room, session.FromClient{ClientID: clientID, Msg: cm}) {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}

		default:
			log.Warn("unknown message type, closing connection", zap.String("type", cm.Type))
			enqueue(out, types.Error{Type: types.TypeError, Code: "malformed", Detail: "unknown type"})
			conn.Close(websocket.StatusInvalidFramePayloadData, "unknown type")
			return
		}
	}
}

// writePump drains the outbox until the session signals the drop or the
// connection context ends. Each write gets a bounded timeout so one stuck
// peer cannot hold the goroutine.
func writePump(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			conn.Close(websocket.StatusGoingAway, "dropped")
			return
		case msg := <-out:
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// enqueue is a best-effort outbox send; a full outbox means the client is
// about to be dropped anyway.
func enqueue(out chan types.ServerMessage, msg types.ServerMessage) {
	select {
	case out <- msg:
	default:
	}
}
