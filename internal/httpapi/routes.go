package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quizwire/trivia-backend/internal/hub"
	"github.com/quizwire/trivia-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(h, logger))
	r.Get("/rooms/{code}/qr", RoomQR(h))
	r.Get("/healthz", Healthz)
	r.Get("/version", ServeVersion)
	r.Get("/ws", ws.Handler(h, logger))
	return r
}
