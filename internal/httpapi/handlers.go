package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/quizwire/trivia-backend/internal/hub"
	"github.com/quizwire/trivia-backend/internal/session"
)

// Version is the release version reported by /version.
const Version = "0.1.0"

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// CreateRoom allocates a fresh room code, retrying on the (unlikely)
// collision with a live room.
func CreateRoom(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			// CreateRoom replies nil on a taken code, so check and create are
			// one atomic hub round-trip.
			reply := make(chan *session.Session, 1)
			h.Inbox() <- hub.CreateRoom{Code: c, Reply: reply}
			if <-reply != nil {
				code = c
				break
			}
			logger.Warn("room code collision, regenerating", zap.String("code", c))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

// RoomQR serves a PNG QR code pointing at the room's websocket join URL,
// for sharing a running quiz with phones in the same room.
func RoomQR(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
		if <-reply == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		scheme := "ws"
		if r.TLS != nil {
			scheme = "wss"
		}
		url := scheme + "://" + r.Host + "/ws?code=" + code

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func ServeVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("quizwire v" + Version + "\n"))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
