package http

import (
	"log/slog"
	"net/http"
	"time"

	"trivia-night-service/internal/app"
	"trivia-night-service/internal/domain"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WSHandler streams a game's leaderboard to websocket clients.
type WSHandler struct {
	service  *app.TriviaService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.TriviaService, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS sends the current scoreboard of ?gameId= on connect and every
// recomputed one afterwards. Inbound frames are read only to notice the
// client going away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		http.Error(w, "missing gameId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context(), gameID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()
	h.logger.Debug("leaderboard subscriber joined", "game_id", gameID)

	closed := make(chan struct{})
	writerDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for {
			select {
			case board, ok := <-updates:
				if !ok {
					return
				}
				if err := h.write(conn, board); err != nil {
					h.logger.Debug("ws write failed", "game_id", gameID, "err", err)
					_ = conn.Close() // unblocks the read loop
					return
				}
			case <-closed:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closed)
	<-writerDone
	h.logger.Debug("leaderboard subscriber left", "game_id", gameID)
}

func (h *WSHandler) write(conn *websocket.Conn, board domain.Scoreboard) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(outboundMessage[domain.Scoreboard]{Type: "scoreboard", Payload: board})
}
