package websocket

import (
	"context"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// RoomResolver authenticates a connection token and returns the rooms the
// connection joins.
type RoomResolver func(ctx context.Context, token string) ([]string, error)

// HandleWebSocket upgrades authenticated requests (?token=<bearer>) and runs
// them as Hub clients.
func HandleWebSocket(hub *Hub, resolve RoomResolver, origins []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		rooms, err := resolve(r.Context(), token)
		if err != nil || len(rooms) == 0 {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns:     origins,
			InsecureSkipVerify: len(origins) == 0,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		logger.Debug("websocket connected", "rooms", rooms)
		NewClient(hub, conn, rooms).Run(r.Context())
	}
}
