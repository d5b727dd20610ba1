package api

import (
	"net/http"

	"barcode-server/internal/auth"
	"barcode-server/internal/websocket"
)

// @Summary      Opens the live event stream
// @Description  Upgrades to a WebSocket that receives barcode:created, barcode:updated and barcode:deleted events.
// @Tags         events
// @Param        token  query  string  true  "Access token"
// @Success      101  {string}  string  "Switching Protocols"
// @Failure      401  {object}  MessageResponse
// @Router       /ws [get]
func (s *Server) ServeWsHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		s.log.Infow("ws connection attempt without token", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	claims, err := auth.VerifyJWT(tokenString, s.config.JWT.Secret)
	if err != nil {
		s.log.Infow("ws connection attempt with invalid token", "remote_addr", r.RemoteAddr, "error", err)
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := websocket.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(s.wsHub, conn, claims.UserID, s.log)
	s.log.Infow("websocket client connected", "user_id", claims.UserID)

	go client.ReadPump()
	go client.WritePump()
}
