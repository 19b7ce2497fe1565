package httpapi

import (
	"net/http"
)

// handleDashboardWS upgrades a dashboard observer connection and registers
// it with the notification hub. The connection only receives broadcasts;
// inbound frames are read and discarded to detect close.
func (r *Router) handleDashboardWS(w http.ResponseWriter, req *http.Request) {
	clientID := req.URL.Query().Get("clientId")
	if clientID == "" {
		http.Error(w, "missing clientId", http.StatusBadRequest)
		return
	}

	if !r.verifyWSToken(req.URL.Query().Get("token"), clientID) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("dashboard_ws: upgrade failed: %v", err)
		return
	}

	r.hub.Register(clientID, conn)

	go func() {
		defer func() {
			r.hub.Unregister(clientID)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
