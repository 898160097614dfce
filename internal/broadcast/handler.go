package broadcast

import (
	"encoding/json"
	"net/http"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// TrafficSource supplies the grid a new connection is greeted with.
type TrafficSource interface {
	TrafficData(hour int) []models.TrafficSample
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request, sends the current hour's traffic grid and then
// registers the connection for live updates. The greeting is written directly,
// before registration, so it always arrives first.
func (h *Hub) ServeWS(source TrafficSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("websocket upgrade failed")
			return
		}

		sub := newSubscriber(uuid.NewString(), conn, h.writeTimeout)
		now := h.now()
		greeting, err := json.Marshal(models.NewEnvelope(models.MessageTrafficUpdate, source.TrafficData(now.Hour()), now))
		if err == nil {
			err = sub.WriteMessage(websocket.TextMessage, greeting)
		}
		if err != nil {
			log.WithError(err).WithField("remote", r.RemoteAddr).Warn("sending initial traffic update")
			conn.Close()
			return
		}

		h.add(sub)
		go h.readLoop(sub)
	})
}

// readLoop discards client frames until the connection fails.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s.id)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("subscriber", s.id).Debug("websocket read error")
			}
			return
		}
	}
}
