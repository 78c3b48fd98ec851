package api

import (
	"context"
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/coder/websocket"
)

func accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, context.Context, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil, nil, err
	}
	return c, r.Context(), nil
}

// StreamEvents sends every monitor event to the client as a JSON text
// message until either side goes away.
func StreamEvents(s *Service, w http.ResponseWriter, r *http.Request) {
	c, ctx, err := accept(w, r)
	if err != nil {
		log.WithError(err).Error("Failed to accept client")
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "closing")

	// Clients only listen; CloseRead handles their control frames and
	// cancels ctx when they disconnect.
	ctx = c.CloseRead(ctx)

	events, unsub := s.mon.Subscribe()
	defer unsub()

	log.WithField("remote", r.RemoteAddr).Debug("Event stream client connected")
	defer log.WithField("remote", r.RemoteAddr).Debug("Event stream client disconnected")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				log.WithError(err).Warn("Failed to encode event")
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, b); err != nil {
				return
			}
		}
	}
}
