package controller

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"outreach/utils"
)

const wsPingInterval = 30 * time.Second

// CampaignProgressWS streams campaign progress events until the client goes
// away. Clients may connect before a campaign starts.
func CampaignProgressWS(hub *utils.ProgressHub, logger *logrus.Entry) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		events, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		// Reader loop only notices the client closing.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := c.WriteJSON(ev); err != nil {
					logger.WithError(err).Debug("Error writing progress event")
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
