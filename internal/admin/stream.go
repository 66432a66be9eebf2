package admin

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relaymux/relaymux/internal/events"
)

// The admin surface sits behind the admin auth-mode gate; the websocket
// carries no extra privileges.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamLogs upgrades to a websocket and pushes every request-completed
// event as it is published, until the client goes away.
func (h *Handler) StreamLogs(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event hub not configured"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	var writeMu sync.Mutex
	unsubscribe := h.hub.Subscribe(events.TopicRequestCompleted, func(_ context.Context, event events.Event) {
		writeMu.Lock()
		err := conn.WriteJSON(event)
		writeMu.Unlock()
		if err != nil {
			closeDone()
		}
	})
	defer unsubscribe()

	// Reads only serve to detect the client closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeDone()
				return
			}
		}
	}()

	select {
	case <-done:
	case <-c.Request.Context().Done():
	}
}
