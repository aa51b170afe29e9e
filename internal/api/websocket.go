package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradepilot/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope wraps a bus payload with its event type for clients.
type wsEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// streamedEvents are the bus events pushed to websocket clients.
var streamedEvents = []events.Event{
	events.EventPriceTick,
	events.EventAnalysisUpdate,
	events.EventTradeExecuted,
	events.EventPositionUpdate,
	events.EventStatusUpdate,
	events.EventEngineError,
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	// Merge all subscribed events into one channel so a single writer owns
	// the connection.
	merged := make(chan wsEnvelope, 256)
	done := c.Request.Context().Done()
	quit := make(chan struct{})
	var wg sync.WaitGroup
	var unsubs []func()

	for _, e := range streamedEvents {
		ch, unsub := s.Bus.Subscribe(e, 100)
		unsubs = append(unsubs, unsub)
		wg.Add(1)
		go func(event events.Event, ch <-chan any) {
			defer wg.Done()
			for msg := range ch {
				select {
				case merged <- wsEnvelope{Type: string(event), Payload: msg}:
				case <-quit:
					return
				}
			}
		}(e, ch)
	}
	defer func() {
		close(quit)
		for _, unsub := range unsubs {
			unsub()
		}
		wg.Wait()
	}()

	for {
		select {
		case env := <-merged:
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
