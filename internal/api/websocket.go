package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"execution-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents are the topics pushed to websocket clients.
var streamedEvents = []events.Event{
	events.EventOrderSubmitted,
	events.EventOrderFilled,
	events.EventOrderRejected,
	events.EventOrderCancelled,
	events.EventModeSwitched,
	events.EventBreakerState,
	events.EventSwarmConflict,
	events.EventRiskAlert,
	events.EventPriceTick,
}

type wsMessage struct {
	Event   events.Event `json:"event"`
	Payload any          `json:"payload"`
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

	// Fan all streamed topics into one channel for this connection.
	merged := make(chan wsMessage, 256)
	var wg sync.WaitGroup
	unsubs := make([]func(), 0, len(streamedEvents))
	stop := make(chan struct{})

	for _, ev := range streamedEvents {
		stream, unsub := s.Bus.Subscribe(ev, 64)
		unsubs = append(unsubs, unsub)
		wg.Add(1)
		go func(ev events.Event, stream <-chan any) {
			defer wg.Done()
			for payload := range stream {
				select {
				case merged <- wsMessage{Event: ev, Payload: payload}:
				case <-stop:
					return
				}
			}
		}(ev, stream)
	}
	defer func() {
		close(stop)
		for _, unsub := range unsubs {
			unsub()
		}
		wg.Wait()
	}()

	// Read pump: inbound frames are discarded, but the read loop is how we
	// learn the client went away while the bus is quiet.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			return
		case msg := <-merged:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
