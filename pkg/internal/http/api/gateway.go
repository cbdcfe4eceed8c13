package api

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/contrib/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

// unifiedGateway owns one realtime connection. Only this goroutine writes
// to the socket and touches the connection's typing state; a helper
// goroutine just reads.
func unifiedGateway(c *websocket.Conn) {
	user, _ := c.Locals("user").(uint)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := services.NewConnection(user, services.SessionBuffer)
	services.LocalHub.Subscribe(models.UserScope(user), conn)

	inbound := make(chan []byte)
	go func() {
		defer close(inbound)
		for {
			_, packet, err := c.ReadMessage()
			if err != nil {
				return
			}
			select {
			case inbound <- packet:
			case <-conn.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(services.Typing.TTL() / 2)
	defer ticker.Stop()

	log.Debug().Str("connection", conn.ID()).Uint("user", user).Msg("New realtime connection established...")

loop:
	for {
		select {
		case packet, ok := <-inbound:
			if !ok {
				break loop
			}
			var task models.UnifiedCommand
			if err := jsoniter.Unmarshal(packet, &task); err != nil {
				reply := models.UnifiedCommand{
					Action:  "error",
					Message: "unable to unmarshal your command, requires json request",
				}
				if err := c.WriteMessage(websocket.TextMessage, reply.Marshal()); err != nil {
					break loop
				}
				continue
			}
			if reply := services.DealCommand(ctx, conn, task); reply != nil {
				if err := c.WriteMessage(websocket.TextMessage, reply.Marshal()); err != nil {
					break loop
				}
			}
		case packet := <-conn.Outbox():
			if err := c.WriteMessage(websocket.TextMessage, packet); err != nil {
				break loop
			}
		case <-ticker.C:
			services.Typing.Expire(ctx, conn.ID())
		}
	}

	services.Typing.Disconnect(ctx, conn.ID())
	services.LocalHub.UnsubscribeAll(conn.ID())
	conn.Close()

	log.Debug().Str("connection", conn.ID()).Uint("user", user).Msg("Realtime connection closed...")
}
