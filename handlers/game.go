// handlers/game.go
package handlers

import (
	"log"
	"pong-match-service/game"
	"pong-match-service/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// GameSocket bridges websocket connections to the match coordinator.
type GameSocket struct {
	Coordinator *game.Coordinator
}

// Serve runs one connection: register, read until the peer goes away, unregister.
func (h *GameSocket) Serve(ws *websocket.Conn) {
	userID, _ := ws.Locals("user_id").(int64)
	conn := newWSConn(ws)

	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		h.Coordinator.MarkAlive(conn)
		return nil
	})

	go conn.writePump()
	h.Coordinator.Connect(conn, userID)

	defer func() {
		conn.Close()
		h.Coordinator.Disconnect(conn)
		<-conn.done
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[WS] user %d read error: %v", userID, err)
			}
			return
		}
		msg, err := game.DecodeInbound(data)
		if err != nil {
			continue
		}
		h.Coordinator.Handle(conn, msg)
	}
}

func SetupGameRoutes(app *fiber.App, coordinator *game.Coordinator) {
	socket := &GameSocket{Coordinator: coordinator}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "stats": coordinator.Stats()})
	})

	// 🔐 Identity comes from the Gateway; anonymous sockets are accepted and refused at pairing
	ws := app.Group("/ws", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/game", websocket.New(socket.Serve))
}
