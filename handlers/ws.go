// handlers/ws.go
package handlers

import (
	"log"
	"sync"

	"truenumber-arena/middleware"
	"truenumber-arena/models"
	"truenumber-arena/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// wsClient wraps a websocket connection with a write lock so the read loop
// and hub broadcasts never interleave frames.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// clientMessage is the client→server envelope: joinRoom, leaveRoom, playTurn.
type clientMessage struct {
	Event   string `json:"event"`
	MatchID string `json:"matchId"`
}

// SetupRealtimeRoutes mounts the websocket endpoint. Connections are
// authenticated at handshake with the same credential as the REST surface.
func SetupRealtimeRoutes(app *fiber.App, hub *services.Hub, turns *services.TurnService, authClient *services.AuthServiceClient) {
	app.Use("/ws", middleware.WSAuthMiddleware(authClient), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		serveSocket(conn, hub, turns)
	}))
}

func serveSocket(conn *websocket.Conn, hub *services.Hub, turns *services.TurnService) {
	userID, _ := conn.Locals(string(middleware.UserIDContextKey)).(string)
	client := &wsClient{conn: conn}

	defer func() {
		// Disconnect alters no match state: armed timers keep running and
		// can still time a player out.
		hub.LeaveAll(client)
		conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("[WS] read from %s ended: %v", userID, err)
			return
		}

		switch msg.Event {
		case "joinRoom":
			room := models.MatchRoom(msg.MatchID)
			hub.JoinRoom(room, client, userID)
			sendEvent(client, services.EventJoinedRoom, fiber.Map{"room": room})

		case "leaveRoom":
			hub.LeaveRoom(models.MatchRoom(msg.MatchID), client)

		case "playTurn":
			// Same engine as POST /matches/:id/turn; the broadcast reaches the
			// room, errors only this connection.
			if _, err := turns.SubmitTurn(msg.MatchID, userID); err != nil {
				sendEvent(client, services.EventError, fiber.Map{"message": err.Error()})
			}

		default:
			sendEvent(client, services.EventError, fiber.Map{"message": "unknown event: " + msg.Event})
		}
	}
}

func sendEvent(client *wsClient, event string, data interface{}) {
	if err := client.WriteJSON(services.Event{Event: event, Data: data}); err != nil {
		log.Printf("[WS] write failed: %v", err)
	}
}
