// Guessbox game protocol
//
// Two players share a room keyed by an 8-char id. Each round one of them
// (the director) secretly picks a target object; the other (the guesser)
// tries to pick the same one. Roles swap every round and the game ends
// after a fixed number of rounds.
//
// Features:
// - WebSockets per room: /guess/:roomid and /guess/:roomid/ws
// - Rooms created lazily on first join_room, removed on game over
// - Players identified by cookie (playerID)
// - Roles recomputed from join order and round parity, never stored
// - Rounds resolve on a guess, a client-sent timeout, or the engine timer
// - Post-game log of every round's outcome, delivered with game_over
// - Idle rooms reaped after a configurable timeout
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	closed   bool // owned by the engine goroutine
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "guessbox_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// parseClientMessage validates an inbound message at the boundary,
// returning the internal event form. Unknown types and messages missing
// required fields are dropped before they can reach the engine.
func parseClientMessage(msg ClientMessage, from *Client) (event, bool) {
	if msg.RoomID == "" {
		return event{}, false
	}

	switch msg.Type {
	case "join_room":
		return event{kind: eventJoin, roomID: msg.RoomID, from: from}, true
	case "select_target":
		if msg.ObjectID == "" {
			return event{}, false
		}
		return event{kind: eventSelectTarget, roomID: msg.RoomID, objectID: msg.ObjectID, from: from}, true
	case "object_selected":
		if msg.ObjectID == "" {
			return event{}, false
		}
		return event{kind: eventGuess, roomID: msg.RoomID, objectID: msg.ObjectID, from: from}, true
	case "timeout":
		return event{kind: eventTimeout, roomID: msg.RoomID, from: from}, true
	case "restart_game":
		return event{kind: eventRestart, roomID: msg.RoomID, from: from}, true
	default:
		return event{}, false
	}
}

func (c *Client) readPump(g *Game) {
	defer func() {
		g.events <- event{kind: eventDisconnect, from: c}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		ev, ok := parseClientMessage(msg, c)
		if !ok {
			continue
		}

		g.events <- ev
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// WebSocket handler. Joining a room still happens via the join_room
// event; the :roomid in the path only scopes the URL.
func serveWS(g *Game) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ps.ByName("roomid") == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		go client.writePump()
		client.readPump(g)
	}
}

// QR handler: generates a PNG QR code for the current room URL.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("roomid") == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewRoom handles GET /path by generating a new random room ID
// (with server-side collision detection) and redirecting to /path/:roomid.
func redirectNewRoom(path string, g *Game) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := g.registry.newRoomID()
		g.log.Debug().Str("room", roomID).Msg("new room URL issued")
		http.Redirect(w, r, path+"/"+roomID, http.StatusTemporaryRedirect)
	}
}

// registerGuessingGame sets up routes so that:
//   - $path                  → redirects to new random room (8-char ID)
//   - $path/:roomid          → HTML client
//   - $path/:roomid/ws       → WebSocket for that room
//   - $path/:roomid/qr       → PNG QR code for that room URL
func registerGuessingGame(cfg *Config, path string, mux *httprouter.Router, g *Game) {
	go g.run()
	if cfg.sessionTimeout > 0 {
		go g.reaperLoop()
	}

	// Root path → redirect to new random room
	mux.GET(cfg.prefix+path, redirectNewRoom(cfg.prefix+path, g))

	// Per-room client view (HTML)
	mux.GET(cfg.prefix+path+"/:roomid", serveGamePage(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWS(g))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)
}
