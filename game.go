package main

import (
	"time"

	"github.com/rs/zerolog"
)

type eventKind int

const (
	eventJoin eventKind = iota
	eventSelectTarget
	eventGuess
	eventTimeout
	eventRestart
	eventDisconnect
	eventReap
)

// event is the validated, internal form of an inbound message. Every
// mutation of room state enters the engine through one of these.
type event struct {
	kind     eventKind
	roomID   string
	objectID string
	round    int // timer-fired timeouts only; 0 resolves unconditionally
	from     *Client
}

// Game runs every room through a single engine goroutine: all inbound
// events, for all rooms, are consumed from one channel in arrival order,
// so no two mutations of the same room ever interleave.
type Game struct {
	cfg      *Config
	log      zerolog.Logger
	registry *Registry
	events   chan event
}

func newGame(cfg *Config, log zerolog.Logger) *Game {
	return &Game{
		cfg:      cfg,
		log:      log,
		registry: newRegistry(),
		events:   make(chan event, 256),
	}
}

func (g *Game) run() {
	for ev := range g.events {
		g.dispatch(ev)
	}
}

func (g *Game) dispatch(ev event) {
	switch ev.kind {
	case eventJoin:
		g.handleJoin(ev.roomID, ev.from)
	case eventSelectTarget:
		g.handleSelectTarget(ev.roomID, ev.objectID, ev.from)
	case eventGuess:
		g.handleGuess(ev.roomID, ev.objectID, ev.from)
	case eventTimeout:
		g.handleTimeout(ev.roomID, ev.round)
	case eventRestart:
		g.handleRestart(ev.roomID)
	case eventDisconnect:
		g.handleDisconnect(ev.from)
	case eventReap:
		g.handleReap()
	}
}

// handleJoin adds the caller to the room, creating it on first use. A
// rejoin by an already-seated player id reseats it onto the incoming
// connection (a refresh or second tab), never double-counting it; a
// third distinct player is refused. The second distinct player activates
// the round.
func (g *Game) handleJoin(roomID string, c *Client) {
	rm := g.registry.getOrCreate(roomID, g.cfg.maxRounds)
	rm.touch()

	if rm.hasClient(c.playerID) {
		if old := rm.rebindClient(c); old != nil {
			g.closeClient(old)
			g.log.Debug().Str("room", roomID).Str("player", c.playerID).Msg("rejoin rebound to new connection")
			g.assignRoles(rm)
		}
		return
	}
	if len(rm.clients) >= 2 {
		g.log.Debug().Str("room", roomID).Str("player", c.playerID).Msg("join refused, room full")
		return
	}

	rm.clients = append(rm.clients, c)
	rm.scores[c.playerID] = 0

	g.log.Info().Str("room", roomID).Str("player", c.playerID).Int("players", len(rm.clients)).Msg("player joined")

	if len(rm.clients) == 2 {
		g.assignRoles(rm)
		g.broadcast(rm, RoundInfoMessage{
			Type:   "round_info",
			Round:  rm.round,
			Scores: rm.scoreSnapshot(),
		})
		g.armTimer(rm)
	}
}

// handleSelectTarget records the director's pick and shows it to everyone
// but the sender. Unless role enforcement is on, any member may set it.
func (g *Game) handleSelectTarget(roomID, objectID string, from *Client) {
	rm := g.registry.get(roomID)
	if rm == nil {
		return
	}
	rm.touch()

	if g.cfg.enforceRoles {
		director, _ := rm.roles()
		if director != from {
			g.log.Debug().Str("room", roomID).Str("player", from.playerID).Msg("select_target dropped, sender is not director")
			return
		}
	}

	rm.target = objectID

	g.broadcastExcept(rm, from, TargetSelectedMessage{
		Type:     "target_selected",
		ObjectID: objectID,
	})
}

// handleGuess resolves the round against the hidden target. A correct
// guess credits whichever member emitted it; with role enforcement on,
// only the designated guesser's events get this far.
func (g *Game) handleGuess(roomID, objectID string, from *Client) {
	rm := g.registry.get(roomID)
	if rm == nil {
		return
	}
	rm.touch()

	if g.cfg.enforceRoles {
		_, guesser := rm.roles()
		if guesser != from {
			g.log.Debug().Str("room", roomID).Str("player", from.playerID).Msg("guess dropped, sender is not guesser")
			return
		}
	}

	correct := rm.target == objectID

	if correct && rm.hasClient(from.playerID) {
		rm.scores[from.playerID]++
	}

	rm.logs = append(rm.logs, RoundLogEntry{
		Round:     rm.round,
		Guesser:   from.playerID,
		Target:    rm.target,
		Guess:     objectID,
		Correct:   correct,
		Timestamp: time.Now(),
	})

	g.log.Info().Str("room", roomID).Str("player", from.playerID).Int("round", rm.round).Bool("correct", correct).Msg("guess resolved")

	g.broadcast(rm, FeedbackMessage{
		Type:     "feedback",
		ObjectID: objectID,
		Correct:  correct,
	})

	g.advanceRound(rm)
}

// handleTimeout resolves the round as missed, with no guesser attribution.
// Timer-fired timeouts carry the round they armed for and are ignored if
// the room has moved on; client-sent timeouts resolve unconditionally.
func (g *Game) handleTimeout(roomID string, round int) {
	rm := g.registry.get(roomID)
	if rm == nil {
		return
	}
	if round != 0 && round != rm.round {
		return
	}
	rm.touch()

	rm.logs = append(rm.logs, RoundLogEntry{
		Round:     rm.round,
		Guesser:   timeoutGuesser,
		Target:    rm.target,
		Correct:   false,
		Timestamp: time.Now(),
	})

	g.log.Info().Str("room", roomID).Int("round", rm.round).Msg("round timed out")

	g.broadcast(rm, FeedbackMessage{
		Type:    "feedback",
		Correct: false,
	})

	g.advanceRound(rm)
}

// advanceRound is the shared tail of guess and timeout resolution: bump
// the round, and either end the game or set up the next round.
func (g *Game) advanceRound(rm *Room) {
	g.stopTimer(rm)

	rm.round++

	if rm.round > rm.maxRounds {
		g.broadcast(rm, GameOverMessage{
			Type:   "game_over",
			Scores: rm.scoreSnapshot(),
			Logs:   rm.logSnapshot(),
		})
		g.registry.delete(rm.id)
		g.log.Info().Str("room", rm.id).Int("rounds", rm.maxRounds).Msg("game over, room removed")
		return
	}

	g.assignRoles(rm)
	g.broadcast(rm, RoundInfoMessage{
		Type:   "round_info",
		Round:  rm.round,
		Scores: rm.scoreSnapshot(),
	})
	g.armTimer(rm)
}

// handleRestart resets an existing room to round 1: target and logs are
// cleared and every current member's score returns to 0. Membership is
// untouched, so the same pair plays again immediately.
func (g *Game) handleRestart(roomID string) {
	rm := g.registry.get(roomID)
	if rm == nil {
		return
	}
	rm.touch()

	g.stopTimer(rm)

	rm.round = 1
	rm.target = ""
	rm.logs = nil
	rm.scores = make(map[string]int, len(rm.clients))
	for _, c := range rm.clients {
		rm.scores[c.playerID] = 0
	}

	g.log.Info().Str("room", roomID).Msg("game restarted")

	g.assignRoles(rm)
	g.broadcast(rm, RoundInfoMessage{
		Type:   "round_info",
		Round:  rm.round,
		Scores: rm.scoreSnapshot(),
	})
	g.armTimer(rm)
}

// handleDisconnect removes the closed connection from every room it was
// seated in. The room itself stays, per the protocol: no round advance,
// no role reshuffle, and no notification to the remaining player. The
// round timer is disarmed so a half-empty room does not keep resolving
// rounds. A connection that was superseded by a rebind is no longer
// seated anywhere, so its disconnect is a no-op beyond cleanup.
func (g *Game) handleDisconnect(c *Client) {
	for _, rm := range g.registry.all() {
		if !rm.removeClient(c) {
			continue
		}
		rm.touch()

		g.log.Info().Str("room", rm.id).Str("player", c.playerID).Msg("player disconnected")

		if len(rm.clients) < 2 {
			g.stopTimer(rm)
		}
	}

	g.closeClient(c)
}

// closeClient shuts down a connection's send channel exactly once. Only
// the engine goroutine calls it, so the flag needs no locking.
func (g *Game) closeClient(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// handleReap removes rooms that have been idle longer than the session
// timeout, so abandoned one-player rooms don't accumulate forever.
func (g *Game) handleReap() {
	cutoff := time.Now().Add(-g.cfg.sessionTimeout)

	for _, rm := range g.registry.all() {
		if rm.lastActive.Before(cutoff) {
			g.stopTimer(rm)
			g.registry.delete(rm.id)
			g.log.Info().Str("room", rm.id).Msg("idle room reaped")
		}
	}
}

// assignRoles recomputes roles for the current round and tells each of
// the two players privately. With fewer than two players it does nothing:
// a single-player room simply waits.
func (g *Game) assignRoles(rm *Room) {
	director, guesser := rm.roles()
	if director == nil {
		return
	}

	g.unicast(director, RoleAssignedMessage{Type: "role_assigned", Role: roleDirector})
	g.unicast(guesser, RoleAssignedMessage{Type: "role_assigned", Role: roleGuesser})
}

// armTimer starts the engine-owned round timer, replacing any pending
// one. The fired timeout re-enters the event stream tagged with the round
// it was armed for, preserving serialization and ignoring stale fires.
func (g *Game) armTimer(rm *Room) {
	g.stopTimer(rm)

	if g.cfg.roundTimeout <= 0 || len(rm.clients) < 2 {
		return
	}

	roomID := rm.id
	round := rm.round

	rm.timer = time.AfterFunc(g.cfg.roundTimeout, func() {
		g.events <- event{kind: eventTimeout, roomID: roomID, round: round}
	})
}

func (g *Game) stopTimer(rm *Room) {
	if rm.timer != nil {
		rm.timer.Stop()
		rm.timer = nil
	}
}

// reaperLoop periodically asks the engine to sweep idle rooms. The sweep
// itself runs on the engine goroutine like any other event.
func (g *Game) reaperLoop() {
	ticker := time.NewTicker(g.cfg.sessionTimeout / 2)
	for range ticker.C {
		g.events <- event{kind: eventReap}
	}
}

// Delivery is fire-and-forget: each client drains its own buffered send
// channel, and a full buffer drops the message rather than stalling the
// engine or evicting the player.
func (g *Game) unicast(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		g.log.Warn().Str("player", c.playerID).Msg("send buffer full, message dropped")
	}
}

func (g *Game) broadcast(rm *Room, msg any) {
	for _, c := range rm.clients {
		g.unicast(c, msg)
	}
}

func (g *Game) broadcastExcept(rm *Room, skip *Client, msg any) {
	for _, c := range rm.clients {
		if c == skip {
			continue
		}
		g.unicast(c, msg)
	}
}
