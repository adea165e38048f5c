package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstTwoJoinsAssignBothRoles(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")

	g.handleJoin("r1", a)
	assert.Empty(t, drain(a), "single-player room should stay quiet")

	g.handleJoin("r1", b)

	msgsA := drain(a)
	msgsB := drain(b)
	require.Len(t, msgsA, 2)
	require.Len(t, msgsB, 2)

	roleA := msgsA[0].(RoleAssignedMessage)
	roleB := msgsB[0].(RoleAssignedMessage)

	// Round 1 is odd, so the first joiner directs.
	assert.Equal(t, roleDirector, roleA.Role)
	assert.Equal(t, roleGuesser, roleB.Role)
	assert.NotEqual(t, roleA.Role, roleB.Role)

	info := msgsA[1].(RoundInfoMessage)
	assert.Equal(t, 1, info.Round)
	assert.Equal(t, map[string]int{"player-a": 0, "player-b": 0}, info.Scores)
}

func TestRolesAlternateEveryRound(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	var previous string
	for round := 2; round <= 5; round++ {
		resolveRound(g, "r1")

		msgs := drain(a)
		require.NotEmpty(t, msgs)

		var role string
		for _, msg := range msgs {
			if ra, ok := msg.(RoleAssignedMessage); ok {
				role = ra.Role
			}
		}
		require.NotEmpty(t, role, "round %d produced no role assignment", round)

		if previous != "" {
			assert.NotEqual(t, previous, role, "round %d should flip roles", round)
		}
		previous = role
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")

	g.handleJoin("r1", a)
	g.handleJoin("r1", a)

	rm := g.registry.get("r1")
	require.NotNil(t, rm)
	assert.Len(t, rm.clients, 1)

	g.handleJoin("r1", b)
	g.handleJoin("r1", b)
	assert.Len(t, rm.clients, 2)
	assert.Len(t, rm.scores, 2)
}

func TestThirdJoinIsRefused(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	c := newTestClient("player-c")
	joinBoth(g, "r1", a, b)

	g.handleJoin("r1", c)

	rm := g.registry.get("r1")
	assert.Len(t, rm.clients, 2)
	assert.NotContains(t, rm.scores, "player-c")
	assert.Empty(t, drain(c))
}

func TestTargetHiddenFromSender(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	g.handleSelectTarget("r1", "cube1", a)

	assert.Empty(t, drain(a), "director should not see their own target echoed")

	msgsB := drain(b)
	require.Len(t, msgsB, 1)
	assert.Equal(t, "cube1", msgsB[0].(TargetSelectedMessage).ObjectID)

	assert.Equal(t, "cube1", g.registry.get("r1").target)
}

func TestCorrectGuessScoresOnlyTheGuesser(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	rm := g.registry.get("r1")

	g.handleSelectTarget("r1", "cube1", a)
	drain(b)

	g.handleGuess("r1", "cube1", b)

	assert.Equal(t, 1, rm.scores["player-b"])
	assert.Equal(t, 0, rm.scores["player-a"])

	msgsA := drain(a)
	require.NotEmpty(t, msgsA)
	fb := msgsA[0].(FeedbackMessage)
	assert.True(t, fb.Correct)
	assert.Equal(t, "cube1", fb.ObjectID)
}

func TestWrongGuessScoresNobody(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	rm := g.registry.get("r1")

	g.handleSelectTarget("r1", "cube1", a)
	drain(b)

	g.handleGuess("r1", "sphere1", b)

	assert.Equal(t, 0, rm.scores["player-a"])
	assert.Equal(t, 0, rm.scores["player-b"])

	fb := drain(b)[0].(FeedbackMessage)
	assert.False(t, fb.Correct)
}

func TestGuessAdvancesRound(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	rm := g.registry.get("r1")

	g.handleSelectTarget("r1", "cube1", a)
	g.handleGuess("r1", "cube1", b)

	assert.Equal(t, 2, rm.round)
	require.Len(t, rm.logs, 1)

	entry := rm.logs[0]
	assert.Equal(t, 1, entry.Round)
	assert.Equal(t, "player-b", entry.Guesser)
	assert.Equal(t, "cube1", entry.Target)
	assert.Equal(t, "cube1", entry.Guess)
	assert.True(t, entry.Correct)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestTimeoutResolvesWithSentinelGuesser(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	rm := g.registry.get("r1")
	g.handleSelectTarget("r1", "cube1", a)
	drain(b)

	g.handleTimeout("r1", 0)

	require.Len(t, rm.logs, 1)
	entry := rm.logs[0]
	assert.Equal(t, timeoutGuesser, entry.Guesser)
	assert.Equal(t, "cube1", entry.Target)
	assert.Empty(t, entry.Guess)
	assert.False(t, entry.Correct)

	fb := drain(a)[0].(FeedbackMessage)
	assert.False(t, fb.Correct)
	assert.Empty(t, fb.ObjectID)
}

func TestStaleTimerFireIsIgnored(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	rm := g.registry.get("r1")
	resolveRound(g, "r1")
	require.Equal(t, 2, rm.round)

	// A timer armed for round 1 firing late must not resolve round 2.
	g.handleTimeout("r1", 1)

	assert.Equal(t, 2, rm.round)
	assert.Len(t, rm.logs, 1)
}

func TestGameOverAfterMaxRounds(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	for round := 1; round <= 5; round++ {
		g.handleSelectTarget("r1", "cube1", a)
		g.handleGuess("r1", "pyramid1", b)
	}

	assert.Nil(t, g.registry.get("r1"), "room should be torn down on game over")

	var gameOvers []GameOverMessage
	var roundInfosAfter int
	seenGameOver := false
	for _, msg := range drain(b) {
		switch m := msg.(type) {
		case GameOverMessage:
			gameOvers = append(gameOvers, m)
			seenGameOver = true
		case RoundInfoMessage:
			if seenGameOver {
				roundInfosAfter++
			}
		}
	}

	require.Len(t, gameOvers, 1, "crossing maxRounds yields exactly one game_over")
	assert.Zero(t, roundInfosAfter, "no round_info after game_over")

	final := gameOvers[0]
	assert.Equal(t, map[string]int{"player-a": 0, "player-b": 0}, final.Scores)
	assert.Len(t, final.Logs, 5)

	// Events referencing the torn-down room are silent no-ops.
	g.handleGuess("r1", "cube1", b)
	g.handleTimeout("r1", 0)
	assert.Nil(t, g.registry.get("r1"))
}

func TestRestartResetsRoomState(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	rm := g.registry.get("r1")

	g.handleSelectTarget("r1", "cube1", a)
	g.handleGuess("r1", "cube1", b)
	require.Equal(t, 2, rm.round)
	require.Equal(t, 1, rm.scores["player-b"])

	drain(a)
	drain(b)

	g.handleRestart("r1")

	assert.Equal(t, 1, rm.round)
	assert.Empty(t, rm.target)
	assert.Empty(t, rm.logs)
	assert.Equal(t, map[string]int{"player-a": 0, "player-b": 0}, rm.scores)
	assert.Len(t, rm.clients, 2, "membership survives restart")

	msgsA := drain(a)
	require.Len(t, msgsA, 2)
	assert.Equal(t, roleDirector, msgsA[0].(RoleAssignedMessage).Role)
	assert.Equal(t, 1, msgsA[1].(RoundInfoMessage).Round)

	// A fresh game runs to game_over after exactly maxRounds again.
	for round := 1; round <= 5; round++ {
		resolveRound(g, "r1")
	}
	assert.Nil(t, g.registry.get("r1"))
}

func TestRestartUnknownRoomIsNoOp(t *testing.T) {
	g := newTestGame()

	g.handleRestart("nope")

	assert.Zero(t, g.registry.count())
}

func TestDisconnectCleansMembershipButKeepsRoom(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)
	g.handleJoin("r2", a)

	g.handleDisconnect(a)

	r1 := g.registry.get("r1")
	require.NotNil(t, r1, "disconnect never deletes the room itself")
	assert.Len(t, r1.clients, 1)
	assert.NotContains(t, r1.scores, "player-a")
	assert.Contains(t, r1.scores, "player-b")

	r2 := g.registry.get("r2")
	require.NotNil(t, r2)
	assert.Empty(t, r2.clients)

	// The remaining player hears nothing about it.
	assert.Empty(t, drain(b))
}

func TestRejoinRebindsToNewConnection(t *testing.T) {
	g := newTestGame()
	a1 := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a1, b)

	rm := g.registry.get("r1")

	// A refresh or second tab arrives with the same cookie.
	a2 := newTestClient("player-a")
	g.handleJoin("r1", a2)

	require.Len(t, rm.clients, 2)
	assert.Same(t, a2, rm.clients[0], "seat moves to the incoming connection")
	assert.Contains(t, rm.scores, "player-a")
	assert.True(t, a1.closed, "superseded connection is shut down")

	// The new connection learns its role.
	msgs := drain(a2)
	require.NotEmpty(t, msgs)
	assert.Equal(t, roleDirector, msgs[0].(RoleAssignedMessage).Role)

	// The old socket's late disconnect must not unseat the live player.
	g.handleDisconnect(a1)
	assert.Len(t, rm.clients, 2)
	assert.Contains(t, rm.scores, "player-a")

	// Disconnecting the live connection still cleans up fully.
	g.handleDisconnect(a2)
	assert.Len(t, rm.clients, 1)
	assert.NotContains(t, rm.scores, "player-a")
}

func TestEnforceRolesDropsSpoofedEvents(t *testing.T) {
	g := newTestGame()
	g.cfg.enforceRoles = true

	a := newTestClient("player-a")
	b := newTestClient("player-b")
	joinBoth(g, "r1", a, b)

	rm := g.registry.get("r1")

	// Round 1: a directs, b guesses.
	g.handleSelectTarget("r1", "cube1", b)
	assert.Empty(t, rm.target, "guesser cannot set the target")

	g.handleSelectTarget("r1", "cube1", a)
	drain(b)

	g.handleGuess("r1", "cube1", a)
	assert.Equal(t, 1, rm.round, "director's guess must not resolve the round")
	assert.Equal(t, 0, rm.scores["player-a"])

	g.handleGuess("r1", "cube1", b)
	assert.Equal(t, 2, rm.round)
	assert.Equal(t, 1, rm.scores["player-b"])
}

// The walkthrough from the protocol description: A joins, B joins, A
// directs round 1, picks cube1, B guesses it, scores flip for round 2.
func TestHappyPathScenario(t *testing.T) {
	g := newTestGame()
	a := newTestClient("player-a")
	b := newTestClient("player-b")

	g.handleJoin("r1", a)
	g.handleJoin("r1", b)

	rm := g.registry.get("r1")

	assert.Equal(t, roleDirector, drain(a)[0].(RoleAssignedMessage).Role)
	assert.Equal(t, roleGuesser, drain(b)[0].(RoleAssignedMessage).Role)

	g.handleSelectTarget("r1", "cube1", a)
	assert.Equal(t, "cube1", drain(b)[0].(TargetSelectedMessage).ObjectID)

	g.handleGuess("r1", "cube1", b)

	msgsB := drain(b)
	require.Len(t, msgsB, 3) // feedback, role_assigned, round_info

	fb := msgsB[0].(FeedbackMessage)
	assert.True(t, fb.Correct)

	assert.Equal(t, roleDirector, msgsB[1].(RoleAssignedMessage).Role, "roles flip for round 2")

	info := msgsB[2].(RoundInfoMessage)
	assert.Equal(t, 2, info.Round)
	assert.Equal(t, 1, info.Scores["player-b"])

	assert.Equal(t, 2, rm.round)
	assert.Equal(t, roleGuesser, drain(a)[1].(RoleAssignedMessage).Role)
}
