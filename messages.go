package main

import (
	"time"
)

// Inbound events, tagged by type. RoomID is required for every kind;
// ObjectID only for select_target and object_selected.
type ClientMessage struct {
	Type     string `json:"type"`               // "join_room", "select_target", "object_selected", "timeout", "restart_game"
	RoomID   string `json:"roomId,omitempty"`   // room the event applies to
	ObjectID string `json:"objectId,omitempty"` // select_target / object_selected
}

// Sent privately to each player whenever roles are (re)assigned.
type RoleAssignedMessage struct {
	Type string `json:"type"` // "role_assigned"
	Role string `json:"role"` // "director" or "guesser"
}

// RoundInfoMessage announces the current round and running scores to a room.
type RoundInfoMessage struct {
	Type   string         `json:"type"` // "round_info"
	Round  int            `json:"round"`
	Scores map[string]int `json:"scores"` // player id -> tally
}

// Sent to everyone in the room except the director who picked the target.
type TargetSelectedMessage struct {
	Type     string `json:"type"` // "target_selected"
	ObjectID string `json:"objectId"`
}

// FeedbackMessage reports the outcome of a guess (or a timed-out round,
// in which case ObjectID is absent) to the whole room.
type FeedbackMessage struct {
	Type     string `json:"type"`               // "feedback"
	ObjectID string `json:"objectId,omitempty"` // absent on timeout
	Correct  bool   `json:"correct"`
}

// GameOverMessage closes out a game with final scores and the full log.
type GameOverMessage struct {
	Type   string          `json:"type"` // "game_over"
	Scores map[string]int  `json:"scores"`
	Logs   []RoundLogEntry `json:"logs"`
}

// RoundLogEntry records how a single round resolved.
type RoundLogEntry struct {
	Round     int       `json:"round"`
	Guesser   string    `json:"guesser"` // "timeout" when the round timed out
	Target    string    `json:"target"`  // target at the time of resolution
	Guess     string    `json:"guess,omitempty"`
	Correct   bool      `json:"correct"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	roleDirector = "director"
	roleGuesser  = "guesser"

	// Guesser attribution used for rounds that resolve without a guess.
	timeoutGuesser = "timeout"
)
