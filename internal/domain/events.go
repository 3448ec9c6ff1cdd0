package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a state change worth telling other processes about.
type EventType string

const (
	EventGameCreated       EventType = "game.created"
	EventGameStatusChanged EventType = "game.status_changed"
	EventGameDeleted       EventType = "game.deleted"
	EventTeamJoined        EventType = "team.joined"
	EventTeamRemoved       EventType = "team.removed"
	EventRoundCreated      EventType = "round.created"
	EventRoundStarted      EventType = "round.started"
	EventRoundCompleted    EventType = "round.completed"
	EventRoundRestarted    EventType = "round.restarted"
	EventRoundEdited       EventType = "round.edited"
	EventRoundDeleted      EventType = "round.deleted"
	EventAnswersSubmitted  EventType = "answers.submitted"
	EventAnswerEvaluated   EventType = "answer.evaluated"
)

// Event is published after a state change has been stored.
type Event struct {
	Type     EventType        `json:"type"`
	GameID   string           `json:"gameId,omitempty"`
	RoundID  string           `json:"roundId,omitempty"`
	TeamID   string           `json:"teamId,omitempty"`
	AnswerID string           `json:"answerId,omitempty"`
	Points   *decimal.Decimal `json:"points,omitempty"`
	At       time.Time        `json:"at"`
}
