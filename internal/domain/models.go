package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Game is one trivia evening. At most one game is active at a time.
type Game struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Date        time.Time  `json:"date"`
	Status      GameStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Team plays in one or more games through membership.
type Team struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MembersCount int       `json:"membersCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Category is an entry of the optional category catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Round is one scored segment of a game.
type Round struct {
	ID          string      `json:"id"`
	GameID      string      `json:"gameId"`
	Number      int         `json:"roundNumber"`
	Category    string      `json:"category"`
	Status      RoundStatus `json:"status"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Question belongs to exactly one round; Number is unique within it.
type Question struct {
	ID        string     `json:"id"`
	RoundID   string     `json:"roundId"`
	Number    int        `json:"questionNumber"`
	Text      string     `json:"text"`
	Category  string     `json:"category,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// QuestionDraft is operator input for a new round.
type QuestionDraft struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// Answer is a team's response to one question. Points is valid iff Evaluated.
type Answer struct {
	ID             string              `json:"id"`
	QuestionID     string              `json:"questionId"`
	QuestionNumber int                 `json:"questionNumber"`
	RoundID        string              `json:"roundId"`
	TeamID         string              `json:"teamId"`
	Text           string              `json:"text"`
	Points         decimal.NullDecimal `json:"points"`
	Evaluated      bool                `json:"evaluated"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// AnswerFilter narrows Store.Answers. Empty fields do not filter.
type AnswerFilter struct {
	TeamID    string
	RoundID   string
	RoundIDs  []string
	Evaluated *bool
}

// RoundScore is the sum of a team's evaluated points in one round.
type RoundScore struct {
	RoundID     string          `json:"roundId"`
	RoundNumber int             `json:"roundNumber"`
	Points      decimal.Decimal `json:"points"`
}

// TeamStanding is one leaderboard row.
type TeamStanding struct {
	Place    int             `json:"place"`
	TeamID   string          `json:"teamId"`
	TeamName string          `json:"teamName"`
	Total    decimal.Decimal `json:"totalPoints"`
	Rounds   []RoundScore    `json:"rounds"`
}

// Scoreboard is the ordered projection of a game's evaluated answers.
type Scoreboard struct {
	GameID    string         `json:"gameId"`
	Standings []TeamStanding `json:"standings"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ScoredAnswer is the slice of an evaluated answer the aggregator needs.
type ScoredAnswer struct {
	TeamID  string
	RoundID string
	Points  decimal.Decimal
}

// ScoreSnapshot is a consistent read of everything a scoreboard is derived from.
type ScoreSnapshot struct {
	GameID  string
	Teams   []Team
	Rounds  []Round
	Answers []ScoredAnswer
}

// TeamProgress counts a team's submitted and evaluated answers in a round.
type TeamProgress struct {
	TeamID    string `json:"teamId"`
	TeamName  string `json:"teamName"`
	Submitted int    `json:"submitted"`
	Evaluated int    `json:"evaluated"`
}

// Complete reports whether every submitted answer has been graded.
func (p TeamProgress) Complete() bool {
	return p.Submitted > 0 && p.Submitted == p.Evaluated
}

// RoundProgress is the completion status of a round across the game's teams.
type RoundProgress struct {
	RoundID        string         `json:"roundId"`
	Teams          []TeamProgress `json:"teams"`
	TeamsSubmitted int            `json:"teamsSubmitted"`
	TeamsTotal     int            `json:"teamsTotal"`
}

// RoundDetail bundles what an operator screen shows for a round.
type RoundDetail struct {
	Round       Round         `json:"round"`
	Questions   []Question    `json:"questions"`
	Progress    RoundProgress `json:"progress"`
	CanEdit     bool          `json:"canEdit"`
	CanEvaluate bool          `json:"canEvaluate"`
	CanRestart  bool          `json:"canRestart"`
}

// TeamView is what a team client needs to play the current round.
type TeamView struct {
	Team      Team            `json:"team"`
	Game      *Game           `json:"game,omitempty"`
	Round     *Round          `json:"round,omitempty"`
	Questions []Question      `json:"questions"`
	Submitted bool            `json:"submitted"`
	Total     decimal.Decimal `json:"totalPoints"`
}
