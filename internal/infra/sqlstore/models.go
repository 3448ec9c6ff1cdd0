package sqlstore

import (
	"time"

	"trivia-night-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type gameRow struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description,notnull"`
	Date        time.Time `bun:"date,notnull"`
	Status      string    `bun:"status,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

type teamRow struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID           string    `bun:"id,pk"`
	Name         string    `bun:"name,notnull"`
	MembersCount int       `bun:"members_count,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

type gameTeamRow struct {
	bun.BaseModel `bun:"table:game_teams,alias:gt"`

	GameID string `bun:"game_id,pk"`
	TeamID string `bun:"team_id,pk"`
}

type categoryRow struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name,notnull"`
}

type roundRow struct {
	bun.BaseModel `bun:"table:rounds,alias:r"`

	ID          string     `bun:"id,pk"`
	GameID      string     `bun:"game_id,notnull"`
	Number      int        `bun:"round_number,notnull"`
	Category    string     `bun:"category,notnull"`
	Status      string     `bun:"status,notnull"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID        string     `bun:"id,pk"`
	RoundID   string     `bun:"round_id,notnull"`
	Number    int        `bun:"question_number,notnull"`
	Text      string     `bun:"text,notnull"`
	Category  string     `bun:"category,notnull"`
	UpdatedAt *time.Time `bun:"updated_at"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID             string              `bun:"id,pk"`
	QuestionID     string              `bun:"question_id,notnull"`
	QuestionNumber int                 `bun:"question_number,notnull"`
	RoundID        string              `bun:"round_id,notnull"`
	TeamID         string              `bun:"team_id,notnull"`
	Text           string              `bun:"answer_text,notnull"`
	Points         decimal.NullDecimal `bun:"points,type:numeric(4,1)"`
	Evaluated      bool                `bun:"evaluated,notnull"`
	CreatedAt      time.Time           `bun:"created_at,notnull"`
}

func (r gameRow) toDomain() (domain.Game, error) {
	status, err := domain.ParseGameStatus(r.Status)
	if err != nil {
		return domain.Game{}, err
	}
	return domain.Game{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Date:        r.Date.UTC(),
		Status:      status,
		CreatedAt:   r.CreatedAt.UTC(),
	}, nil
}

func newGameRow(g domain.Game) gameRow {
	return gameRow{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Date:        g.Date,
		Status:      g.Status.String(),
		CreatedAt:   g.CreatedAt,
	}
}

func (r teamRow) toDomain() domain.Team {
	return domain.Team{ID: r.ID, Name: r.Name, MembersCount: r.MembersCount, CreatedAt: r.CreatedAt.UTC()}
}

func (r roundRow) toDomain() (domain.Round, error) {
	status, err := domain.ParseRoundStatus(r.Status)
	if err != nil {
		return domain.Round{}, err
	}
	return domain.Round{
		ID:          r.ID,
		GameID:      r.GameID,
		Number:      r.Number,
		Category:    r.Category,
		Status:      status,
		CompletedAt: utcPtr(r.CompletedAt),
		CreatedAt:   r.CreatedAt.UTC(),
	}, nil
}

func newRoundRow(r domain.Round) roundRow {
	return roundRow{
		ID:          r.ID,
		GameID:      r.GameID,
		Number:      r.Number,
		Category:    r.Category,
		Status:      r.Status.String(),
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
	}
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{
		ID:        r.ID,
		RoundID:   r.RoundID,
		Number:    r.Number,
		Text:      r.Text,
		Category:  r.Category,
		UpdatedAt: utcPtr(r.UpdatedAt),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:             r.ID,
		QuestionID:     r.QuestionID,
		QuestionNumber: r.QuestionNumber,
		RoundID:        r.RoundID,
		TeamID:         r.TeamID,
		Text:           r.Text,
		Points:         r.Points,
		Evaluated:      r.Evaluated,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func newAnswerRow(a domain.Answer) answerRow {
	return answerRow{
		ID:             a.ID,
		QuestionID:     a.QuestionID,
		QuestionNumber: a.QuestionNumber,
		RoundID:        a.RoundID,
		TeamID:         a.TeamID,
		Text:           a.Text,
		Points:         a.Points,
		Evaluated:      a.Evaluated,
		CreatedAt:      a.CreatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
