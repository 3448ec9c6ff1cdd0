package migrations

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Table shapes as of this migration. Later changes get their own migration.
type game struct {
	bun.BaseModel `bun:"table:games"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description,notnull"`
	Date        time.Time `bun:"date,notnull"`
	Status      string    `bun:"status,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

type team struct {
	bun.BaseModel `bun:"table:teams"`

	ID           string    `bun:"id,pk"`
	Name         string    `bun:"name,notnull"`
	MembersCount int       `bun:"members_count,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

type gameTeam struct {
	bun.BaseModel `bun:"table:game_teams"`

	GameID string `bun:"game_id,pk"`
	TeamID string `bun:"team_id,pk"`
}

type category struct {
	bun.BaseModel `bun:"table:categories"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name,notnull,unique"`
}

type round struct {
	bun.BaseModel `bun:"table:rounds"`

	ID          string     `bun:"id,pk"`
	GameID      string     `bun:"game_id,notnull,unique:rounds_game_number"`
	Number      int        `bun:"round_number,notnull,unique:rounds_game_number"`
	Category    string     `bun:"category,notnull"`
	Status      string     `bun:"status,notnull"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
}

type question struct {
	bun.BaseModel `bun:"table:questions"`

	ID        string     `bun:"id,pk"`
	RoundID   string     `bun:"round_id,notnull,unique:questions_round_number"`
	Number    int        `bun:"question_number,notnull,unique:questions_round_number"`
	Text      string     `bun:"text,notnull"`
	Category  string     `bun:"category,notnull"`
	UpdatedAt *time.Time `bun:"updated_at"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
}

type answer struct {
	bun.BaseModel `bun:"table:answers"`

	ID             string    `bun:"id,pk"`
	QuestionID     string    `bun:"question_id,notnull,unique:answers_team_question"`
	QuestionNumber int       `bun:"question_number,notnull"`
	RoundID        string    `bun:"round_id,notnull"`
	TeamID         string    `bun:"team_id,notnull,unique:answers_team_question"`
	Text           string    `bun:"answer_text,notnull"`
	Points         *string   `bun:"points,type:numeric(4,1)"`
	Evaluated      bool      `bun:"evaluated,notnull,default:false"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
				tables := []struct {
					model       interface{}
					foreignKeys []string
				}{
					{model: (*game)(nil)},
					{model: (*team)(nil)},
					{model: (*category)(nil)},
					{
						model: (*gameTeam)(nil),
						foreignKeys: []string{
							"(game_id) REFERENCES games (id) ON DELETE CASCADE",
							"(team_id) REFERENCES teams (id) ON DELETE CASCADE",
						},
					},
					{
						model:       (*round)(nil),
						foreignKeys: []string{"(game_id) REFERENCES games (id) ON DELETE CASCADE"},
					},
					{
						model:       (*question)(nil),
						foreignKeys: []string{"(round_id) REFERENCES rounds (id) ON DELETE CASCADE"},
					},
					{
						model: (*answer)(nil),
						foreignKeys: []string{
							"(question_id) REFERENCES questions (id) ON DELETE CASCADE",
							"(round_id) REFERENCES rounds (id) ON DELETE CASCADE",
							"(team_id) REFERENCES teams (id) ON DELETE CASCADE",
						},
					},
				}
				for _, table := range tables {
					q := tx.NewCreateTable().Model(table.model).IfNotExists()
					for _, fk := range table.foreignKeys {
						q = q.ForeignKey(fk)
					}
					if _, err := q.Exec(ctx); err != nil {
						return err
					}
				}

				indexes := []*bun.CreateIndexQuery{
					tx.NewCreateIndex().Model((*game)(nil)).Index("games_single_active").Unique().IfNotExists().
						Column("status").Where("status = 'active'"),
					tx.NewCreateIndex().Model((*round)(nil)).Index("rounds_single_active").Unique().IfNotExists().
						Column("game_id").Where("status = 'active'"),
					tx.NewCreateIndex().Model((*answer)(nil)).Index("answers_round_evaluated").IfNotExists().
						Column("round_id", "evaluated"),
				}
				for _, idx := range indexes {
					if _, err := idx.Exec(ctx); err != nil {
						return err
					}
				}
				return nil
			})
		},
		func(ctx context.Context, db *bun.DB) error {
			for _, table := range []string{"answers", "questions", "rounds", "game_teams", "categories", "teams", "games"} {
				if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
