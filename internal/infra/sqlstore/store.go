package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store persists trivia records through bun on Postgres or SQLite.
type Store struct {
	db *bun.DB
}

// Open connects to the database named by driver. For SQLite, dsn is a file
// path or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var db *bun.DB
	switch driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		sqldb, err := sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		// one connection keeps ":memory:" databases shared and writers serialised
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing bun database.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// DB exposes the underlying bun database for migrations.
func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) isPostgres() bool {
	return s.db.Dialect().Name() == dialect.PG
}

func (s *Store) ActiveGame(ctx context.Context) (domain.Game, error) {
	var row gameRow
	err := s.db.NewSelect().Model(&row).Where("status = ?", domain.GameActive.String()).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.ErrNoActiveGame
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("select active game: %w", err)
	}
	return row.toDomain()
}

func (s *Store) Game(ctx context.Context, gameID string) (domain.Game, error) {
	var row gameRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", gameID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.Errorf(domain.ErrGameNotFound, "%s", gameID)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("select game: %w", err)
	}
	return row.toDomain()
}

func (s *Store) Games(ctx context.Context) ([]domain.Game, error) {
	var rows []gameRow
	if err := s.db.NewSelect().Model(&rows).Order("created_at DESC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	games := make([]domain.Game, 0, len(rows))
	for _, row := range rows {
		g, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

func (s *Store) CreateGame(ctx context.Context, game domain.Game) error {
	row := newGameRow(game)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Errorf(domain.ErrActiveGameExists, "insert game %s", game.ID)
		}
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (s *Store) UpdateGameStatus(ctx context.Context, gameID string, status domain.GameStatus) error {
	res, err := s.db.NewUpdate().Model((*gameRow)(nil)).
		Set("status = ?", status.String()).
		Where("id = ?", gameID).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Errorf(domain.ErrActiveGameExists, "activate game %s", gameID)
		}
		return fmt.Errorf("update game status: %w", err)
	}
	return expectRow(res, domain.ErrGameNotFound, gameID)
}

// DeleteGame removes the game and everything hanging off it in one
// transaction.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rounds := tx.NewSelect().Model((*roundRow)(nil)).Column("id").Where("game_id = ?", gameID)
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).Where("round_id IN (?)", rounds).Exec(ctx); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("round_id IN (?)", rounds).Exec(ctx); err != nil {
			return fmt.Errorf("delete questions: %w", err)
		}
		if _, err := tx.NewDelete().Model((*roundRow)(nil)).Where("game_id = ?", gameID).Exec(ctx); err != nil {
			return fmt.Errorf("delete rounds: %w", err)
		}
		if _, err := tx.NewDelete().Model((*gameTeamRow)(nil)).Where("game_id = ?", gameID).Exec(ctx); err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		res, err := tx.NewDelete().Model((*gameRow)(nil)).Where("id = ?", gameID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete game: %w", err)
		}
		return expectRow(res, domain.ErrGameNotFound, gameID)
	})
}

func (s *Store) Team(ctx context.Context, teamID string) (domain.Team, error) {
	var row teamRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", teamID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Team{}, domain.Errorf(domain.ErrTeamNotFound, "%s", teamID)
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("select team: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Teams(ctx context.Context) ([]domain.Team, error) {
	var rows []teamRow
	if err := s.db.NewSelect().Model(&rows).Order("name ASC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select teams: %w", err)
	}
	return teamsToDomain(rows), nil
}

func (s *Store) GameTeams(ctx context.Context, gameID string) ([]domain.Team, error) {
	return gameTeams(ctx, s.db, gameID)
}

func gameTeams(ctx context.Context, db bun.IDB, gameID string) ([]domain.Team, error) {
	var rows []teamRow
	err := db.NewSelect().Model(&rows).
		Join("JOIN game_teams AS gt ON gt.team_id = t.id").
		Where("gt.game_id = ?", gameID).
		Order("t.name ASC", "t.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select game teams: %w", err)
	}
	return teamsToDomain(rows), nil
}

func (s *Store) CreateTeam(ctx context.Context, team domain.Team) error {
	row := teamRow{ID: team.ID, Name: team.Name, MembersCount: team.MembersCount, CreatedAt: team.CreatedAt}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *Store) AddTeamToGame(ctx context.Context, gameID, teamID string) error {
	if _, err := s.Game(ctx, gameID); err != nil {
		return err
	}
	if _, err := s.Team(ctx, teamID); err != nil {
		return err
	}
	row := gameTeamRow{GameID: gameID, TeamID: teamID}
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *Store) DeleteTeam(ctx context.Context, teamID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).Where("team_id = ?", teamID).Exec(ctx); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		if _, err := tx.NewDelete().Model((*gameTeamRow)(nil)).Where("team_id = ?", teamID).Exec(ctx); err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		res, err := tx.NewDelete().Model((*teamRow)(nil)).Where("id = ?", teamID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete team: %w", err)
		}
		return expectRow(res, domain.ErrTeamNotFound, teamID)
	})
}

func (s *Store) Categories(ctx context.Context) ([]domain.Category, error) {
	var rows []categoryRow
	if err := s.db.NewSelect().Model(&rows).Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	categories := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, domain.Category{ID: row.ID, Name: row.Name})
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) error {
	row := categoryRow{ID: category.ID, Name: category.Name}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Errorf(domain.ErrInvalidInput, "category %q already exists", category.Name)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *Store) Round(ctx context.Context, roundID string) (domain.Round, error) {
	var row roundRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", roundID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Round{}, domain.Errorf(domain.ErrRoundNotFound, "%s", roundID)
	}
	if err != nil {
		return domain.Round{}, fmt.Errorf("select round: %w", err)
	}
	return row.toDomain()
}

func (s *Store) Rounds(ctx context.Context, gameID string) ([]domain.Round, error) {
	return rounds(ctx, s.db, gameID)
}

func rounds(ctx context.Context, db bun.IDB, gameID string) ([]domain.Round, error) {
	var rows []roundRow
	if err := db.NewSelect().Model(&rows).Where("game_id = ?", gameID).Order("round_number ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select rounds: %w", err)
	}
	out := make([]domain.Round, 0, len(rows))
	for _, row := range rows {
		r, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) CreateRound(ctx context.Context, round domain.Round, questions []domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := newRoundRow(round)
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.Errorf(domain.ErrInvalidInput, "round %d already exists", round.Number)
			}
			return fmt.Errorf("insert round: %w", err)
		}
		if len(questions) == 0 {
			return nil
		}
		rows := make([]questionRow, 0, len(questions))
		for _, q := range questions {
			rows = append(rows, questionRow{
				ID:        q.ID,
				RoundID:   q.RoundID,
				Number:    q.Number,
				Text:      q.Text,
				Category:  q.Category,
				CreatedAt: q.CreatedAt,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateRoundStatus(ctx context.Context, roundID string, status domain.RoundStatus, completedAt *time.Time) error {
	res, err := s.db.NewUpdate().Model((*roundRow)(nil)).
		Set("status = ?", status.String()).
		Set("completed_at = ?", completedAt).
		Where("id = ?", roundID).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Errorf(domain.ErrInvalidTransition, "round %s: game already has an active round", roundID)
		}
		return fmt.Errorf("update round status: %w", err)
	}
	return expectRow(res, domain.ErrRoundNotFound, roundID)
}

// PromoteRound demotes the game's active rounds and activates roundID in one
// transaction. On Postgres the game row is locked for the duration.
func (s *Store) PromoteRound(ctx context.Context, gameID, roundID string) ([]string, error) {
	var demoted []string
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if s.isPostgres() {
			var id string
			err := tx.NewSelect().Model((*gameRow)(nil)).Column("id").Where("id = ?", gameID).For("UPDATE").Scan(ctx, &id)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.Errorf(domain.ErrGameNotFound, "%s", gameID)
			}
			if err != nil {
				return fmt.Errorf("lock game: %w", err)
			}
		}

		err := tx.NewSelect().Model((*roundRow)(nil)).Column("id").
			Where("game_id = ?", gameID).
			Where("status = ?", domain.RoundActive.String()).
			Where("id <> ?", roundID).
			Order("id ASC").
			Scan(ctx, &demoted)
		if err != nil {
			return fmt.Errorf("select active rounds: %w", err)
		}
		if len(demoted) > 0 {
			_, err := tx.NewUpdate().Model((*roundRow)(nil)).
				Set("status = ?", domain.RoundWaiting.String()).
				Set("completed_at = NULL").
				Where("id IN (?)", bun.In(demoted)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("demote rounds: %w", err)
			}
		}

		res, err := tx.NewUpdate().Model((*roundRow)(nil)).
			Set("status = ?", domain.RoundActive.String()).
			Set("completed_at = NULL").
			Where("id = ?", roundID).
			Where("game_id = ?", gameID).
			Exec(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.Errorf(domain.ErrInvalidTransition, "game %s already has an active round", gameID)
			}
			return fmt.Errorf("activate round: %w", err)
		}
		return expectRow(res, domain.ErrRoundNotFound, roundID)
	})
	if err != nil {
		return nil, err
	}
	return demoted, nil
}

func (s *Store) UpdateRoundCategory(ctx context.Context, roundID, category string) error {
	res, err := s.db.NewUpdate().Model((*roundRow)(nil)).
		Set("category = ?", category).
		Where("id = ?", roundID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update round category: %w", err)
	}
	return expectRow(res, domain.ErrRoundNotFound, roundID)
}

func (s *Store) DeleteRound(ctx context.Context, roundID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).Where("round_id = ?", roundID).Exec(ctx); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("round_id = ?", roundID).Exec(ctx); err != nil {
			return fmt.Errorf("delete questions: %w", err)
		}
		res, err := tx.NewDelete().Model((*roundRow)(nil)).Where("id = ?", roundID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete round: %w", err)
		}
		return expectRow(res, domain.ErrRoundNotFound, roundID)
	})
}

func (s *Store) Questions(ctx context.Context, roundID string) ([]domain.Question, error) {
	var rows []questionRow
	if err := s.db.NewSelect().Model(&rows).Where("round_id = ?", roundID).Order("question_number ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	questions := make([]domain.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.toDomain())
	}
	return questions, nil
}

func (s *Store) UpdateQuestionText(ctx context.Context, questionID, text string, at time.Time) error {
	res, err := s.db.NewUpdate().Model((*questionRow)(nil)).
		Set("text = ?", text).
		Set("updated_at = ?", at).
		Where("id = ?", questionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return expectRow(res, domain.ErrQuestionNotFound, questionID)
}

func (s *Store) Answer(ctx context.Context, answerID string) (domain.Answer, error) {
	var row answerRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", answerID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, domain.Errorf(domain.ErrAnswerNotFound, "%s", answerID)
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("select answer: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Answers(ctx context.Context, filter domain.AnswerFilter) ([]domain.Answer, error) {
	return answers(ctx, s.db, filter)
}

func answers(ctx context.Context, db bun.IDB, filter domain.AnswerFilter) ([]domain.Answer, error) {
	var rows []answerRow
	q := db.NewSelect().Model(&rows)
	if filter.TeamID != "" {
		q = q.Where("team_id = ?", filter.TeamID)
	}
	if filter.RoundID != "" {
		q = q.Where("round_id = ?", filter.RoundID)
	}
	if len(filter.RoundIDs) > 0 {
		q = q.Where("round_id IN (?)", bun.In(filter.RoundIDs))
	}
	if filter.Evaluated != nil {
		q = q.Where("evaluated = ?", *filter.Evaluated)
	}
	if err := q.Order("team_id ASC", "round_id ASC", "question_number ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// CreateAnswers inserts the whole batch in one transaction. The unique
// (team_id, question_id) constraint turns a second submission into
// domain.ErrDuplicateSubmission.
func (s *Store) CreateAnswers(ctx context.Context, batch []domain.Answer) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]answerRow, 0, len(batch))
	for _, a := range batch {
		rows = append(rows, newAnswerRow(a))
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSubmission
		}
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

func (s *Store) UpdateAnswer(ctx context.Context, answerID string, points decimal.NullDecimal, evaluated bool) error {
	res, err := s.db.NewUpdate().Model((*answerRow)(nil)).
		Set("points = ?", points).
		Set("evaluated = ?", evaluated).
		Where("id = ?", answerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update answer: %w", err)
	}
	return expectRow(res, domain.ErrAnswerNotFound, answerID)
}

func teamsToDomain(rows []teamRow) []domain.Team {
	teams := make([]domain.Team, 0, len(rows))
	for _, row := range rows {
		teams = append(teams, row.toDomain())
	}
	return teams
}

func expectRow(res sql.Result, notFound *domain.Error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.Errorf(notFound, "%s", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
