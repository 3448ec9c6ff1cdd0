package postgres

import (
	"context"
	"fmt"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
)

// SnapshotReader reads scoring inputs straight from Postgres in one
// repeatable-read, read-only transaction.
type SnapshotReader struct {
	pool *pgxpool.Pool
}

func NewSnapshotReader(pool *pgxpool.Pool) *SnapshotReader {
	return &SnapshotReader{pool: pool}
}

func (r *SnapshotReader) ScoreSnapshot(ctx context.Context, gameID string) (domain.ScoreSnapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.ScoreSnapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1)`, gameID).Scan(&exists); err != nil {
		return domain.ScoreSnapshot{}, fmt.Errorf("select game: %w", err)
	}
	if !exists {
		return domain.ScoreSnapshot{}, domain.Errorf(domain.ErrGameNotFound, "%s", gameID)
	}

	snapshot := domain.ScoreSnapshot{GameID: gameID}
	if snapshot.Teams, err = loadTeams(ctx, tx, gameID); err != nil {
		return domain.ScoreSnapshot{}, err
	}
	if snapshot.Rounds, err = loadRounds(ctx, tx, gameID); err != nil {
		return domain.ScoreSnapshot{}, err
	}
	if snapshot.Answers, err = loadScoredAnswers(ctx, tx, gameID); err != nil {
		return domain.ScoreSnapshot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ScoreSnapshot{}, fmt.Errorf("commit snapshot: %w", err)
	}
	return snapshot, nil
}

func loadTeams(ctx context.Context, tx pgx.Tx, gameID string) ([]domain.Team, error) {
	rows, err := tx.Query(ctx, `
		SELECT t.id, t.name, t.members_count, t.created_at
		FROM teams t
		JOIN game_teams gt ON gt.team_id = t.id
		WHERE gt.game_id = $1
		ORDER BY t.name, t.id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select teams: %w", err)
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.MembersCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func loadRounds(ctx context.Context, tx pgx.Tx, gameID string) ([]domain.Round, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, round_number, category, status, completed_at, created_at
		FROM rounds
		WHERE game_id = $1
		ORDER BY round_number`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		var (
			r         = domain.Round{GameID: gameID}
			status    string
			completed *time.Time
		)
		if err := rows.Scan(&r.ID, &r.Number, &r.Category, &status, &completed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		if r.Status, err = domain.ParseRoundStatus(status); err != nil {
			return nil, err
		}
		r.CompletedAt = completed
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// loadScoredAnswers reads points as text so no precision is lost on the way
// into decimal.
func loadScoredAnswers(ctx context.Context, tx pgx.Tx, gameID string) ([]domain.ScoredAnswer, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.team_id, a.round_id, a.points::text
		FROM answers a
		JOIN rounds r ON r.id = a.round_id
		WHERE r.game_id = $1 AND a.evaluated AND a.points IS NOT NULL`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.ScoredAnswer
	for rows.Next() {
		var (
			a      domain.ScoredAnswer
			points string
		)
		if err := rows.Scan(&a.TeamID, &a.RoundID, &points); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if a.Points, err = decimal.NewFromString(points); err != nil {
			return nil, fmt.Errorf("parse points %q: %w", points, err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
