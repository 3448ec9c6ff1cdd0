package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trivia-night-service/internal/domain"

	"github.com/uptrace/bun"
)

// ScoreSnapshot reads a game's teams, rounds and evaluated answers inside one
// transaction. SQLite transactions are serializable already; Postgres gets a
// read-only repeatable read.
func (s *Store) ScoreSnapshot(ctx context.Context, gameID string) (domain.ScoreSnapshot, error) {
	var opts *sql.TxOptions
	if s.isPostgres() {
		opts = &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
	}

	snapshot := domain.ScoreSnapshot{GameID: gameID}
	err := s.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*gameRow)(nil)).Where("id = ?", gameID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("select game: %w", err)
		}
		if !exists {
			return domain.Errorf(domain.ErrGameNotFound, "%s", gameID)
		}

		if snapshot.Teams, err = gameTeams(ctx, tx, gameID); err != nil {
			return err
		}
		if snapshot.Rounds, err = rounds(ctx, tx, gameID); err != nil {
			return err
		}
		if len(snapshot.Rounds) == 0 {
			return nil
		}

		roundIDs := make([]string, 0, len(snapshot.Rounds))
		for _, r := range snapshot.Rounds {
			roundIDs = append(roundIDs, r.ID)
		}
		evaluated := true
		scored, err := answers(ctx, tx, domain.AnswerFilter{RoundIDs: roundIDs, Evaluated: &evaluated})
		if err != nil {
			return err
		}
		snapshot.Answers = make([]domain.ScoredAnswer, 0, len(scored))
		for _, a := range scored {
			if !a.Points.Valid {
				continue
			}
			snapshot.Answers = append(snapshot.Answers, domain.ScoredAnswer{TeamID: a.TeamID, RoundID: a.RoundID, Points: a.Points.Decimal})
		}
		return nil
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return domain.ScoreSnapshot{}, err
		}
		return domain.ScoreSnapshot{}, fmt.Errorf("score snapshot: %w", err)
	}
	return snapshot, nil
}
