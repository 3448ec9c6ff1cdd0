package app

import (
	"context"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Store is the persistent store the core reads and writes through. Every
// method is atomic on its own; CreateAnswers is atomic for the whole batch and
// fails with domain.ErrDuplicateSubmission if any (team, question) pair exists.
type Store interface {
	ActiveGame(ctx context.Context) (domain.Game, error)
	Game(ctx context.Context, gameID string) (domain.Game, error)
	Games(ctx context.Context) ([]domain.Game, error)
	CreateGame(ctx context.Context, game domain.Game) error
	UpdateGameStatus(ctx context.Context, gameID string, status domain.GameStatus) error
	DeleteGame(ctx context.Context, gameID string) error

	Team(ctx context.Context, teamID string) (domain.Team, error)
	Teams(ctx context.Context) ([]domain.Team, error)
	GameTeams(ctx context.Context, gameID string) ([]domain.Team, error)
	CreateTeam(ctx context.Context, team domain.Team) error
	AddTeamToGame(ctx context.Context, gameID, teamID string) error
	DeleteTeam(ctx context.Context, teamID string) error

	Categories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) error

	Round(ctx context.Context, roundID string) (domain.Round, error)
	Rounds(ctx context.Context, gameID string) ([]domain.Round, error)
	CreateRound(ctx context.Context, round domain.Round, questions []domain.Question) error
	UpdateRoundStatus(ctx context.Context, roundID string, status domain.RoundStatus, completedAt *time.Time) error
	UpdateRoundCategory(ctx context.Context, roundID, category string) error
	DeleteRound(ctx context.Context, roundID string) error

	Questions(ctx context.Context, roundID string) ([]domain.Question, error)
	UpdateQuestionText(ctx context.Context, questionID, text string, at time.Time) error

	Answer(ctx context.Context, answerID string) (domain.Answer, error)
	Answers(ctx context.Context, filter domain.AnswerFilter) ([]domain.Answer, error)
	CreateAnswers(ctx context.Context, batch []domain.Answer) error
	UpdateAnswer(ctx context.Context, answerID string, points decimal.NullDecimal, evaluated bool) error
}

// RoundPromoter is implemented by stores that can demote a game's active
// round and promote another one as a single unit. It returns the ids of the
// demoted rounds.
type RoundPromoter interface {
	PromoteRound(ctx context.Context, gameID, roundID string) ([]string, error)
}

// ScoreSnapshotReader provides a consistent read of a game's scoring inputs.
type ScoreSnapshotReader interface {
	ScoreSnapshot(ctx context.Context, gameID string) (domain.ScoreSnapshot, error)
}

// ScoreboardCache keeps computed scoreboards; load is called on a miss.
type ScoreboardCache interface {
	Scoreboard(ctx context.Context, gameID string, load func(context.Context) (domain.Scoreboard, error)) (domain.Scoreboard, error)
	Invalidate(ctx context.Context, gameID string) error
}

// EventPublisher forwards domain events to other processes.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(ctx context.Context, event domain.Event) error

func (f PublisherFunc) Publish(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// NewStoreSnapshotReader reads snapshots through plain Store queries. Stores
// with real transactions should provide their own reader.
func NewStoreSnapshotReader(store Store) ScoreSnapshotReader {
	return storeSnapshotReader{store: store}
}

type storeSnapshotReader struct {
	store Store
}

func (r storeSnapshotReader) ScoreSnapshot(ctx context.Context, gameID string) (domain.ScoreSnapshot, error) {
	if _, err := r.store.Game(ctx, gameID); err != nil {
		return domain.ScoreSnapshot{}, err
	}

	var (
		teams  []domain.Team
		rounds []domain.Round
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		teams, err = r.store.GameTeams(gctx, gameID)
		return err
	})
	g.Go(func() error {
		var err error
		rounds, err = r.store.Rounds(gctx, gameID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ScoreSnapshot{}, err
	}

	snapshot := domain.ScoreSnapshot{GameID: gameID, Teams: teams, Rounds: rounds}
	if len(rounds) == 0 {
		return snapshot, nil
	}

	roundIDs := make([]string, 0, len(rounds))
	for _, round := range rounds {
		roundIDs = append(roundIDs, round.ID)
	}
	evaluated := true
	answers, err := r.store.Answers(ctx, domain.AnswerFilter{RoundIDs: roundIDs, Evaluated: &evaluated})
	if err != nil {
		return domain.ScoreSnapshot{}, err
	}
	snapshot.Answers = make([]domain.ScoredAnswer, 0, len(answers))
	for _, answer := range answers {
		if !answer.Evaluated || !answer.Points.Valid {
			continue
		}
		snapshot.Answers = append(snapshot.Answers, domain.ScoredAnswer{
			TeamID:  answer.TeamID,
			RoundID: answer.RoundID,
			Points:  answer.Points.Decimal,
		})
	}
	return snapshot, nil
}
