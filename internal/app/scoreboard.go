package app

import (
	"context"
	"sort"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/shopspring/decimal"
)

// ScoreAggregator derives scoreboards from evaluated answers. It never
// blocks submissions or evaluations.
type ScoreAggregator struct {
	snapshots ScoreSnapshotReader
	cache     ScoreboardCache
	now       func() time.Time
}

func newScoreAggregator(snapshots ScoreSnapshotReader, cache ScoreboardCache, now func() time.Time) *ScoreAggregator {
	return &ScoreAggregator{snapshots: snapshots, cache: cache, now: now}
}

// ScoreBoard returns the game's standings, served from the cache when one is
// configured.
func (a *ScoreAggregator) ScoreBoard(ctx context.Context, gameID string) (domain.Scoreboard, error) {
	if a.cache == nil {
		return a.load(ctx, gameID)
	}
	return a.cache.Scoreboard(ctx, gameID, func(ctx context.Context) (domain.Scoreboard, error) {
		return a.load(ctx, gameID)
	})
}

// Invalidate drops the cached scoreboard of a game.
func (a *ScoreAggregator) Invalidate(ctx context.Context, gameID string) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Invalidate(ctx, gameID)
}

func (a *ScoreAggregator) load(ctx context.Context, gameID string) (domain.Scoreboard, error) {
	snapshot, err := a.snapshots.ScoreSnapshot(ctx, gameID)
	if err != nil {
		return domain.Scoreboard{}, err
	}
	return BuildScoreboard(snapshot, a.now().UTC()), nil
}

// BuildScoreboard sums evaluated points per team and round. Every member team
// appears, every round of the game is listed for it, and ties share a place.
// Teams with equal totals are ordered by name, then id.
func BuildScoreboard(snapshot domain.ScoreSnapshot, at time.Time) domain.Scoreboard {
	rounds := append([]domain.Round(nil), snapshot.Rounds...)
	sortRounds(rounds)
	position := make(map[string]int, len(rounds))
	for i, r := range rounds {
		position[r.ID] = i
	}

	sums := make(map[string][]decimal.Decimal, len(snapshot.Teams))
	for _, team := range snapshot.Teams {
		perRound := make([]decimal.Decimal, len(rounds))
		for i := range perRound {
			perRound[i] = decimal.Zero
		}
		sums[team.ID] = perRound
	}
	for _, answer := range snapshot.Answers {
		perRound, ok := sums[answer.TeamID]
		if !ok {
			continue
		}
		i, ok := position[answer.RoundID]
		if !ok {
			continue
		}
		perRound[i] = perRound[i].Add(answer.Points)
	}

	standings := make([]domain.TeamStanding, 0, len(snapshot.Teams))
	for _, team := range snapshot.Teams {
		perRound := sums[team.ID]
		standing := domain.TeamStanding{
			TeamID:   team.ID,
			TeamName: team.Name,
			Total:    decimal.Zero,
			Rounds:   make([]domain.RoundScore, len(rounds)),
		}
		for i, r := range rounds {
			standing.Rounds[i] = domain.RoundScore{RoundID: r.ID, RoundNumber: r.Number, Points: perRound[i]}
			standing.Total = standing.Total.Add(perRound[i])
		}
		standings = append(standings, standing)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if c := standings[i].Total.Cmp(standings[j].Total); c != 0 {
			return c > 0
		}
		if standings[i].TeamName != standings[j].TeamName {
			return standings[i].TeamName < standings[j].TeamName
		}
		return standings[i].TeamID < standings[j].TeamID
	})
	for i := range standings {
		if i > 0 && standings[i].Total.Equal(standings[i-1].Total) {
			standings[i].Place = standings[i-1].Place
			continue
		}
		standings[i].Place = i + 1
	}

	return domain.Scoreboard{GameID: snapshot.GameID, Standings: standings, UpdatedAt: at}
}
