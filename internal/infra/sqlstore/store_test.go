package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/shopspring/decimal"
)

var seedTime = time.Date(2026, 10, 19, 19, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "trivia.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seed(t, store)
	return store
}

func seed(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(store.CreateGame(ctx, domain.Game{ID: "g1", Name: "Pub night", Date: seedTime, Status: domain.GameActive, CreatedAt: seedTime}))
	must(store.CreateTeam(ctx, domain.Team{ID: "t1", Name: "Owls", MembersCount: 4, CreatedAt: seedTime}))
	must(store.CreateTeam(ctx, domain.Team{ID: "t2", Name: "Hawks", MembersCount: 3, CreatedAt: seedTime}))
	must(store.AddTeamToGame(ctx, "g1", "t1"))
	must(store.AddTeamToGame(ctx, "g1", "t2"))
	must(store.CreateRound(ctx,
		domain.Round{ID: "r1", GameID: "g1", Number: 1, Category: "Geography", Status: domain.RoundWaiting, CreatedAt: seedTime},
		[]domain.Question{
			{ID: "q1", RoundID: "r1", Number: 1, Text: "Capital of France?", CreatedAt: seedTime},
			{ID: "q2", RoundID: "r1", Number: 2, Text: "Longest river?", CreatedAt: seedTime},
		}))
	must(store.CreateRound(ctx,
		domain.Round{ID: "r2", GameID: "g1", Number: 2, Category: "Music", Status: domain.RoundWaiting, CreatedAt: seedTime},
		[]domain.Question{{ID: "q3", RoundID: "r2", Number: 1, Text: "Who sang Hello?", CreatedAt: seedTime}}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	applied, err := store.Migrate(context.Background())
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected nothing to apply, got %v", applied)
	}
}

func TestGamesAndMembership(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	active, err := store.ActiveGame(ctx)
	if err != nil || active.ID != "g1" || active.Status != domain.GameActive {
		t.Fatalf("unexpected active game %+v (%v)", active, err)
	}
	err = store.CreateGame(ctx, domain.Game{ID: "g2", Name: "Other", Status: domain.GameActive, CreatedAt: seedTime})
	if !errors.Is(err, domain.ErrActiveGameExists) {
		t.Fatalf("expected a second active game to be rejected, got %v", err)
	}

	if err := store.AddTeamToGame(ctx, "g1", "t1"); err != nil {
		t.Fatalf("re-adding a member is a no-op: %v", err)
	}
	teams, err := store.GameTeams(ctx, "g1")
	if err != nil || len(teams) != 2 || teams[0].Name != "Hawks" {
		t.Fatalf("unexpected members %+v (%v)", teams, err)
	}

	if err := store.UpdateGameStatus(ctx, "g1", domain.GameCompleted); err != nil {
		t.Fatalf("complete game: %v", err)
	}
	if _, err := store.ActiveGame(ctx); !errors.Is(err, domain.ErrNoActiveGame) {
		t.Fatalf("expected no active game, got %v", err)
	}
	if err := store.UpdateGameStatus(ctx, "missing", domain.GameCompleted); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected game not found, got %v", err)
	}
}

func TestPromoteRoundKeepsOneActive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.PromoteRound(ctx, "g1", "r1"); err != nil {
		t.Fatalf("promote r1: %v", err)
	}
	demoted, err := store.PromoteRound(ctx, "g1", "r2")
	if err != nil {
		t.Fatalf("promote r2: %v", err)
	}
	if len(demoted) != 1 || demoted[0] != "r1" {
		t.Fatalf("expected r1 demoted, got %v", demoted)
	}

	err = store.UpdateRoundStatus(ctx, "r1", domain.RoundActive, nil)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("the schema must refuse a second active round, got %v", err)
	}

	completed := seedTime.Add(time.Hour)
	if err := store.UpdateRoundStatus(ctx, "r2", domain.RoundCompleted, &completed); err != nil {
		t.Fatalf("complete: %v", err)
	}
	r2, err := store.Round(ctx, "r2")
	if err != nil || r2.Status != domain.RoundCompleted || r2.CompletedAt == nil || !r2.CompletedAt.Equal(completed) {
		t.Fatalf("unexpected round %+v (%v)", r2, err)
	}
}

func TestCreateAnswersRejectsDuplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	batch := []domain.Answer{
		{ID: "a1", QuestionID: "q1", QuestionNumber: 1, RoundID: "r1", TeamID: "t1", Text: "Paris", CreatedAt: seedTime},
		{ID: "a2", QuestionID: "q2", QuestionNumber: 2, RoundID: "r1", TeamID: "t1", CreatedAt: seedTime},
	}
	if err := store.CreateAnswers(ctx, batch); err != nil {
		t.Fatalf("create answers: %v", err)
	}

	again := []domain.Answer{
		{ID: "a3", QuestionID: "q1", QuestionNumber: 1, RoundID: "r1", TeamID: "t1", CreatedAt: seedTime},
	}
	if err := store.CreateAnswers(ctx, again); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}
	stored, err := store.Answers(ctx, domain.AnswerFilter{TeamID: "t1", RoundID: "r1"})
	if err != nil || len(stored) != 2 || stored[0].Text != "Paris" {
		t.Fatalf("unexpected answers %+v (%v)", stored, err)
	}
}

func TestScoreSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	batch := []domain.Answer{
		{ID: "a1", QuestionID: "q1", QuestionNumber: 1, RoundID: "r1", TeamID: "t1", CreatedAt: seedTime},
		{ID: "a2", QuestionID: "q2", QuestionNumber: 2, RoundID: "r1", TeamID: "t1", CreatedAt: seedTime},
		{ID: "a3", QuestionID: "q1", QuestionNumber: 1, RoundID: "r1", TeamID: "t2", CreatedAt: seedTime},
	}
	if err := store.CreateAnswers(ctx, batch); err != nil {
		t.Fatalf("create answers: %v", err)
	}
	if err := store.UpdateAnswer(ctx, "a1", decimal.NewNullDecimal(decimal.RequireFromString("1.5")), true); err != nil {
		t.Fatalf("update answer: %v", err)
	}
	if err := store.UpdateAnswer(ctx, "a3", decimal.NewNullDecimal(decimal.Zero), true); err != nil {
		t.Fatalf("update answer: %v", err)
	}

	snapshot, err := store.ScoreSnapshot(ctx, "g1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot.Teams) != 2 || len(snapshot.Rounds) != 2 || len(snapshot.Answers) != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	var total decimal.Decimal
	for _, a := range snapshot.Answers {
		total = total.Add(a.Points)
	}
	if !total.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected points total %s", total)
	}

	if _, err := store.ScoreSnapshot(ctx, "missing"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected game not found, got %v", err)
	}
}

func TestDeleteGameRemovesEverything(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.CreateAnswers(ctx, []domain.Answer{{ID: "a1", QuestionID: "q1", QuestionNumber: 1, RoundID: "r1", TeamID: "t1", CreatedAt: seedTime}}); err != nil {
		t.Fatalf("create answers: %v", err)
	}

	if err := store.DeleteGame(ctx, "g1"); err != nil {
		t.Fatalf("delete game: %v", err)
	}
	if _, err := store.Round(ctx, "r1"); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("round survived: %v", err)
	}
	if _, err := store.Answer(ctx, "a1"); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("answer survived: %v", err)
	}
	teams, err := store.Teams(ctx)
	if err != nil || len(teams) != 2 {
		t.Fatalf("teams outlive games, got %+v (%v)", teams, err)
	}
	if err := store.DeleteGame(ctx, "g1"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected game not found, got %v", err)
	}
}

func TestEditQuestionAndCategory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpdateQuestionText(ctx, "q1", "Capital of Spain?", seedTime); err != nil {
		t.Fatalf("update question: %v", err)
	}
	if err := store.UpdateRoundCategory(ctx, "r1", "Capitals"); err != nil {
		t.Fatalf("update category: %v", err)
	}
	questions, err := store.Questions(ctx, "r1")
	if err != nil || questions[0].Text != "Capital of Spain?" || questions[0].UpdatedAt == nil {
		t.Fatalf("unexpected questions %+v (%v)", questions, err)
	}
	round, _ := store.Round(ctx, "r1")
	if round.Category != "Capitals" {
		t.Fatalf("unexpected category %q", round.Category)
	}
	if err := store.UpdateQuestionText(ctx, "nope", "x", seedTime); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}
