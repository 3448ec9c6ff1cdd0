package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"trivia-night-service/internal/domain"
	"trivia-night-service/internal/infra/memory"
)

func TestSubmitStoresOneAnswerPerQuestion(t *testing.T) {
	f := newFixture(t, "Owls")
	f.start(t, f.round.ID)

	answers, err := f.svc.Ledger.Submit(context.Background(), f.teams[0].ID, f.round.ID, map[string]string{
		f.qs[0].ID: "Paris",
		f.qs[2].ID: "Everest",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(answers) != len(f.qs) {
		t.Fatalf("expected %d answers, got %d", len(f.qs), len(answers))
	}
	want := []string{"Paris", "", "Everest"}
	for i, a := range answers {
		if a.Text != want[i] || a.QuestionNumber != i+1 || a.Evaluated || a.Points.Valid {
			t.Fatalf("unexpected answer %d: %+v", i, a)
		}
	}

	submitted, err := f.svc.Ledger.HasSubmitted(context.Background(), f.teams[0].ID, f.round.ID)
	if err != nil || !submitted {
		t.Fatalf("expected submitted, got %v (%v)", submitted, err)
	}
}

func TestSubmitTwiceIsRejected(t *testing.T) {
	f := newFixture(t, "Owls")
	f.start(t, f.round.ID)
	f.submit(t, f.teams[0], f.round.ID)

	_, err := f.svc.Ledger.Submit(context.Background(), f.teams[0].ID, f.round.ID, map[string]string{f.qs[0].ID: "again"})
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}
	answers, _ := f.svc.Ledger.TeamAnswers(context.Background(), f.teams[0].ID, f.round.ID)
	if len(answers) != len(f.qs) || answers[0].Text != "" {
		t.Fatalf("first submission must be untouched, got %+v", answers)
	}
}

func TestConcurrentSubmissionsStoreOneBatch(t *testing.T) {
	f := newFixture(t, "Owls")
	f.start(t, f.round.ID)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok, dupes  int
		unexpected []error
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Ledger.Submit(context.Background(), f.teams[0].ID, f.round.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrDuplicateSubmission):
				dupes++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || dupes != 9 || len(unexpected) > 0 {
		t.Fatalf("expected 1 accepted and 9 duplicates, got %d/%d %v", ok, dupes, unexpected)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, "Owls")
	ctx := context.Background()

	if _, err := f.svc.Ledger.Submit(ctx, f.teams[0].ID, f.round.ID, nil); !errors.Is(err, domain.ErrRoundNotActive) {
		t.Fatalf("waiting rounds take no answers, got %v", err)
	}
	f.start(t, f.round.ID)

	if _, err := f.svc.Ledger.Submit(ctx, f.teams[0].ID, f.round.ID, map[string]string{"nope": "x"}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := f.svc.Ledger.Submit(ctx, "ghost", f.round.ID, nil); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected team not found, got %v", err)
	}

	outsider, err := f.svc.RegisterTeam(ctx, "Outsiders", 2)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.Ledger.Submit(ctx, outsider.ID, f.round.ID, nil); !errors.Is(err, domain.ErrTeamNotInGame) {
		t.Fatalf("expected team not in game, got %v", err)
	}

	if _, err := f.svc.Rounds.Complete(ctx, f.round.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.Ledger.Submit(ctx, f.teams[0].ID, f.round.ID, nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("completed rounds take no answers, got %v", err)
	}
}

func TestCompletionStatus(t *testing.T) {
	f := newFixture(t, "Owls", "Hawks")
	ctx := context.Background()
	f.start(t, f.round.ID)
	answers := f.submit(t, f.teams[1], f.round.ID)
	if _, err := f.svc.Evaluator.Evaluate(ctx, answers[0].ID, 1); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	progress, err := f.svc.Ledger.CompletionStatus(ctx, f.round.ID)
	if err != nil {
		t.Fatalf("completion status: %v", err)
	}
	if progress.TeamsSubmitted != 1 || progress.TeamsTotal != 2 {
		t.Fatalf("unexpected totals %+v", progress)
	}
	hawks, owls := progress.Teams[0], progress.Teams[1]
	if hawks.TeamName != "Hawks" || hawks.Submitted != 3 || hawks.Evaluated != 1 || hawks.Complete() {
		t.Fatalf("unexpected hawks progress %+v", hawks)
	}
	if owls.Submitted != 0 || owls.Complete() {
		t.Fatalf("unexpected owls progress %+v", owls)
	}
}

func TestCompleteWaitsForSubmissionInFlight(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Store: memory.NewStore()}
	f := newFixtureWithStore(t, store, "Owls")
	f.start(t, f.round.ID)

	var completeErr error
	done := store.raceWith(func() {
		_, completeErr = f.svc.Rounds.Complete(ctx, f.round.ID)
	})
	if _, err := f.svc.Ledger.Submit(ctx, f.teams[0].ID, f.round.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-done
	if completeErr != nil {
		t.Fatalf("complete: %v", completeErr)
	}

	if seen := store.statuses(); len(seen) != 1 || seen[0] != domain.RoundActive {
		t.Fatalf("expected answers stored into an active round, got %v", seen)
	}
	if got := f.status(t, f.round.ID); got != domain.RoundCompleted {
		t.Fatalf("expected completed round, got %s", got)
	}
}
