package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"trivia-night-service/internal/domain"
	"trivia-night-service/internal/infra/memory"

	"github.com/shopspring/decimal"
)

func TestNormalizePoints(t *testing.T) {
	cases := []struct {
		raw  float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{2.3, "2.5"},
		{2.2, "2"},
		{0.75, "1"},
		{0.74, "0.5"},
		{5.25, "5"},
		{7, "5"},
		{-3, "0"},
		{-0.25, "0"},
		{math.Inf(1), "5"},
		{math.Inf(-1), "0"},
	}
	for _, tc := range cases {
		got, err := NormalizePoints(tc.raw)
		if err != nil {
			t.Fatalf("normalize %v: %v", tc.raw, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("normalize %v: expected %s, got %s", tc.raw, tc.want, got)
		}
	}
	if _, err := NormalizePoints(math.NaN()); !errors.Is(err, domain.ErrInvalidPoints) {
		t.Fatalf("expected invalid points for NaN, got %v", err)
	}
}

func TestEvaluateStoresNormalizedPoints(t *testing.T) {
	f := newFixture(t, "Owls")
	ctx := context.Background()
	f.start(t, f.round.ID)
	answers := f.submit(t, f.teams[0], f.round.ID)

	grade, err := f.svc.Evaluator.Evaluate(ctx, answers[1].ID, 7)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !grade.Confirmed || !grade.Answer.Evaluated || !grade.Answer.Points.Decimal.Equal(MaxPoints) {
		t.Fatalf("unexpected grade %+v", grade)
	}
	stored, err := f.store.Answer(ctx, answers[1].ID)
	if err != nil {
		t.Fatalf("load answer: %v", err)
	}
	if !stored.Evaluated || !stored.Points.Valid || !stored.Points.Decimal.Equal(MaxPoints) {
		t.Fatalf("unexpected stored answer %+v", stored)
	}

	if _, err := f.svc.Evaluator.QuickGrade(ctx, answers[1].ID, false); err != nil {
		t.Fatalf("quick grade: %v", err)
	}
	stored, _ = f.store.Answer(ctx, answers[1].ID)
	if !stored.Points.Decimal.IsZero() || !stored.Evaluated {
		t.Fatalf("regrade must overwrite points, got %+v", stored)
	}
}

func TestEvaluateAllowedAfterCompletion(t *testing.T) {
	f := newFixture(t, "Owls")
	ctx := context.Background()
	f.start(t, f.round.ID)
	answers := f.submit(t, f.teams[0], f.round.ID)
	if _, err := f.svc.Rounds.Complete(ctx, f.round.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.Evaluator.QuickGrade(ctx, answers[0].ID, true); err != nil {
		t.Fatalf("completed rounds stay gradable: %v", err)
	}
}

func TestEvaluateRejectsWaitingRound(t *testing.T) {
	f := newFixture(t, "Owls")
	ctx := context.Background()
	f.start(t, f.round.ID)
	answers := f.submit(t, f.teams[0], f.round.ID)

	second, _ := f.createRound(t, "History")
	f.start(t, second.ID) // demotes the first round back to waiting

	if _, err := f.svc.Evaluator.Evaluate(ctx, answers[0].ID, 1); !errors.Is(err, domain.ErrEvaluationNotAllowed) {
		t.Fatalf("expected evaluation not allowed, got %v", err)
	}
	if _, err := f.svc.Evaluator.Evaluate(ctx, "missing", 1); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected answer not found, got %v", err)
	}
}

func TestFailedWriteReconcilesGradingView(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore()}
	f := newFixtureWithStore(t, store, "Owls")
	ctx := context.Background()
	f.start(t, f.round.ID)
	answers := f.submit(t, f.teams[0], f.round.ID)

	if _, err := f.svc.Evaluator.GradingSheet(ctx, f.teams[0].ID, f.round.ID); err != nil {
		t.Fatalf("grading sheet: %v", err)
	}
	if _, err := f.svc.Evaluator.Evaluate(ctx, answers[0].ID, 1); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	cause := errors.New("connection reset")
	store.setFailUpdate(cause)
	grade, err := f.svc.Evaluator.Evaluate(ctx, answers[0].ID, 3)
	if !errors.Is(err, domain.ErrStaleWrite) || !errors.Is(err, cause) {
		t.Fatalf("expected stale write wrapping the cause, got %v", err)
	}
	if grade.Confirmed {
		t.Fatalf("unstored grade reported as confirmed")
	}

	sheet, err := f.svc.Evaluator.GradingSheet(ctx, f.teams[0].ID, f.round.ID)
	if err != nil {
		t.Fatalf("grading sheet: %v", err)
	}
	if !sheet[0].Points.Decimal.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("grading view must fall back to stored points, got %s", sheet[0].Points.Decimal)
	}
}

func TestGradingSheetShowsOptimisticGrade(t *testing.T) {
	f := newFixture(t, "Owls")
	ctx := context.Background()
	f.start(t, f.round.ID)
	answers := f.submit(t, f.teams[0], f.round.ID)

	sheet, err := f.svc.Evaluator.GradingSheet(ctx, f.teams[0].ID, f.round.ID)
	if err != nil || len(sheet) != len(f.qs) {
		t.Fatalf("grading sheet: %d %v", len(sheet), err)
	}
	if _, err := f.svc.Evaluator.Evaluate(ctx, answers[2].ID, 0.5); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	key := sheetKey{teamID: f.teams[0].ID, roundID: f.round.ID}
	got, ok := f.svc.Evaluator.view.answer(key, answers[2].ID)
	if !ok || !got.Evaluated || !got.Points.Decimal.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected view answer %+v", got)
	}

	empty, err := f.svc.Evaluator.GradingSheet(ctx, f.teams[0].ID, "missing")
	if !errors.Is(err, domain.ErrRoundNotFound) || empty != nil {
		t.Fatalf("expected round not found, got %v", err)
	}
}

func TestConcurrentEvaluationsLeaveOneOfTheGrades(t *testing.T) {
	f := newFixture(t, "Owls")
	ctx := context.Background()
	f.start(t, f.round.ID)
	answers := f.submit(t, f.teams[0], f.round.ID)

	values := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3}
	var wg sync.WaitGroup
	for _, v := range values {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			if _, err := f.svc.Evaluator.Evaluate(ctx, answers[0].ID, v); err != nil {
				t.Errorf("evaluate %v: %v", v, err)
			}
		}(v)
	}
	wg.Wait()

	stored, _ := f.store.Answer(ctx, answers[0].ID)
	found := false
	for _, v := range values {
		if stored.Points.Decimal.Equal(decimal.NewFromFloat(v)) {
			found = true
		}
	}
	if !found || !stored.Evaluated {
		t.Fatalf("stored points %s are not one of the submitted grades", stored.Points.Decimal)
	}
	if f.svc.Evaluator.answers.size() != 0 {
		t.Fatalf("answer locks leaked: %d", f.svc.Evaluator.answers.size())
	}
}

func TestStartWaitsForEvaluationInFlight(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Store: memory.NewStore()}
	f := newFixtureWithStore(t, store, "Owls")
	f.start(t, f.round.ID)
	answers := f.submit(t, f.teams[0], f.round.ID)
	next, _ := f.createRound(t, "History")

	var startErr error
	done := store.raceWith(func() {
		_, startErr = f.svc.Rounds.Start(ctx, next.ID)
	})
	grade, err := f.svc.Evaluator.Evaluate(ctx, answers[0].ID, 3)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !grade.Confirmed {
		t.Fatalf("expected confirmed grade")
	}
	<-done
	if startErr != nil {
		t.Fatalf("start: %v", startErr)
	}

	if seen := store.statuses(); len(seen) != 1 || seen[0] != domain.RoundActive {
		t.Fatalf("expected grade stored while the round was active, got %v", seen)
	}
	if got := f.status(t, f.round.ID); got != domain.RoundWaiting {
		t.Fatalf("expected first round demoted, got %s", got)
	}
	if got := f.status(t, next.ID); got != domain.RoundActive {
		t.Fatalf("expected second round active, got %s", got)
	}
}
