package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trivia-night-service/internal/domain"
	"trivia-night-service/internal/infra/memory"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 10, 19, 19, 30, 0, 0, time.UTC)

type fixture struct {
	svc   *TriviaService
	store Store
	game  domain.Game
	teams []domain.Team
	round domain.Round
	qs    []domain.Question
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%03d", n.Add(1)) }
}

func newTestService(t *testing.T, store Store, opts Options) *TriviaService {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return testNow }
	}
	if opts.IDs == nil {
		opts.IDs = sequentialIDs()
	}
	svc := NewTriviaService(store, opts)
	t.Cleanup(svc.Close)
	return svc
}

// newFixture seeds an active game with the given teams and one waiting round
// of three questions.
func newFixture(t *testing.T, teamNames ...string) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewStore(), teamNames...)
}

func newFixtureWithStore(t *testing.T, store Store, teamNames ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	svc := newTestService(t, store, Options{})
	f := &fixture{svc: svc, store: store}

	game, err := svc.CreateGame(ctx, "Tuesday quiz", "")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	f.game = game
	for _, name := range teamNames {
		team, err := svc.RegisterTeam(ctx, name, 4)
		if err != nil {
			t.Fatalf("register team: %v", err)
		}
		if err := svc.AddTeamToGame(ctx, game.ID, team.ID); err != nil {
			t.Fatalf("add team: %v", err)
		}
		f.teams = append(f.teams, team)
	}
	f.round, f.qs = f.createRound(t, "Geography")
	return f
}

func (f *fixture) createRound(t *testing.T, category string) (domain.Round, []domain.Question) {
	t.Helper()
	round, qs, err := f.svc.Rounds.CreateRound(context.Background(), f.game.ID, category, []domain.QuestionDraft{
		{Text: "Capital of France?"},
		{Text: "Longest river?"},
		{Text: "Highest mountain?"},
	})
	if err != nil {
		t.Fatalf("create round: %v", err)
	}
	return round, qs
}

func (f *fixture) start(t *testing.T, roundID string) domain.Round {
	t.Helper()
	round, err := f.svc.Rounds.Start(context.Background(), roundID)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}
	return round
}

func (f *fixture) submit(t *testing.T, team domain.Team, roundID string) []domain.Answer {
	t.Helper()
	answers, err := f.svc.Ledger.Submit(context.Background(), team.ID, roundID, map[string]string{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return answers
}

func (f *fixture) status(t *testing.T, roundID string) domain.RoundStatus {
	t.Helper()
	round, err := f.store.Round(context.Background(), roundID)
	if err != nil {
		t.Fatalf("load round: %v", err)
	}
	return round.Status
}

// flakyStore fails selected writes. Embedding the interface hides any
// optional capabilities of the wrapped store.
type flakyStore struct {
	Store

	mu              sync.Mutex
	failUpdate      error
	failActivateFor string
}

func (s *flakyStore) UpdateAnswer(ctx context.Context, answerID string, points decimal.NullDecimal, evaluated bool) error {
	s.mu.Lock()
	err := s.failUpdate
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.UpdateAnswer(ctx, answerID, points, evaluated)
}

func (s *flakyStore) UpdateRoundStatus(ctx context.Context, roundID string, status domain.RoundStatus, completedAt *time.Time) error {
	s.mu.Lock()
	target := s.failActivateFor
	s.mu.Unlock()
	if status == domain.RoundActive && roundID == target {
		return fmt.Errorf("write timeout")
	}
	return s.Store.UpdateRoundStatus(ctx, roundID, status, completedAt)
}

func (s *flakyStore) setFailUpdate(err error) {
	s.mu.Lock()
	s.failUpdate = err
	s.mu.Unlock()
}

func (s *flakyStore) setFailActivate(roundID string) {
	s.mu.Lock()
	s.failActivateFor = roundID
	s.mu.Unlock()
}

// racingStore starts a concurrent operation right before the next answer
// write and records the status of the round that write lands on.
type racingStore struct {
	Store

	mu   sync.Mutex
	hook func()
	seen []domain.RoundStatus
}

// raceWith arms op for the next answer write. The write waits briefly for op
// before going ahead. The returned channel closes when op returns.
func (s *racingStore) raceWith(op func()) <-chan struct{} {
	done := make(chan struct{})
	s.mu.Lock()
	s.hook = func() {
		go func() {
			defer close(done)
			op()
		}()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}
	s.mu.Unlock()
	return done
}

func (s *racingStore) statuses() []domain.RoundStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RoundStatus(nil), s.seen...)
}

func (s *racingStore) beforeWrite(ctx context.Context, roundID string) {
	s.mu.Lock()
	hook := s.hook
	s.hook = nil
	s.mu.Unlock()
	if hook == nil {
		return
	}
	hook()
	round, err := s.Store.Round(ctx, roundID)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.seen = append(s.seen, round.Status)
	s.mu.Unlock()
}

func (s *racingStore) CreateAnswers(ctx context.Context, batch []domain.Answer) error {
	if len(batch) > 0 {
		s.beforeWrite(ctx, batch[0].RoundID)
	}
	return s.Store.CreateAnswers(ctx, batch)
}

func (s *racingStore) UpdateAnswer(ctx context.Context, answerID string, points decimal.NullDecimal, evaluated bool) error {
	if answer, err := s.Store.Answer(ctx, answerID); err == nil {
		s.beforeWrite(ctx, answer.RoundID)
	}
	return s.Store.UpdateAnswer(ctx, answerID, points, evaluated)
}
