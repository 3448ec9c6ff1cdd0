package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	// MaxPoints is the most a single answer can be worth.
	MaxPoints = decimal.NewFromInt(5)
	two       = decimal.NewFromInt(2)
)

const reconcileTimeout = 5 * time.Second

// NormalizePoints rounds raw to the nearest half point and clamps it to
// [0, MaxPoints].
func NormalizePoints(raw float64) (decimal.Decimal, error) {
	switch {
	case math.IsNaN(raw):
		return decimal.Zero, domain.Errorf(domain.ErrInvalidPoints, "points must be a number")
	case math.IsInf(raw, 1):
		return MaxPoints, nil
	case math.IsInf(raw, -1):
		return decimal.Zero, nil
	}
	points := decimal.NewFromFloat(raw).Mul(two).Round(0).Div(two)
	if points.IsNegative() {
		return decimal.Zero, nil
	}
	if points.GreaterThan(MaxPoints) {
		return MaxPoints, nil
	}
	return points, nil
}

// Grade is the outcome of an evaluation. Confirmed is false when the grade
// was shown but the store did not keep it.
type Grade struct {
	Answer    domain.Answer `json:"answer"`
	Confirmed bool          `json:"confirmed"`
}

// Evaluator grades answers and keeps an optimistic grading view per team and
// round that is reconciled with the store when a write fails.
type Evaluator struct {
	core
	answers *keyedMutex
	view    *gradingView
}

func newEvaluator(c core) *Evaluator {
	return &Evaluator{core: c, answers: newKeyedMutex(), view: newGradingView()}
}

// Evaluate stores normalized points for an answer of an active or completed
// round. The round cannot change state until the write returns. The grading
// view reflects the grade before the write returns.
func (e *Evaluator) Evaluate(ctx context.Context, answerID string, raw float64) (Grade, error) {
	points, err := NormalizePoints(raw)
	if err != nil {
		return Grade{}, err
	}

	unlock := e.answers.Lock(answerID)
	defer unlock()

	answer, err := e.store.Answer(ctx, answerID)
	if err != nil {
		return Grade{}, err
	}
	round, unlockGame, err := e.lockRound(ctx, answer.RoundID)
	if err != nil {
		return Grade{}, err
	}
	defer unlockGame()

	if !round.Status.Gradable() {
		return Grade{}, domain.Errorf(domain.ErrEvaluationNotAllowed, "round %d is %s", round.Number, round.Status)
	}

	graded := answer
	graded.Points = decimal.NewNullDecimal(points)
	graded.Evaluated = true

	e.view.apply(graded)
	if err := e.store.UpdateAnswer(ctx, answer.ID, graded.Points, true); err != nil {
		e.reconcile(ctx, answer.TeamID, answer.RoundID)
		e.logger.Warn("evaluation not stored", "answer_id", answer.ID, "round_id", round.ID, "team_id", answer.TeamID, "error", err)
		return Grade{Answer: graded, Confirmed: false}, domain.Wrap(domain.ErrStaleWrite, err)
	}
	// A sheet loaded while the write was in flight may predate it.
	e.view.apply(graded)

	e.logger.Info("answer evaluated", "answer_id", answer.ID, "round_id", round.ID, "team_id", answer.TeamID, "points", points.String())
	e.emit(ctx, domain.Event{
		Type:     domain.EventAnswerEvaluated,
		GameID:   round.GameID,
		RoundID:  round.ID,
		TeamID:   answer.TeamID,
		AnswerID: answer.ID,
		Points:   &points,
	})
	return Grade{Answer: graded, Confirmed: true}, nil
}

// QuickGrade marks an answer fully right (1 point) or wrong (0 points).
func (e *Evaluator) QuickGrade(ctx context.Context, answerID string, correct bool) (Grade, error) {
	if correct {
		return e.Evaluate(ctx, answerID, 1)
	}
	return e.Evaluate(ctx, answerID, 0)
}

// GradingSheet returns the team's answers to a round as the grader sees them.
func (e *Evaluator) GradingSheet(ctx context.Context, teamID, roundID string) ([]domain.Answer, error) {
	key := sheetKey{teamID: teamID, roundID: roundID}
	if answers, ok := e.view.get(key); ok {
		return answers, nil
	}

	version := e.view.currentVersion()
	answers, err := e.store.Answers(ctx, domain.AnswerFilter{TeamID: teamID, RoundID: roundID})
	if err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		if _, err := e.store.Round(ctx, roundID); err != nil {
			return nil, err
		}
		if _, err := e.store.Team(ctx, teamID); err != nil {
			return nil, err
		}
		return []domain.Answer{}, nil
	}
	sortAnswers(answers)
	e.view.put(key, answers, version)
	return answers, nil
}

// Reconcile replaces the grading view of a sheet with the stored answers.
func (e *Evaluator) Reconcile(ctx context.Context, teamID, roundID string) error {
	key := sheetKey{teamID: teamID, roundID: roundID}
	answers, err := e.store.Answers(ctx, domain.AnswerFilter{TeamID: teamID, RoundID: roundID})
	if err != nil {
		e.view.drop(key)
		return fmt.Errorf("reload grading sheet: %w", err)
	}
	e.view.replace(key, answers)
	return nil
}

func (e *Evaluator) reconcile(ctx context.Context, teamID, roundID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
	defer cancel()
	if err := e.Reconcile(ctx, teamID, roundID); err != nil {
		e.logger.Warn("grading view dropped", "team_id", teamID, "round_id", roundID, "error", err)
	}
}

type sheetKey struct {
	teamID  string
	roundID string
}

// gradingView holds the answers graders look at, keyed by team and round.
type gradingView struct {
	mu      sync.RWMutex
	version uint64
	sheets  map[sheetKey]map[string]domain.Answer
}

func newGradingView() *gradingView {
	return &gradingView{sheets: make(map[sheetKey]map[string]domain.Answer)}
}

func (v *gradingView) get(key sheetKey) ([]domain.Answer, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	sheet, ok := v.sheets[key]
	if !ok {
		return nil, false
	}
	answers := make([]domain.Answer, 0, len(sheet))
	for _, a := range sheet {
		answers = append(answers, a)
	}
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].QuestionNumber < answers[j].QuestionNumber
	})
	return answers, true
}

func (v *gradingView) currentVersion() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// put stores a freshly loaded sheet unless the view changed since version.
func (v *gradingView) put(key sheetKey, answers []domain.Answer, version uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.version != version {
		return
	}
	if _, ok := v.sheets[key]; ok {
		return
	}
	v.sheets[key] = indexAnswers(answers)
}

func (v *gradingView) replace(key sheetKey, answers []domain.Answer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version++
	if len(answers) == 0 {
		delete(v.sheets, key)
		return
	}
	v.sheets[key] = indexAnswers(answers)
}

// apply updates an answer in a loaded sheet.
func (v *gradingView) apply(answer domain.Answer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version++
	sheet, ok := v.sheets[sheetKey{teamID: answer.TeamID, roundID: answer.RoundID}]
	if !ok {
		return
	}
	sheet[answer.ID] = answer
}

func (v *gradingView) drop(key sheetKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version++
	delete(v.sheets, key)
}

func (v *gradingView) dropWhere(match func(sheetKey) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version++
	for key := range v.sheets {
		if match(key) {
			delete(v.sheets, key)
		}
	}
}

func (v *gradingView) answer(key sheetKey, answerID string) (domain.Answer, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	a, ok := v.sheets[key][answerID]
	return a, ok
}

func indexAnswers(answers []domain.Answer) map[string]domain.Answer {
	sheet := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		sheet[a.ID] = a
	}
	return sheet
}
