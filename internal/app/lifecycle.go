package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"trivia-night-service/internal/domain"
)

// DefaultQuestionsPerRound caps the number of questions in a new round.
const DefaultQuestionsPerRound = 10

// RoundManager drives rounds through waiting, active and completed. All
// transitions of one game are serialised, so a game never has two active
// rounds.
type RoundManager struct {
	core
	ledger    *SubmissionLedger
	batchSize int
}

func newRoundManager(c core, ledger *SubmissionLedger, batchSize int) *RoundManager {
	if batchSize <= 0 {
		batchSize = DefaultQuestionsPerRound
	}
	return &RoundManager{core: c, ledger: ledger, batchSize: batchSize}
}

// CreateRound adds a waiting round with the next free number. Blank drafts
// are dropped before validation.
func (m *RoundManager) CreateRound(ctx context.Context, gameID, category string, drafts []domain.QuestionDraft) (domain.Round, []domain.Question, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return domain.Round{}, nil, domain.Errorf(domain.ErrInvalidInput, "category is required")
	}
	kept := make([]domain.QuestionDraft, 0, len(drafts))
	for _, draft := range drafts {
		draft.Text = strings.TrimSpace(draft.Text)
		if draft.Text == "" {
			continue
		}
		draft.Category = strings.TrimSpace(draft.Category)
		kept = append(kept, draft)
	}
	if len(kept) == 0 {
		return domain.Round{}, nil, domain.Errorf(domain.ErrInvalidInput, "a round needs at least one question")
	}
	if len(kept) > m.batchSize {
		return domain.Round{}, nil, domain.Errorf(domain.ErrInvalidInput, "a round holds at most %d questions, got %d", m.batchSize, len(kept))
	}

	unlock := m.games.Lock(gameID)
	defer unlock()

	game, err := m.store.Game(ctx, gameID)
	if err != nil {
		return domain.Round{}, nil, err
	}
	if game.Status == domain.GameArchived {
		return domain.Round{}, nil, domain.Errorf(domain.ErrInvalidTransition, "game %q is archived", game.Name)
	}
	rounds, err := m.store.Rounds(ctx, gameID)
	if err != nil {
		return domain.Round{}, nil, err
	}
	next := 1
	for _, r := range rounds {
		if r.Number >= next {
			next = r.Number + 1
		}
	}

	now := m.now().UTC()
	round := domain.Round{
		ID:        m.newID(),
		GameID:    gameID,
		Number:    next,
		Category:  category,
		Status:    domain.RoundWaiting,
		CreatedAt: now,
	}
	questions := make([]domain.Question, 0, len(kept))
	for i, draft := range kept {
		questions = append(questions, domain.Question{
			ID:        m.newID(),
			RoundID:   round.ID,
			Number:    i + 1,
			Text:      draft.Text,
			Category:  draft.Category,
			CreatedAt: now,
		})
	}
	if err := m.store.CreateRound(ctx, round, questions); err != nil {
		return domain.Round{}, nil, fmt.Errorf("create round: %w", err)
	}

	m.logger.Info("round created", "game_id", gameID, "round_id", round.ID, "round", round.Number, "questions", len(questions))
	m.emit(ctx, domain.Event{Type: domain.EventRoundCreated, GameID: gameID, RoundID: round.ID})
	return round, questions, nil
}

// Start activates a waiting round and demotes any other active round of the
// same game back to waiting.
func (m *RoundManager) Start(ctx context.Context, roundID string) (domain.Round, error) {
	round, unlock, err := m.lockRound(ctx, roundID)
	if err != nil {
		return domain.Round{}, err
	}
	defer unlock()

	if round.Status != domain.RoundWaiting {
		return domain.Round{}, domain.Errorf(domain.ErrInvalidTransition, "round %d is %s and cannot be started", round.Number, round.Status)
	}
	if err := m.requireActiveGame(ctx, round.GameID); err != nil {
		return domain.Round{}, err
	}
	if err := m.promote(ctx, round); err != nil {
		return domain.Round{}, err
	}

	round.Status = domain.RoundActive
	round.CompletedAt = nil
	m.logger.Info("round started", "game_id", round.GameID, "round_id", round.ID, "round", round.Number)
	m.emit(ctx, domain.Event{Type: domain.EventRoundStarted, GameID: round.GameID, RoundID: round.ID})
	return round, nil
}

// Complete closes an active round.
func (m *RoundManager) Complete(ctx context.Context, roundID string) (domain.Round, error) {
	round, unlock, err := m.lockRound(ctx, roundID)
	if err != nil {
		return domain.Round{}, err
	}
	defer unlock()

	if round.Status != domain.RoundActive {
		return domain.Round{}, domain.Errorf(domain.ErrRoundNotActive, "round %d is %s", round.Number, round.Status)
	}
	completedAt := m.now().UTC()
	if err := m.store.UpdateRoundStatus(ctx, round.ID, domain.RoundCompleted, &completedAt); err != nil {
		return domain.Round{}, fmt.Errorf("complete round: %w", err)
	}

	round.Status = domain.RoundCompleted
	round.CompletedAt = &completedAt
	m.logger.Info("round completed", "game_id", round.GameID, "round_id", round.ID, "round", round.Number)
	m.emit(ctx, domain.Event{Type: domain.EventRoundCompleted, GameID: round.GameID, RoundID: round.ID})
	return round, nil
}

// Restart reopens a started round while some team has not submitted yet.
// Answers already stored are kept.
func (m *RoundManager) Restart(ctx context.Context, roundID string) (domain.Round, error) {
	round, unlock, err := m.lockRound(ctx, roundID)
	if err != nil {
		return domain.Round{}, err
	}
	defer unlock()

	if round.Status == domain.RoundWaiting {
		return domain.Round{}, domain.Errorf(domain.ErrInvalidTransition, "round %d has not been started", round.Number)
	}
	if err := m.requireActiveGame(ctx, round.GameID); err != nil {
		return domain.Round{}, err
	}
	progress, err := m.ledger.progress(ctx, round)
	if err != nil {
		return domain.Round{}, err
	}
	if !restartable(round, progress) {
		return domain.Round{}, domain.Errorf(domain.ErrRestartNotAllowed, "%d of %d teams have submitted round %d", progress.TeamsSubmitted, progress.TeamsTotal, round.Number)
	}
	if err := m.promote(ctx, round); err != nil {
		return domain.Round{}, err
	}

	round.Status = domain.RoundActive
	round.CompletedAt = nil
	m.logger.Info("round restarted", "game_id", round.GameID, "round_id", round.ID, "round", round.Number,
		"teams_submitted", progress.TeamsSubmitted, "teams_total", progress.TeamsTotal)
	m.emit(ctx, domain.Event{Type: domain.EventRoundRestarted, GameID: round.GameID, RoundID: round.ID})
	return round, nil
}

// EditQuestions replaces question texts of a waiting round, keyed by
// question id. Nothing is written unless every id belongs to the round.
func (m *RoundManager) EditQuestions(ctx context.Context, roundID string, edits map[string]string) ([]domain.Question, error) {
	round, unlock, err := m.lockRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !round.Status.Editable() {
		return nil, domain.Errorf(domain.ErrRoundNotEditable, "round %d is %s", round.Number, round.Status)
	}
	questions, err := m.store.Questions(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}

	ids := make([]string, 0, len(edits))
	for id, text := range edits {
		if _, ok := index[id]; !ok {
			return nil, domain.Errorf(domain.ErrQuestionNotFound, "question %s is not part of round %d", id, round.Number)
		}
		if strings.TrimSpace(text) == "" {
			return nil, domain.Errorf(domain.ErrInvalidInput, "question text must not be empty")
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := m.now().UTC()
	for _, id := range ids {
		text := strings.TrimSpace(edits[id])
		if err := m.store.UpdateQuestionText(ctx, id, text, now); err != nil {
			return nil, fmt.Errorf("update question: %w", err)
		}
		q := &questions[index[id]]
		q.Text = text
		updatedAt := now
		q.UpdatedAt = &updatedAt
	}

	if len(ids) > 0 {
		m.logger.Info("round questions edited", "round_id", round.ID, "questions", len(ids))
		m.emit(ctx, domain.Event{Type: domain.EventRoundEdited, GameID: round.GameID, RoundID: round.ID})
	}
	return questions, nil
}

// SetCategory changes the category of a waiting round.
func (m *RoundManager) SetCategory(ctx context.Context, roundID, category string) (domain.Round, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return domain.Round{}, domain.Errorf(domain.ErrInvalidInput, "category is required")
	}
	round, unlock, err := m.lockRound(ctx, roundID)
	if err != nil {
		return domain.Round{}, err
	}
	defer unlock()

	if !round.Status.Editable() {
		return domain.Round{}, domain.Errorf(domain.ErrRoundNotEditable, "round %d is %s", round.Number, round.Status)
	}
	if err := m.store.UpdateRoundCategory(ctx, round.ID, category); err != nil {
		return domain.Round{}, fmt.Errorf("update round category: %w", err)
	}
	round.Category = category
	m.emit(ctx, domain.Event{Type: domain.EventRoundEdited, GameID: round.GameID, RoundID: round.ID})
	return round, nil
}

// Delete removes a waiting round together with its questions.
func (m *RoundManager) Delete(ctx context.Context, roundID string) error {
	round, unlock, err := m.lockRound(ctx, roundID)
	if err != nil {
		return err
	}
	defer unlock()

	if !round.Status.Editable() {
		return domain.Errorf(domain.ErrRoundNotEditable, "round %d is %s", round.Number, round.Status)
	}
	if err := m.store.DeleteRound(ctx, round.ID); err != nil {
		return fmt.Errorf("delete round: %w", err)
	}
	m.logger.Info("round deleted", "game_id", round.GameID, "round_id", round.ID, "round", round.Number)
	m.emit(ctx, domain.Event{Type: domain.EventRoundDeleted, GameID: round.GameID, RoundID: round.ID})
	return nil
}

// Rounds lists a game's rounds by number.
func (m *RoundManager) Rounds(ctx context.Context, gameID string) ([]domain.Round, error) {
	if _, err := m.store.Game(ctx, gameID); err != nil {
		return nil, err
	}
	rounds, err := m.store.Rounds(ctx, gameID)
	if err != nil {
		return nil, err
	}
	sortRounds(rounds)
	return rounds, nil
}

// Round returns a single round.
func (m *RoundManager) Round(ctx context.Context, roundID string) (domain.Round, error) {
	return m.store.Round(ctx, roundID)
}

// Questions lists a round's questions by number.
func (m *RoundManager) Questions(ctx context.Context, roundID string) ([]domain.Question, error) {
	if _, err := m.store.Round(ctx, roundID); err != nil {
		return nil, err
	}
	return m.store.Questions(ctx, roundID)
}

// Detail returns a round with its questions, progress and the actions the
// operator may take on it.
func (m *RoundManager) Detail(ctx context.Context, roundID string) (domain.RoundDetail, error) {
	round, err := m.store.Round(ctx, roundID)
	if err != nil {
		return domain.RoundDetail{}, err
	}
	questions, err := m.store.Questions(ctx, round.ID)
	if err != nil {
		return domain.RoundDetail{}, err
	}
	progress, err := m.ledger.progress(ctx, round)
	if err != nil {
		return domain.RoundDetail{}, err
	}
	return domain.RoundDetail{
		Round:       round,
		Questions:   questions,
		Progress:    progress,
		CanEdit:     round.Status.Editable(),
		CanEvaluate: round.Status.Gradable(),
		CanRestart:  restartable(round, progress),
	}, nil
}

// CurrentRound returns the active round of a game.
func (m *RoundManager) CurrentRound(ctx context.Context, gameID string) (domain.Round, error) {
	rounds, err := m.store.Rounds(ctx, gameID)
	if err != nil {
		return domain.Round{}, err
	}
	var (
		current domain.Round
		found   int
	)
	for _, r := range rounds {
		if r.Status != domain.RoundActive {
			continue
		}
		found++
		if found == 1 || r.Number > current.Number {
			current = r
		}
	}
	switch {
	case found == 0:
		return domain.Round{}, domain.Errorf(domain.ErrNoActiveRound, "game %s", gameID)
	case found > 1:
		m.logger.Error("game has more than one active round", "game_id", gameID, "active", found)
	}
	return current, nil
}

func (m *RoundManager) requireActiveGame(ctx context.Context, gameID string) error {
	game, err := m.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status != domain.GameActive {
		return domain.Errorf(domain.ErrGameNotActive, "game %q is %s", game.Name, game.Status)
	}
	return nil
}

// promote makes round the only active round of its game. Stores that cannot
// do it atomically get the demoted rounds restored if the promotion fails.
func (m *RoundManager) promote(ctx context.Context, round domain.Round) error {
	if promoter, ok := m.store.(RoundPromoter); ok {
		demoted, err := promoter.PromoteRound(ctx, round.GameID, round.ID)
		if err != nil {
			return fmt.Errorf("promote round: %w", err)
		}
		m.logDemoted(round, demoted)
		return nil
	}

	rounds, err := m.store.Rounds(ctx, round.GameID)
	if err != nil {
		return err
	}
	var demoted []string
	for _, r := range rounds {
		if r.ID == round.ID || r.Status != domain.RoundActive {
			continue
		}
		if err := m.store.UpdateRoundStatus(ctx, r.ID, domain.RoundWaiting, nil); err != nil {
			return errors.Join(fmt.Errorf("demote round %d: %w", r.Number, err), m.restore(ctx, demoted))
		}
		demoted = append(demoted, r.ID)
	}
	if err := m.store.UpdateRoundStatus(ctx, round.ID, domain.RoundActive, nil); err != nil {
		return errors.Join(fmt.Errorf("activate round %d: %w", round.Number, err), m.restore(ctx, demoted))
	}
	m.logDemoted(round, demoted)
	return nil
}

func (m *RoundManager) restore(ctx context.Context, demoted []string) error {
	var errs []error
	for _, id := range demoted {
		if err := m.store.UpdateRoundStatus(ctx, id, domain.RoundActive, nil); err != nil {
			m.logger.Error("restore demoted round failed", "round_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *RoundManager) logDemoted(round domain.Round, demoted []string) {
	for _, id := range demoted {
		m.logger.Info("round demoted", "game_id", round.GameID, "round_id", id, "promoted", round.ID)
	}
}

// restartable holds for a started round that some team has not submitted.
func restartable(round domain.Round, progress domain.RoundProgress) bool {
	if round.Status != domain.RoundActive && round.Status != domain.RoundCompleted {
		return false
	}
	return progress.TeamsTotal > 0 && progress.TeamsSubmitted < progress.TeamsTotal
}

func sortRounds(rounds []domain.Round) {
	sort.SliceStable(rounds, func(i, j int) bool {
		if rounds[i].Number != rounds[j].Number {
			return rounds[i].Number < rounds[j].Number
		}
		return rounds[i].ID < rounds[j].ID
	})
}
