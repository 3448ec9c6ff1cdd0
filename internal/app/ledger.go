package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"trivia-night-service/internal/domain"
)

// SubmissionLedger records each team's answers to a round exactly once.
type SubmissionLedger struct {
	core
}

func newSubmissionLedger(c core) *SubmissionLedger {
	return &SubmissionLedger{core: c}
}

// Submit stores one answer per question of the round for the team. Questions
// missing from answers are stored with empty text; unknown question ids
// reject the whole batch. The round stays active until the batch is stored.
func (l *SubmissionLedger) Submit(ctx context.Context, teamID, roundID string, answers map[string]string) ([]domain.Answer, error) {
	round, unlock, err := l.lockRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if round.Status != domain.RoundActive {
		return nil, domain.Errorf(domain.ErrRoundNotActive, "round %d is %s", round.Number, round.Status)
	}
	team, err := l.store.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := l.requireMember(ctx, round.GameID, team); err != nil {
		return nil, err
	}

	questions, err := l.store.Questions(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.Errorf(domain.ErrInvalidInput, "round %d has no questions", round.Number)
	}
	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	for id := range answers {
		if _, ok := known[id]; !ok {
			return nil, domain.Errorf(domain.ErrQuestionNotFound, "question %s is not part of round %d", id, round.Number)
		}
	}

	now := l.now().UTC()
	batch := make([]domain.Answer, 0, len(questions))
	for _, q := range questions {
		batch = append(batch, domain.Answer{
			ID:             l.newID(),
			QuestionID:     q.ID,
			QuestionNumber: q.Number,
			RoundID:        round.ID,
			TeamID:         team.ID,
			Text:           answers[q.ID],
			CreatedAt:      now,
		})
	}
	if err := l.store.CreateAnswers(ctx, batch); err != nil {
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			return nil, domain.Errorf(domain.ErrDuplicateSubmission, "team %q, round %d", team.Name, round.Number)
		}
		return nil, fmt.Errorf("store answers: %w", err)
	}

	l.logger.Info("answers submitted", "game_id", round.GameID, "round_id", round.ID, "team_id", team.ID, "answers", len(batch))
	l.emit(ctx, domain.Event{Type: domain.EventAnswersSubmitted, GameID: round.GameID, RoundID: round.ID, TeamID: team.ID})
	return batch, nil
}

// HasSubmitted reports whether the team already answered the round.
func (l *SubmissionLedger) HasSubmitted(ctx context.Context, teamID, roundID string) (bool, error) {
	answers, err := l.store.Answers(ctx, domain.AnswerFilter{TeamID: teamID, RoundID: roundID})
	if err != nil {
		return false, err
	}
	return len(answers) > 0, nil
}

// CompletionStatus reports per-team submission and grading progress.
func (l *SubmissionLedger) CompletionStatus(ctx context.Context, roundID string) (domain.RoundProgress, error) {
	round, err := l.store.Round(ctx, roundID)
	if err != nil {
		return domain.RoundProgress{}, err
	}
	return l.progress(ctx, round)
}

// TeamAnswers returns a team's answers to a round ordered by question number.
func (l *SubmissionLedger) TeamAnswers(ctx context.Context, teamID, roundID string) ([]domain.Answer, error) {
	answers, err := l.store.Answers(ctx, domain.AnswerFilter{TeamID: teamID, RoundID: roundID})
	if err != nil {
		return nil, err
	}
	sortAnswers(answers)
	return answers, nil
}

func (l *SubmissionLedger) progress(ctx context.Context, round domain.Round) (domain.RoundProgress, error) {
	teams, err := l.store.GameTeams(ctx, round.GameID)
	if err != nil {
		return domain.RoundProgress{}, err
	}
	answers, err := l.store.Answers(ctx, domain.AnswerFilter{RoundID: round.ID})
	if err != nil {
		return domain.RoundProgress{}, err
	}

	byTeam := make(map[string]*domain.TeamProgress, len(teams))
	progress := domain.RoundProgress{
		RoundID:    round.ID,
		Teams:      make([]domain.TeamProgress, len(teams)),
		TeamsTotal: len(teams),
	}
	for i, team := range teams {
		progress.Teams[i] = domain.TeamProgress{TeamID: team.ID, TeamName: team.Name}
		byTeam[team.ID] = &progress.Teams[i]
	}
	for _, answer := range answers {
		tp, ok := byTeam[answer.TeamID]
		if !ok {
			continue
		}
		tp.Submitted++
		if answer.Evaluated {
			tp.Evaluated++
		}
	}
	for _, tp := range progress.Teams {
		if tp.Submitted > 0 {
			progress.TeamsSubmitted++
		}
	}
	sort.SliceStable(progress.Teams, func(i, j int) bool {
		return progress.Teams[i].TeamName < progress.Teams[j].TeamName
	})
	return progress, nil
}

func (l *SubmissionLedger) requireMember(ctx context.Context, gameID string, team domain.Team) error {
	teams, err := l.store.GameTeams(ctx, gameID)
	if err != nil {
		return err
	}
	for _, t := range teams {
		if t.ID == team.ID {
			return nil
		}
	}
	return domain.Errorf(domain.ErrTeamNotInGame, "team %q", team.Name)
}

func sortAnswers(answers []domain.Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].QuestionNumber < answers[j].QuestionNumber
	})
}
