package cli

import (
	"context"
	"errors"

	"trivia-night-service/internal/app"
	"trivia-night-service/internal/domain"
)

// seedDemo creates a playable sample game unless one is already active.
func seedDemo(ctx context.Context, service *app.TriviaService) error {
	if _, err := service.ActiveGame(ctx); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNoActiveGame) {
		return err
	}

	game, err := service.CreateGame(ctx, "Demo night", "Sample game created with --demo")
	if err != nil {
		return err
	}
	for _, t := range []struct {
		name    string
		members int
	}{
		{"Quizzly Bears", 4},
		{"The Know-It-Owls", 3},
		{"Trivia Newton John", 5},
	} {
		team, err := service.RegisterTeam(ctx, t.name, t.members)
		if err != nil {
			return err
		}
		if err := service.AddTeamToGame(ctx, game.ID, team.ID); err != nil {
			return err
		}
	}

	rounds := []struct {
		category  string
		questions []string
	}{
		{"Geography", []string{
			"What is the capital of Australia?",
			"Which river flows through Budapest?",
			"What is the smallest country in the world?",
		}},
		{"Science", []string{
			"What is the chemical symbol for gold?",
			"How many bones are in the adult human body?",
			"Which planet has the most moons?",
		}},
	}
	for _, r := range rounds {
		if _, err := service.CreateCategory(ctx, r.category); err != nil && !errors.Is(err, domain.ErrInvalidInput) {
			return err
		}
		drafts := make([]domain.QuestionDraft, 0, len(r.questions))
		for _, text := range r.questions {
			drafts = append(drafts, domain.QuestionDraft{Text: text, Category: r.category})
		}
		if _, _, err := service.Rounds.CreateRound(ctx, game.ID, r.category, drafts); err != nil {
			return err
		}
	}
	return nil
}
