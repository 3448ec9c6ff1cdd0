package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Options configures a TriviaService. Zero values pick sensible defaults.
type Options struct {
	Logger            *slog.Logger
	Clock             func() time.Time
	IDs               func() string
	QuestionsPerRound int
	// Snapshots defaults to plain Store reads.
	Snapshots ScoreSnapshotReader
	Cache     ScoreboardCache
	// Publisher receives every event after the service has handled it.
	Publisher EventPublisher
}

// TriviaService is the entry point for operators and teams. The components
// are exported for callers that need a single concern.
type TriviaService struct {
	core
	gamesMu sync.Mutex

	Rounds    *RoundManager
	Ledger    *SubmissionLedger
	Evaluator *Evaluator
	Scores    *ScoreAggregator

	external  EventPublisher
	hub       *leaderboardHub
	refresher *scoreboardRefresher
}

func NewTriviaService(store Store, opts Options) *TriviaService {
	s := &TriviaService{external: opts.Publisher, hub: newLeaderboardHub()}
	opts.Publisher = PublisherFunc(s.dispatch)
	s.core = newCore(store, opts)

	snapshots := opts.Snapshots
	if snapshots == nil {
		snapshots = NewStoreSnapshotReader(store)
	}
	s.Scores = newScoreAggregator(snapshots, opts.Cache, s.now)
	s.Ledger = newSubmissionLedger(s.core)
	s.Rounds = newRoundManager(s.core, s.Ledger, opts.QuestionsPerRound)
	s.Evaluator = newEvaluator(s.core)
	s.refresher = newScoreboardRefresher(s.Scores, s.hub, func(gameID string, err error) {
		s.logger.Warn("scoreboard refresh failed", "game_id", gameID, "error", err)
	})
	return s
}

// Close waits for background scoreboard refreshes.
func (s *TriviaService) Close() {
	s.refresher.wait()
}

// dispatch keeps derived state in line with a stored change and forwards the
// event.
func (s *TriviaService) dispatch(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.EventRoundDeleted:
		s.Evaluator.view.dropWhere(func(k sheetKey) bool { return k.roundID == event.RoundID })
	case domain.EventTeamRemoved:
		s.Evaluator.view.dropWhere(func(k sheetKey) bool { return k.teamID == event.TeamID })
	case domain.EventGameDeleted:
		s.Evaluator.view.dropWhere(func(sheetKey) bool { return true })
	}

	if event.GameID != "" {
		if err := s.Scores.Invalidate(ctx, event.GameID); err != nil {
			s.logger.Warn("scoreboard invalidation failed", "game_id", event.GameID, "error", err)
		}
		s.refresher.markDirty(event.GameID)
	}

	if s.external == nil {
		return nil
	}
	return s.external.Publish(ctx, event)
}

// CreateGame starts a new active game. It fails while another game is active.
func (s *TriviaService) CreateGame(ctx context.Context, name, description string) (domain.Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Game{}, domain.Errorf(domain.ErrInvalidInput, "game name is required")
	}

	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()

	if err := s.requireNoActiveGame(ctx, ""); err != nil {
		return domain.Game{}, err
	}
	now := s.now().UTC()
	game := domain.Game{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Date:        time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Status:      domain.GameActive,
		CreatedAt:   now,
	}
	if err := s.store.CreateGame(ctx, game); err != nil {
		return domain.Game{}, fmt.Errorf("create game: %w", err)
	}
	s.logger.Info("game created", "game_id", game.ID, "name", game.Name)
	s.emit(ctx, domain.Event{Type: domain.EventGameCreated, GameID: game.ID})
	return game, nil
}

func (s *TriviaService) ActiveGame(ctx context.Context) (domain.Game, error) {
	return s.store.ActiveGame(ctx)
}

func (s *TriviaService) Game(ctx context.Context, gameID string) (domain.Game, error) {
	return s.store.Game(ctx, gameID)
}

func (s *TriviaService) Games(ctx context.Context) ([]domain.Game, error) {
	return s.store.Games(ctx)
}

// CompleteGame ends an active game.
func (s *TriviaService) CompleteGame(ctx context.Context, gameID string) (domain.Game, error) {
	return s.transitionGame(ctx, gameID, domain.GameCompleted)
}

// ReactivateGame reopens a completed game if no other game is active.
func (s *TriviaService) ReactivateGame(ctx context.Context, gameID string) (domain.Game, error) {
	return s.transitionGame(ctx, gameID, domain.GameActive)
}

// ArchiveGame retires a completed game for good.
func (s *TriviaService) ArchiveGame(ctx context.Context, gameID string) (domain.Game, error) {
	return s.transitionGame(ctx, gameID, domain.GameArchived)
}

// DeleteGame removes a game with its rounds, questions, answers and
// memberships.
func (s *TriviaService) DeleteGame(ctx context.Context, gameID string) error {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()

	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGame(ctx, game.ID); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	s.logger.Info("game deleted", "game_id", game.ID, "name", game.Name)
	s.emit(ctx, domain.Event{Type: domain.EventGameDeleted, GameID: game.ID})
	return nil
}

func (s *TriviaService) transitionGame(ctx context.Context, gameID string, next domain.GameStatus) (domain.Game, error) {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()

	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if !game.Status.CanTransitionTo(next) {
		return domain.Game{}, domain.Errorf(domain.ErrInvalidTransition, "game %q cannot go from %s to %s", game.Name, game.Status, next)
	}
	if next == domain.GameActive {
		if err := s.requireNoActiveGame(ctx, game.ID); err != nil {
			return domain.Game{}, err
		}
	}
	if err := s.store.UpdateGameStatus(ctx, game.ID, next); err != nil {
		return domain.Game{}, fmt.Errorf("update game status: %w", err)
	}

	s.logger.Info("game status changed", "game_id", game.ID, "from", game.Status.String(), "to", next.String())
	game.Status = next
	s.emit(ctx, domain.Event{Type: domain.EventGameStatusChanged, GameID: game.ID})
	return game, nil
}

func (s *TriviaService) requireNoActiveGame(ctx context.Context, exceptID string) error {
	active, err := s.store.ActiveGame(ctx)
	switch {
	case errors.Is(err, domain.ErrNoActiveGame):
		return nil
	case err != nil:
		return err
	case active.ID == exceptID:
		return nil
	}
	return domain.Errorf(domain.ErrActiveGameExists, "%q", active.Name)
}

// RegisterTeam adds a team to the global team list.
func (s *TriviaService) RegisterTeam(ctx context.Context, name string, members int) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Team{}, domain.Errorf(domain.ErrInvalidInput, "team name is required")
	}
	if members < 1 {
		return domain.Team{}, domain.Errorf(domain.ErrInvalidInput, "a team needs at least one member")
	}
	team := domain.Team{ID: s.newID(), Name: name, MembersCount: members, CreatedAt: s.now().UTC()}
	if err := s.store.CreateTeam(ctx, team); err != nil {
		return domain.Team{}, fmt.Errorf("create team: %w", err)
	}
	s.logger.Info("team registered", "team_id", team.ID, "name", team.Name)
	return team, nil
}

func (s *TriviaService) Team(ctx context.Context, teamID string) (domain.Team, error) {
	return s.store.Team(ctx, teamID)
}

func (s *TriviaService) Teams(ctx context.Context) ([]domain.Team, error) {
	return s.store.Teams(ctx)
}

// GameTeams lists the teams playing a game.
func (s *TriviaService) GameTeams(ctx context.Context, gameID string) ([]domain.Team, error) {
	if _, err := s.store.Game(ctx, gameID); err != nil {
		return nil, err
	}
	return s.store.GameTeams(ctx, gameID)
}

// AvailableTeams lists registered teams that do not play the game yet.
func (s *TriviaService) AvailableTeams(ctx context.Context, gameID string) ([]domain.Team, error) {
	members, err := s.GameTeams(ctx, gameID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.Teams(ctx)
	if err != nil {
		return nil, err
	}
	joined := make(map[string]struct{}, len(members))
	for _, t := range members {
		joined[t.ID] = struct{}{}
	}
	available := make([]domain.Team, 0, len(all))
	for _, t := range all {
		if _, ok := joined[t.ID]; !ok {
			available = append(available, t)
		}
	}
	return available, nil
}

// AddTeamToGame makes a team a member of a game. Adding a member twice is a
// no-op.
func (s *TriviaService) AddTeamToGame(ctx context.Context, gameID, teamID string) error {
	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status == domain.GameArchived {
		return domain.Errorf(domain.ErrInvalidTransition, "game %q is archived", game.Name)
	}
	team, err := s.store.Team(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.store.AddTeamToGame(ctx, game.ID, team.ID); err != nil {
		return fmt.Errorf("add team to game: %w", err)
	}
	s.logger.Info("team joined game", "game_id", game.ID, "team_id", team.ID)
	s.emit(ctx, domain.Event{Type: domain.EventTeamJoined, GameID: game.ID, TeamID: team.ID})
	return nil
}

// RemoveTeam deletes a team together with its memberships and answers.
func (s *TriviaService) RemoveTeam(ctx context.Context, teamID string) error {
	team, err := s.store.Team(ctx, teamID)
	if err != nil {
		return err
	}
	gameIDs, err := s.teamGames(ctx, team.ID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTeam(ctx, team.ID); err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	s.logger.Info("team removed", "team_id", team.ID, "games", len(gameIDs))
	if len(gameIDs) == 0 {
		s.emit(ctx, domain.Event{Type: domain.EventTeamRemoved, TeamID: team.ID})
	}
	for _, gameID := range gameIDs {
		s.emit(ctx, domain.Event{Type: domain.EventTeamRemoved, GameID: gameID, TeamID: team.ID})
	}
	return nil
}

func (s *TriviaService) teamGames(ctx context.Context, teamID string) ([]string, error) {
	games, err := s.store.Games(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, g := range games {
		teams, err := s.store.GameTeams(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range teams {
			if t.ID == teamID {
				ids = append(ids, g.ID)
				break
			}
		}
	}
	return ids, nil
}

// CreateCategory adds a name to the category catalog.
func (s *TriviaService) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.Errorf(domain.ErrInvalidInput, "category name is required")
	}
	category := domain.Category{ID: s.newID(), Name: name}
	if err := s.store.CreateCategory(ctx, category); err != nil {
		return domain.Category{}, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

func (s *TriviaService) Categories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.store.Categories(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

// TeamView returns what a team needs to play: the active game, its current
// round with questions, whether the team already answered, and its total.
func (s *TriviaService) TeamView(ctx context.Context, teamID string) (domain.TeamView, error) {
	team, err := s.store.Team(ctx, teamID)
	if err != nil {
		return domain.TeamView{}, err
	}
	view := domain.TeamView{Team: team, Questions: []domain.Question{}, Total: decimal.Zero}

	game, err := s.store.ActiveGame(ctx)
	if errors.Is(err, domain.ErrNoActiveGame) {
		return view, nil
	}
	if err != nil {
		return domain.TeamView{}, err
	}
	view.Game = &game

	board, err := s.Scores.ScoreBoard(ctx, game.ID)
	if err != nil {
		return domain.TeamView{}, err
	}
	for _, standing := range board.Standings {
		if standing.TeamID == team.ID {
			view.Total = standing.Total
			break
		}
	}

	round, err := s.Rounds.CurrentRound(ctx, game.ID)
	if errors.Is(err, domain.ErrNoActiveRound) {
		return view, nil
	}
	if err != nil {
		return domain.TeamView{}, err
	}
	view.Round = &round
	if view.Questions, err = s.store.Questions(ctx, round.ID); err != nil {
		return domain.TeamView{}, err
	}
	if view.Submitted, err = s.Ledger.HasSubmitted(ctx, team.ID, round.ID); err != nil {
		return domain.TeamView{}, err
	}
	return view, nil
}

// Subscribe returns a channel that receives the game's scoreboard now and
// after every change. The caller must invoke cancel to avoid leaks.
func (s *TriviaService) Subscribe(ctx context.Context, gameID string) (<-chan domain.Scoreboard, func(), error) {
	board, err := s.Scores.ScoreBoard(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(gameID, board)
	return ch, cancel, nil
}
