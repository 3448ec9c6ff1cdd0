package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Store keeps every record in process memory. Each method holds the store
// lock for its whole duration, so every call is atomic.
type Store struct {
	mu sync.RWMutex

	games      map[string]domain.Game
	teams      map[string]domain.Team
	members    map[string]map[string]struct{} // game id -> team ids
	categories map[string]domain.Category
	rounds     map[string]domain.Round
	questions  map[string]domain.Question
	answers    map[string]domain.Answer
	answered   map[answerKey]string // (team, question) -> answer id
}

type answerKey struct {
	teamID     string
	questionID string
}

func NewStore() *Store {
	return &Store{
		games:      make(map[string]domain.Game),
		teams:      make(map[string]domain.Team),
		members:    make(map[string]map[string]struct{}),
		categories: make(map[string]domain.Category),
		rounds:     make(map[string]domain.Round),
		questions:  make(map[string]domain.Question),
		answers:    make(map[string]domain.Answer),
		answered:   make(map[answerKey]string),
	}
}

func (s *Store) ActiveGame(_ context.Context) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.games {
		if g.Status == domain.GameActive {
			return g, nil
		}
	}
	return domain.Game{}, domain.ErrNoActiveGame
}

func (s *Store) Game(_ context.Context, gameID string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.Errorf(domain.ErrGameNotFound, "%s", gameID)
	}
	return g, nil
}

// Games lists games newest first.
func (s *Store) Games(_ context.Context) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	games := make([]domain.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool {
		if !games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].CreatedAt.After(games[j].CreatedAt)
		}
		return games[i].ID < games[j].ID
	})
	return games, nil
}

func (s *Store) CreateGame(_ context.Context, game domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game.Status == domain.GameActive {
		for _, g := range s.games {
			if g.Status == domain.GameActive {
				return domain.Errorf(domain.ErrActiveGameExists, "%q", g.Name)
			}
		}
	}
	s.games[game.ID] = game
	return nil
}

func (s *Store) UpdateGameStatus(_ context.Context, gameID string, status domain.GameStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return domain.Errorf(domain.ErrGameNotFound, "%s", gameID)
	}
	g.Status = status
	s.games[gameID] = g
	return nil
}

func (s *Store) DeleteGame(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return domain.Errorf(domain.ErrGameNotFound, "%s", gameID)
	}
	for id, r := range s.rounds {
		if r.GameID == gameID {
			s.deleteRoundLocked(id)
		}
	}
	delete(s.members, gameID)
	delete(s.games, gameID)
	return nil
}

func (s *Store) Team(_ context.Context, teamID string) (domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[teamID]
	if !ok {
		return domain.Team{}, domain.Errorf(domain.ErrTeamNotFound, "%s", teamID)
	}
	return t, nil
}

func (s *Store) Teams(_ context.Context) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]domain.Team, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, t)
	}
	sortTeams(teams)
	return teams, nil
}

func (s *Store) GameTeams(_ context.Context, gameID string) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.members[gameID]
	teams := make([]domain.Team, 0, len(ids))
	for id := range ids {
		if t, ok := s.teams[id]; ok {
			teams = append(teams, t)
		}
	}
	sortTeams(teams)
	return teams, nil
}

func (s *Store) CreateTeam(_ context.Context, team domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.ID] = team
	return nil
}

func (s *Store) AddTeamToGame(_ context.Context, gameID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return domain.Errorf(domain.ErrGameNotFound, "%s", gameID)
	}
	if _, ok := s.teams[teamID]; !ok {
		return domain.Errorf(domain.ErrTeamNotFound, "%s", teamID)
	}
	ids, ok := s.members[gameID]
	if !ok {
		ids = make(map[string]struct{})
		s.members[gameID] = ids
	}
	ids[teamID] = struct{}{}
	return nil
}

func (s *Store) DeleteTeam(_ context.Context, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return domain.Errorf(domain.ErrTeamNotFound, "%s", teamID)
	}
	for _, ids := range s.members {
		delete(ids, teamID)
	}
	for id, a := range s.answers {
		if a.TeamID == teamID {
			delete(s.answered, answerKey{teamID: a.TeamID, questionID: a.QuestionID})
			delete(s.answers, id)
		}
	}
	delete(s.teams, teamID)
	return nil
}

func (s *Store) Categories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Name == category.Name {
			return domain.Errorf(domain.ErrInvalidInput, "category %q already exists", category.Name)
		}
	}
	s.categories[category.ID] = category
	return nil
}

func (s *Store) Round(_ context.Context, roundID string) (domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return domain.Round{}, domain.Errorf(domain.ErrRoundNotFound, "%s", roundID)
	}
	return r, nil
}

func (s *Store) Rounds(_ context.Context, gameID string) ([]domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rounds := make([]domain.Round, 0)
	for _, r := range s.rounds {
		if r.GameID == gameID {
			rounds = append(rounds, r)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Number < rounds[j].Number })
	return rounds, nil
}

func (s *Store) CreateRound(_ context.Context, round domain.Round, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[round.GameID]; !ok {
		return domain.Errorf(domain.ErrGameNotFound, "%s", round.GameID)
	}
	for _, r := range s.rounds {
		if r.GameID == round.GameID && r.Number == round.Number {
			return domain.Errorf(domain.ErrInvalidInput, "round %d already exists", round.Number)
		}
	}
	s.rounds[round.ID] = round
	for _, q := range questions {
		s.questions[q.ID] = q
	}
	return nil
}

func (s *Store) UpdateRoundStatus(_ context.Context, roundID string, status domain.RoundStatus, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return domain.Errorf(domain.ErrRoundNotFound, "%s", roundID)
	}
	if status == domain.RoundActive {
		for _, other := range s.rounds {
			if other.GameID == r.GameID && other.ID != r.ID && other.Status == domain.RoundActive {
				return domain.Errorf(domain.ErrInvalidTransition, "round %d is already active", other.Number)
			}
		}
	}
	r.Status = status
	r.CompletedAt = completedAt
	s.rounds[roundID] = r
	return nil
}

// PromoteRound demotes the game's active rounds and activates roundID in one
// step.
func (s *Store) PromoteRound(_ context.Context, gameID, roundID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.rounds[roundID]
	if !ok || target.GameID != gameID {
		return nil, domain.Errorf(domain.ErrRoundNotFound, "%s", roundID)
	}
	var demoted []string
	for id, r := range s.rounds {
		if r.GameID != gameID || id == roundID || r.Status != domain.RoundActive {
			continue
		}
		r.Status = domain.RoundWaiting
		r.CompletedAt = nil
		s.rounds[id] = r
		demoted = append(demoted, id)
	}
	target.Status = domain.RoundActive
	target.CompletedAt = nil
	s.rounds[roundID] = target
	sort.Strings(demoted)
	return demoted, nil
}

func (s *Store) UpdateRoundCategory(_ context.Context, roundID, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return domain.Errorf(domain.ErrRoundNotFound, "%s", roundID)
	}
	r.Category = category
	s.rounds[roundID] = r
	return nil
}

func (s *Store) DeleteRound(_ context.Context, roundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[roundID]; !ok {
		return domain.Errorf(domain.ErrRoundNotFound, "%s", roundID)
	}
	s.deleteRoundLocked(roundID)
	return nil
}

func (s *Store) deleteRoundLocked(roundID string) {
	for id, a := range s.answers {
		if a.RoundID == roundID {
			delete(s.answered, answerKey{teamID: a.TeamID, questionID: a.QuestionID})
			delete(s.answers, id)
		}
	}
	for id, q := range s.questions {
		if q.RoundID == roundID {
			delete(s.questions, id)
		}
	}
	delete(s.rounds, roundID)
}

func (s *Store) Questions(_ context.Context, roundID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.RoundID == roundID {
			questions = append(questions, q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Number < questions[j].Number })
	return questions, nil
}

func (s *Store) UpdateQuestionText(_ context.Context, questionID, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return domain.Errorf(domain.ErrQuestionNotFound, "%s", questionID)
	}
	q.Text = text
	q.UpdatedAt = &at
	s.questions[questionID] = q
	return nil
}

func (s *Store) Answer(_ context.Context, answerID string) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[answerID]
	if !ok {
		return domain.Answer{}, domain.Errorf(domain.ErrAnswerNotFound, "%s", answerID)
	}
	return a, nil
}

func (s *Store) Answers(_ context.Context, filter domain.AnswerFilter) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var inRounds map[string]struct{}
	if len(filter.RoundIDs) > 0 {
		inRounds = make(map[string]struct{}, len(filter.RoundIDs))
		for _, id := range filter.RoundIDs {
			inRounds[id] = struct{}{}
		}
	}
	answers := make([]domain.Answer, 0)
	for _, a := range s.answers {
		if filter.TeamID != "" && a.TeamID != filter.TeamID {
			continue
		}
		if filter.RoundID != "" && a.RoundID != filter.RoundID {
			continue
		}
		if inRounds != nil {
			if _, ok := inRounds[a.RoundID]; !ok {
				continue
			}
		}
		if filter.Evaluated != nil && a.Evaluated != *filter.Evaluated {
			continue
		}
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool {
		if answers[i].TeamID != answers[j].TeamID {
			return answers[i].TeamID < answers[j].TeamID
		}
		if answers[i].RoundID != answers[j].RoundID {
			return answers[i].RoundID < answers[j].RoundID
		}
		return answers[i].QuestionNumber < answers[j].QuestionNumber
	})
	return answers, nil
}

// CreateAnswers stores the whole batch or nothing.
func (s *Store) CreateAnswers(_ context.Context, batch []domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[answerKey]struct{}, len(batch))
	for _, a := range batch {
		key := answerKey{teamID: a.TeamID, questionID: a.QuestionID}
		if _, ok := s.answered[key]; ok {
			return domain.ErrDuplicateSubmission
		}
		if _, ok := seen[key]; ok {
			return domain.ErrDuplicateSubmission
		}
		if _, ok := s.questions[a.QuestionID]; !ok {
			return domain.Errorf(domain.ErrQuestionNotFound, "%s", a.QuestionID)
		}
		if _, ok := s.teams[a.TeamID]; !ok {
			return domain.Errorf(domain.ErrTeamNotFound, "%s", a.TeamID)
		}
		seen[key] = struct{}{}
	}
	for _, a := range batch {
		s.answers[a.ID] = a
		s.answered[answerKey{teamID: a.TeamID, questionID: a.QuestionID}] = a.ID
	}
	return nil
}

func (s *Store) UpdateAnswer(_ context.Context, answerID string, points decimal.NullDecimal, evaluated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[answerID]
	if !ok {
		return domain.Errorf(domain.ErrAnswerNotFound, "%s", answerID)
	}
	a.Points = points
	a.Evaluated = evaluated
	s.answers[answerID] = a
	return nil
}

func sortTeams(teams []domain.Team) {
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].Name != teams[j].Name {
			return teams[i].Name < teams[j].Name
		}
		return teams[i].ID < teams[j].ID
	})
}
