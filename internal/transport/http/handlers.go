package http

import (
	"errors"
	"net/http"

	"trivia-night-service/internal/app"
	"trivia-night-service/internal/domain"

	"github.com/go-chi/chi/v5"
)

type createGameRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type registerTeamRequest struct {
	Name         string `json:"name"`
	MembersCount int    `json:"membersCount"`
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

type createRoundRequest struct {
	Category  string                 `json:"category"`
	Questions []domain.QuestionDraft `json:"questions"`
}

type roundCreatedResponse struct {
	Round     domain.Round      `json:"round"`
	Questions []domain.Question `json:"questions"`
}

type setCategoryRequest struct {
	Category string `json:"category"`
}

type editQuestionsRequest struct {
	// Questions maps question id to its new text.
	Questions map[string]string `json:"questions"`
}

type submitAnswersRequest struct {
	TeamID  string            `json:"teamId"`
	Answers map[string]string `json:"answers"`
}

type evaluateRequest struct {
	Points float64 `json:"points"`
}

type quickGradeRequest struct {
	Correct bool `json:"correct"`
}

// games

func (a *API) listGames(w http.ResponseWriter, r *http.Request) {
	games, err := a.service.Games(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, games)
}

func (a *API) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if !a.decode(w, r, &req) {
		return
	}
	game, err := a.service.CreateGame(r.Context(), req.Name, req.Description)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, game)
}

func (a *API) activeGame(w http.ResponseWriter, r *http.Request) {
	game, err := a.service.ActiveGame(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, game)
}

func (a *API) getGame(w http.ResponseWriter, r *http.Request) {
	game, err := a.service.Game(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, game)
}

func (a *API) deleteGame(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteGame(r.Context(), chi.URLParam(r, "gameID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) completeGame(w http.ResponseWriter, r *http.Request) {
	game, err := a.service.CompleteGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, game)
}

func (a *API) reactivateGame(w http.ResponseWriter, r *http.Request) {
	game, err := a.service.ReactivateGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, game)
}

func (a *API) archiveGame(w http.ResponseWriter, r *http.Request) {
	game, err := a.service.ArchiveGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, game)
}

func (a *API) gameTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.service.GameTeams(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, teams)
}

func (a *API) availableTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.service.AvailableTeams(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, teams)
}

func (a *API) addTeamToGame(w http.ResponseWriter, r *http.Request) {
	if err := a.service.AddTeamToGame(r.Context(), chi.URLParam(r, "gameID"), chi.URLParam(r, "teamID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) scoreboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.service.Scores.ScoreBoard(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, board)
}

// teams and categories

func (a *API) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.service.Teams(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, teams)
}

func (a *API) registerTeam(w http.ResponseWriter, r *http.Request) {
	var req registerTeamRequest
	if !a.decode(w, r, &req) {
		return
	}
	team, err := a.service.RegisterTeam(r.Context(), req.Name, req.MembersCount)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, team)
}

func (a *API) removeTeam(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RemoveTeam(r.Context(), chi.URLParam(r, "teamID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) teamView(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.TeamView(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.Categories(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, categories)
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if !a.decode(w, r, &req) {
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, category)
}

// rounds

func (a *API) listRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := a.service.Rounds.Rounds(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rounds)
}

func (a *API) createRound(w http.ResponseWriter, r *http.Request) {
	var req createRoundRequest
	if !a.decode(w, r, &req) {
		return
	}
	round, questions, err := a.service.Rounds.CreateRound(r.Context(), chi.URLParam(r, "gameID"), req.Category, req.Questions)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, roundCreatedResponse{Round: round, Questions: questions})
}

func (a *API) currentRound(w http.ResponseWriter, r *http.Request) {
	round, err := a.service.Rounds.CurrentRound(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, round)
}

func (a *API) roundDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.Rounds.Detail(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, detail)
}

func (a *API) deleteRound(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Rounds.Delete(r.Context(), chi.URLParam(r, "roundID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) startRound(w http.ResponseWriter, r *http.Request) {
	round, err := a.service.Rounds.Start(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, round)
}

func (a *API) completeRound(w http.ResponseWriter, r *http.Request) {
	round, err := a.service.Rounds.Complete(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, round)
}

func (a *API) restartRound(w http.ResponseWriter, r *http.Request) {
	round, err := a.service.Rounds.Restart(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, round)
}

func (a *API) setRoundCategory(w http.ResponseWriter, r *http.Request) {
	var req setCategoryRequest
	if !a.decode(w, r, &req) {
		return
	}
	round, err := a.service.Rounds.SetCategory(r.Context(), chi.URLParam(r, "roundID"), req.Category)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, round)
}

func (a *API) editQuestions(w http.ResponseWriter, r *http.Request) {
	var req editQuestionsRequest
	if !a.decode(w, r, &req) {
		return
	}
	questions, err := a.service.Rounds.EditQuestions(r.Context(), chi.URLParam(r, "roundID"), req.Questions)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, questions)
}

func (a *API) roundProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := a.service.Ledger.CompletionStatus(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, progress)
}

// answers

func (a *API) submitAnswers(w http.ResponseWriter, r *http.Request) {
	var req submitAnswersRequest
	if !a.decode(w, r, &req) {
		return
	}
	answers, err := a.service.Ledger.Submit(r.Context(), req.TeamID, chi.URLParam(r, "roundID"), req.Answers)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, answers)
}

func (a *API) gradingSheet(w http.ResponseWriter, r *http.Request) {
	answers, err := a.service.Evaluator.GradingSheet(r.Context(), chi.URLParam(r, "teamID"), chi.URLParam(r, "roundID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, answers)
}

func (a *API) evaluateAnswer(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !a.decode(w, r, &req) {
		return
	}
	grade, err := a.service.Evaluator.Evaluate(r.Context(), chi.URLParam(r, "answerID"), req.Points)
	a.writeGrade(w, r, grade, err)
}

func (a *API) quickGrade(w http.ResponseWriter, r *http.Request) {
	var req quickGradeRequest
	if !a.decode(w, r, &req) {
		return
	}
	grade, err := a.service.Evaluator.QuickGrade(r.Context(), chi.URLParam(r, "answerID"), req.Correct)
	a.writeGrade(w, r, grade, err)
}

// writeGrade keeps the unconfirmed grade in the body when the store
// rejected the write.
func (a *API) writeGrade(w http.ResponseWriter, r *http.Request, grade app.Grade, err error) {
	switch {
	case errors.Is(err, domain.ErrStaleWrite):
		a.writeErrorData(w, r, err, grade)
	case err != nil:
		a.writeError(w, r, err)
	default:
		a.writeJSON(w, http.StatusOK, grade)
	}
}
