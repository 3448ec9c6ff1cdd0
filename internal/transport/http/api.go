package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"trivia-night-service/internal/app"
	"trivia-night-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// API exposes the trivia service over JSON.
type API struct {
	service *app.TriviaService
	logger  *slog.Logger
}

func NewAPI(service *app.TriviaService, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &API{service: service, logger: logger}
}

// NewRouter mounts the REST routes, the health probe and the leaderboard
// websocket on one chi router.
func NewRouter(service *app.TriviaService, logger *slog.Logger) http.Handler {
	api := NewAPI(service, logger)
	ws := NewWSHandler(service, api.logger)

	mux := chi.NewRouter()
	mux.Use(cors.AllowAll().Handler)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Get("/ws", ws.ServeWS)

	mux.Route("/api", func(r chi.Router) {
		r.Route("/games", func(r chi.Router) {
			r.Get("/", api.listGames)
			r.Post("/", api.createGame)
			r.Get("/active", api.activeGame)
			r.Route("/{gameID}", func(r chi.Router) {
				r.Get("/", api.getGame)
				r.Delete("/", api.deleteGame)
				r.Post("/complete", api.completeGame)
				r.Post("/reactivate", api.reactivateGame)
				r.Post("/archive", api.archiveGame)
				r.Get("/teams", api.gameTeams)
				r.Get("/teams/available", api.availableTeams)
				r.Put("/teams/{teamID}", api.addTeamToGame)
				r.Get("/rounds", api.listRounds)
				r.Post("/rounds", api.createRound)
				r.Get("/rounds/current", api.currentRound)
				r.Get("/scoreboard", api.scoreboard)
			})
		})
		r.Route("/teams", func(r chi.Router) {
			r.Get("/", api.listTeams)
			r.Post("/", api.registerTeam)
			r.Delete("/{teamID}", api.removeTeam)
			r.Get("/{teamID}/view", api.teamView)
		})
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", api.listCategories)
			r.Post("/", api.createCategory)
		})
		r.Route("/rounds/{roundID}", func(r chi.Router) {
			r.Get("/", api.roundDetail)
			r.Delete("/", api.deleteRound)
			r.Post("/start", api.startRound)
			r.Post("/complete", api.completeRound)
			r.Post("/restart", api.restartRound)
			r.Put("/category", api.setRoundCategory)
			r.Put("/questions", api.editQuestions)
			r.Get("/progress", api.roundProgress)
			r.Post("/submissions", api.submitAnswers)
			r.Get("/teams/{teamID}/answers", api.gradingSheet)
		})
		r.Route("/answers/{answerID}", func(r chi.Router) {
			r.Put("/points", api.evaluateAnswer)
			r.Post("/quick-grade", api.quickGrade)
		})
	})
	return mux
}

type jsonResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(jsonResponse{Data: data}); err != nil {
		a.logger.Warn("encode response", "err", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	a.writeErrorData(w, r, err, nil)
}

// writeErrorData is writeError with a partial result attached.
func (a *API) writeErrorData(w http.ResponseWriter, r *http.Request, err error, data any) {
	status := statusFor(err)
	body := jsonResponse{Error: true, Data: data, Message: err.Error()}
	var derr *domain.Error
	if errors.As(err, &derr) {
		body.Code = derr.Code
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps domain error kinds onto HTTP status codes.
func statusFor(err error) int {
	kind, ok := domain.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInvalidTransition, domain.KindEditNotAllowed, domain.KindDuplicateSubmission:
		return http.StatusConflict
	case domain.KindStaleWrite:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "decode body: %v", err))
		return false
	}
	return true
}
