package domain

import (
	"errors"
	"fmt"
)

// Kind groups errors by how callers are expected to react to them.
type Kind string

const (
	KindInvalidTransition   Kind = "invalid_transition"
	KindEditNotAllowed      Kind = "edit_not_allowed"
	KindDuplicateSubmission Kind = "duplicate_submission"
	KindNotFound            Kind = "not_found"
	KindStaleWrite          Kind = "stale_write"
	KindValidation          Kind = "validation"
)

// Error is the domain error type. Code identifies the concrete condition,
// Kind the category it belongs to.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code when the target carries one, otherwise by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Kind == t.Kind
}

// Errorf derives an error from a sentinel with additional detail.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    base.Kind,
		Code:    base.Code,
		Message: base.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// Wrap derives an error from a sentinel that keeps cause in the chain.
func Wrap(base *Error, cause error) *Error {
	return &Error{
		Kind:    base.Kind,
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// KindOf returns the kind of the first domain error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

var (
	// ErrInvalidTransition matches any lifecycle rule violation.
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	// ErrEditNotAllowed matches any edit attempted outside the waiting state.
	ErrEditNotAllowed = &Error{Kind: KindEditNotAllowed, Message: "edit not allowed"}
	// ErrNotFound matches any missing record.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrValidation matches any rejected input.
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}

	// ErrDuplicateSubmission is returned when a team already answered a round.
	ErrDuplicateSubmission = &Error{Kind: KindDuplicateSubmission, Code: "DUPLICATE_SUBMISSION", Message: "answers already submitted for this round"}
	// ErrStaleWrite is returned when a grade was shown optimistically but the store rejected it.
	ErrStaleWrite = &Error{Kind: KindStaleWrite, Code: "STALE_WRITE", Message: "evaluation was not stored"}

	ErrGameNotFound     = &Error{Kind: KindNotFound, Code: "GAME_NOT_FOUND", Message: "game not found"}
	ErrNoActiveGame     = &Error{Kind: KindNotFound, Code: "NO_ACTIVE_GAME", Message: "no active game"}
	ErrTeamNotFound     = &Error{Kind: KindNotFound, Code: "TEAM_NOT_FOUND", Message: "team not found"}
	ErrTeamNotInGame    = &Error{Kind: KindNotFound, Code: "TEAM_NOT_IN_GAME", Message: "team does not play in this game"}
	ErrRoundNotFound    = &Error{Kind: KindNotFound, Code: "ROUND_NOT_FOUND", Message: "round not found"}
	ErrNoActiveRound    = &Error{Kind: KindNotFound, Code: "NO_ACTIVE_ROUND", Message: "no active round"}
	ErrQuestionNotFound = &Error{Kind: KindNotFound, Code: "QUESTION_NOT_FOUND", Message: "question not found"}
	ErrAnswerNotFound   = &Error{Kind: KindNotFound, Code: "ANSWER_NOT_FOUND", Message: "answer not found"}

	ErrActiveGameExists     = &Error{Kind: KindInvalidTransition, Code: "ACTIVE_GAME_EXISTS", Message: "another game is already active"}
	ErrGameNotActive        = &Error{Kind: KindInvalidTransition, Code: "GAME_NOT_ACTIVE", Message: "game is not active"}
	ErrRoundNotActive       = &Error{Kind: KindInvalidTransition, Code: "ROUND_NOT_ACTIVE", Message: "round is not active"}
	ErrRestartNotAllowed    = &Error{Kind: KindInvalidTransition, Code: "RESTART_NOT_ALLOWED", Message: "round cannot be restarted"}
	ErrEvaluationNotAllowed = &Error{Kind: KindInvalidTransition, Code: "EVALUATION_NOT_ALLOWED", Message: "round is not open for evaluation"}
	ErrRoundNotEditable     = &Error{Kind: KindEditNotAllowed, Code: "ROUND_NOT_EDITABLE", Message: "round can only be changed while waiting"}

	ErrInvalidPoints = &Error{Kind: KindValidation, Code: "INVALID_POINTS", Message: "invalid points"}
	ErrInvalidInput  = &Error{Kind: KindValidation, Code: "INVALID_INPUT", Message: "invalid input"}
)
