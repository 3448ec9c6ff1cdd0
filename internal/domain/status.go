package domain

import "fmt"

// GameStatus is the lifecycle state of a game.
type GameStatus int

const (
	GameActive GameStatus = iota + 1
	GameCompleted
	GameArchived
)

func (s GameStatus) String() string {
	switch s {
	case GameActive:
		return "active"
	case GameCompleted:
		return "completed"
	case GameArchived:
		return "archived"
	default:
		return fmt.Sprintf("GameStatus(%d)", int(s))
	}
}

// ParseGameStatus converts the stored representation back into a status.
func ParseGameStatus(raw string) (GameStatus, error) {
	switch raw {
	case "active":
		return GameActive, nil
	case "completed":
		return GameCompleted, nil
	case "archived":
		return GameArchived, nil
	default:
		return 0, Errorf(ErrInvalidInput, "unknown game status %q", raw)
	}
}

func (s GameStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *GameStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseGameStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransitionTo reports whether an operator may move a game from s to next.
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	switch s {
	case GameActive:
		return next == GameCompleted
	case GameCompleted:
		return next == GameActive || next == GameArchived
	case GameArchived:
		return false
	default:
		return false
	}
}

// RoundStatus is the lifecycle state of a round.
type RoundStatus int

const (
	RoundWaiting RoundStatus = iota + 1
	RoundActive
	RoundCompleted
)

func (s RoundStatus) String() string {
	switch s {
	case RoundWaiting:
		return "waiting"
	case RoundActive:
		return "active"
	case RoundCompleted:
		return "completed"
	default:
		return fmt.Sprintf("RoundStatus(%d)", int(s))
	}
}

// ParseRoundStatus converts the stored representation back into a status.
func ParseRoundStatus(raw string) (RoundStatus, error) {
	switch raw {
	case "waiting":
		return RoundWaiting, nil
	case "active":
		return RoundActive, nil
	case "completed":
		return RoundCompleted, nil
	default:
		return 0, Errorf(ErrInvalidInput, "unknown round status %q", raw)
	}
}

func (s RoundStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RoundStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRoundStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Editable reports whether questions and category may still change.
func (s RoundStatus) Editable() bool {
	return s == RoundWaiting
}

// Gradable reports whether answers of a round in this state may be evaluated.
func (s RoundStatus) Gradable() bool {
	switch s {
	case RoundActive, RoundCompleted:
		return true
	case RoundWaiting:
		return false
	default:
		return false
	}
}
