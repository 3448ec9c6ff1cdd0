package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/google/uuid"
)

// core carries the dependencies shared by every component of the service.
type core struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	events EventPublisher
	// games serialises round state changes and the writes that depend on a
	// round's state within one game.
	games *keyedMutex
}

func newCore(store Store, opts Options) core {
	c := core{
		store:  store,
		logger: opts.Logger,
		now:    opts.Clock,
		newID:  opts.IDs,
		events: opts.Publisher,
		games:  newKeyedMutex(),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// lockRound takes the lock of the round's game and reads the round again
// under it.
func (c core) lockRound(ctx context.Context, roundID string) (domain.Round, func(), error) {
	round, err := c.store.Round(ctx, roundID)
	if err != nil {
		return domain.Round{}, nil, err
	}
	unlock := c.games.Lock(round.GameID)
	round, err = c.store.Round(ctx, roundID)
	if err != nil {
		unlock()
		return domain.Round{}, nil, err
	}
	return round, unlock, nil
}

// emit publishes an event after the state change is stored. Publishing
// failures never undo the change.
func (c core) emit(ctx context.Context, event domain.Event) {
	if c.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = c.now().UTC()
	}
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn("publish event failed", "type", event.Type, "game_id", event.GameID, "error", err)
	}
}

// FanoutPublisher delivers each event to every publisher in order.
type FanoutPublisher []EventPublisher

func (f FanoutPublisher) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
