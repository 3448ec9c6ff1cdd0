package app

import (
	"context"
	"sync"
	"time"

	"trivia-night-service/internal/domain"
)

const refreshTimeout = 10 * time.Second

// leaderboardHub fans scoreboards out to live subscribers per game.
type leaderboardHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Scoreboard]struct{}
}

func newLeaderboardHub() *leaderboardHub {
	return &leaderboardHub{subscribers: make(map[string]map[chan domain.Scoreboard]struct{})}
}

func (h *leaderboardHub) subscribe(gameID string, initial domain.Scoreboard) (<-chan domain.Scoreboard, func()) {
	ch := make(chan domain.Scoreboard, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[gameID]
	if !ok {
		subs = make(map[chan domain.Scoreboard]struct{})
		h.subscribers[gameID] = subs
	}
	subs[ch] = struct{}{}
	ch <- initial
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[gameID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, gameID)
		}
	}
	return ch, cancel
}

func (h *leaderboardHub) hasSubscribers(gameID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[gameID]) > 0
}

// broadcast never blocks: a subscriber that has not drained its buffer loses
// its oldest pending update.
func (h *leaderboardHub) broadcast(board domain.Scoreboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[board.GameID] {
		select {
		case ch <- board:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- board
		}
	}
}

// scoreboardRefresher recomputes a game's scoreboard in the background after
// a change. Changes arriving during a recompute coalesce into one more run.
type scoreboardRefresher struct {
	scores *ScoreAggregator
	hub    *leaderboardHub
	log    func(gameID string, err error)

	mu      sync.Mutex
	running map[string]bool
	pending map[string]bool
	wg      sync.WaitGroup
}

func newScoreboardRefresher(scores *ScoreAggregator, hub *leaderboardHub, log func(string, error)) *scoreboardRefresher {
	return &scoreboardRefresher{
		scores:  scores,
		hub:     hub,
		log:     log,
		running: make(map[string]bool),
		pending: make(map[string]bool),
	}
}

func (r *scoreboardRefresher) markDirty(gameID string) {
	if !r.hub.hasSubscribers(gameID) {
		return
	}
	r.mu.Lock()
	if r.running[gameID] {
		r.pending[gameID] = true
		r.mu.Unlock()
		return
	}
	r.running[gameID] = true
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(gameID)
}

func (r *scoreboardRefresher) run(gameID string) {
	defer r.wg.Done()
	for {
		r.refresh(gameID)

		r.mu.Lock()
		if !r.pending[gameID] {
			delete(r.running, gameID)
			r.mu.Unlock()
			return
		}
		delete(r.pending, gameID)
		r.mu.Unlock()
	}
}

func (r *scoreboardRefresher) refresh(gameID string) {
	if !r.hub.hasSubscribers(gameID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	board, err := r.scores.ScoreBoard(ctx, gameID)
	if err != nil {
		r.log(gameID, err)
		return
	}
	r.hub.broadcast(board)
}

// wait blocks until in-flight refreshes finish.
func (r *scoreboardRefresher) wait() {
	r.wg.Wait()
}
