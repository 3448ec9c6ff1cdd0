package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"trivia-night-service/internal/config"
)

func TestSeedDemoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{}
	cfg.Store.Driver = config.StoreMemory

	service, cleanup, err := buildService(ctx, cfg, newLogger(io.Discard, cfg))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	defer cleanup()

	for i := 0; i < 2; i++ {
		if err := seedDemo(ctx, service); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	games, err := service.Games(ctx)
	if err != nil {
		t.Fatalf("games: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("expected one demo game, got %d", len(games))
	}
	teams, err := service.GameTeams(ctx, games[0].ID)
	if err != nil {
		t.Fatalf("teams: %v", err)
	}
	rounds, err := service.Rounds.Rounds(ctx, games[0].ID)
	if err != nil {
		t.Fatalf("rounds: %v", err)
	}
	if len(teams) != 3 || len(rounds) != 2 {
		t.Fatalf("expected 3 teams and 2 rounds, got %d and %d", len(teams), len(rounds))
	}
}

func TestBuildServiceOnSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{}
	cfg.Store.Driver = config.StoreSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "trivia.db")

	service, cleanup, err := buildService(ctx, cfg, newLogger(io.Discard, cfg))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	defer cleanup()

	if err := seedDemo(ctx, service); err != nil {
		t.Fatalf("seed: %v", err)
	}
	game, err := service.ActiveGame(ctx)
	if err != nil {
		t.Fatalf("active game: %v", err)
	}
	board, err := service.Scores.ScoreBoard(ctx, game.ID)
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if len(board.Standings) != 3 {
		t.Fatalf("expected 3 standings, got %d", len(board.Standings))
	}
}

func TestMigrateRejectsMemoryStore(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "absent.yaml")})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "no database to migrate") {
		t.Fatalf("expected memory store to be rejected, got %v", err)
	}
}
