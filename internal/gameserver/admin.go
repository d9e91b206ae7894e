package gameserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/runnerduel/internal/storage/postgres"
)

const leaderboardSize = 10

// Console reads admin commands from a terminal and serves stats queries
// against the store. It supports quit, stats <name>, and leaderboard.
type Console struct {
	server   Statser
	store    Store
	shutdown func()
	logger   *zap.Logger
}

// Statser reports live server counters for the stats display.
type Statser interface {
	RoomCount() int
	QueueDepth() int
}

// NewConsole creates an admin console. shutdown is invoked when the
// operator enters the quit command.
func NewConsole(server Statser, store Store, shutdown func(), logger *zap.Logger) *Console {
	return &Console{server: server, store: store, shutdown: shutdown, logger: logger}
}

// Run processes commands line by line until quit is entered, input is
// exhausted, or ctx is cancelled.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "commands: quit | stats <name> | leaderboard")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit":
			fmt.Fprintln(out, "shutting down")
			c.shutdown()
			return nil
		case "stats":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: stats <name>")
				continue
			}
			c.printStats(ctx, out, fields[1])
		case "leaderboard":
			c.printLeaderboard(ctx, out)
		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
	return scanner.Err()
}

func (c *Console) printStats(ctx context.Context, out io.Writer, name string) {
	stats, err := c.store.GetStats(ctx, name)
	if errors.Is(err, postgres.ErrPlayerNotFound) {
		fmt.Fprintf(out, "no player named %q\n", name)
		return
	}
	if err != nil {
		c.logger.Error("stats query failed", zap.String("player", name), zap.Error(err))
		fmt.Fprintln(out, "stats query failed")
		return
	}

	fmt.Fprintln(out, stats)
	fmt.Fprintf(out, "rooms active: %d, players queued: %d\n", c.server.RoomCount(), c.server.QueueDepth())

	games, err := c.store.RecentGames(ctx, stats.PlayerID, 5)
	if err != nil {
		c.logger.Error("recent games query failed", zap.String("player", name), zap.Error(err))
		return
	}
	for _, g := range games {
		fmt.Fprintf(out, "  %s\n", g)
	}
}

func (c *Console) printLeaderboard(ctx context.Context, out io.Writer) {
	stats, err := c.store.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		c.logger.Error("leaderboard query failed", zap.Error(err))
		fmt.Fprintln(out, "leaderboard query failed")
		return
	}
	if len(stats) == 0 {
		fmt.Fprintln(out, "no games recorded yet")
		return
	}
	for i, s := range stats {
		fmt.Fprintf(out, "%2d. %s\n", i+1, s)
	}
}
