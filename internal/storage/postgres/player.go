package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPlayerNotFound is returned when a player lookup matches no rows.
var ErrPlayerNotFound = errors.New("player not found")

// PlayerStats is a player's aggregate standing across all recorded games.
type PlayerStats struct {
	PlayerID    int64
	Name        string
	TotalGames  int
	TotalWins   int
	TotalLosses int
	HighScore   int
}

// WinRate returns the fraction of recorded games won, in [0, 1].
// A player with no games has a win rate of zero.
func (s PlayerStats) WinRate() float64 {
	if s.TotalGames == 0 {
		return 0
	}
	return float64(s.TotalWins) / float64(s.TotalGames)
}

func (s PlayerStats) String() string {
	return fmt.Sprintf("%s - %dW %dL (win rate: %.1f%%) | high score: %d",
		s.Name, s.TotalWins, s.TotalLosses, s.WinRate()*100, s.HighScore)
}

// GameRecord is one completed match as stored in the history table.
type GameRecord struct {
	GameID       int64
	Player1ID    int64
	Player2ID    int64
	Player1Name  string
	Player2Name  string
	Player1Score int
	Player2Score int
	WinnerID     int64
	PlayedAt     time.Time
}

func (g GameRecord) String() string {
	winner := g.Player1Name
	if g.WinnerID == g.Player2ID {
		winner = g.Player2Name
	}
	return fmt.Sprintf("[%s] %s(%d) vs %s(%d) - winner: %s",
		g.PlayedAt.Format("2006-01-02 15:04"),
		g.Player1Name, g.Player1Score,
		g.Player2Name, g.Player2Score,
		winner)
}

// PlayerRepository provides access to player and game history storage.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a repository backed by the given pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// UpsertPlayer ensures a player row exists for the given nickname and
// returns its id. An existing player keeps their accumulated statistics.
//
// Precondition: name must be a validated nickname.
// Postcondition: A players row with the given name exists and its id is
// returned.
func (r *PlayerRepository) UpsertPlayer(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO players (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET last_played = now()
		RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting player %q: %w", name, err)
	}
	return id, nil
}

// SaveGameResult records one completed match and updates both players'
// aggregate statistics in a single transaction. The winner is the player
// with the higher final score; player two wins ties.
//
// Precondition: Both player ids must reference existing players rows.
// Postcondition: Either the game record and both stat updates are
// committed, or none of them are.
func (r *PlayerRepository) SaveGameResult(ctx context.Context, player1ID, player2ID int64, score1, score2 int, duration time.Duration) error {
	winnerID := player2ID
	if score1 > score2 {
		winnerID = player1ID
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO game_records (player1_id, player2_id, player1_score, player2_score, winner_id, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		player1ID, player2ID, score1, score2, winnerID, int(duration.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("inserting game record: %w", err)
	}

	for _, p := range []struct {
		id    int64
		score int
	}{
		{player1ID, score1},
		{player2ID, score2},
	} {
		won := 0
		lost := 1
		if p.id == winnerID {
			won, lost = 1, 0
		}
		_, err = tx.Exec(ctx, `
			UPDATE players
			SET total_games = total_games + 1,
			    total_wins = total_wins + $2,
			    total_losses = total_losses + $3,
			    highest_score = GREATEST(highest_score, $4),
			    last_played = now()
			WHERE id = $1`,
			p.id, won, lost, p.score,
		)
		if err != nil {
			return fmt.Errorf("updating stats for player %d: %w", p.id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing game result: %w", err)
	}
	return nil
}

// GetStats returns the aggregate statistics for the named player.
//
// Postcondition: Returns ErrPlayerNotFound if no player has that name.
func (r *PlayerRepository) GetStats(ctx context.Context, name string) (PlayerStats, error) {
	var s PlayerStats
	err := r.db.QueryRow(ctx, `
		SELECT id, name, total_games, total_wins, total_losses, highest_score
		FROM players
		WHERE name = $1`,
		name,
	).Scan(&s.PlayerID, &s.Name, &s.TotalGames, &s.TotalWins, &s.TotalLosses, &s.HighScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlayerStats{}, ErrPlayerNotFound
	}
	if err != nil {
		return PlayerStats{}, fmt.Errorf("querying stats for %q: %w", name, err)
	}
	return s, nil
}

// Leaderboard returns up to limit players ranked by wins, then by
// highest score. Players who have never finished a game are excluded.
func (r *PlayerRepository) Leaderboard(ctx context.Context, limit int) ([]PlayerStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, total_games, total_wins, total_losses, highest_score
		FROM players
		WHERE total_games > 0
		ORDER BY total_wins DESC, highest_score DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	var stats []PlayerStats
	for rows.Next() {
		var s PlayerStats
		if err := rows.Scan(&s.PlayerID, &s.Name, &s.TotalGames, &s.TotalWins, &s.TotalLosses, &s.HighScore); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaderboard rows: %w", err)
	}
	return stats, nil
}

// RecentGames returns up to limit of the player's most recent games,
// newest first.
func (r *PlayerRepository) RecentGames(ctx context.Context, playerID int64, limit int) ([]GameRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT g.id, g.player1_id, g.player2_id, p1.name, p2.name,
		       g.player1_score, g.player2_score, g.winner_id, g.played_at
		FROM game_records g
		JOIN players p1 ON p1.id = g.player1_id
		JOIN players p2 ON p2.id = g.player2_id
		WHERE g.player1_id = $1 OR g.player2_id = $1
		ORDER BY g.played_at DESC
		LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent games for player %d: %w", playerID, err)
	}
	defer rows.Close()

	var games []GameRecord
	for rows.Next() {
		var g GameRecord
		if err := rows.Scan(&g.GameID, &g.Player1ID, &g.Player2ID, &g.Player1Name, &g.Player2Name,
			&g.Player1Score, &g.Player2Score, &g.WinnerID, &g.PlayedAt); err != nil {
			return nil, fmt.Errorf("scanning game record: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating game records: %w", err)
	}
	return games, nil
}
