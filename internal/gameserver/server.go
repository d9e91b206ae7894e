// Package gameserver wires connections, sessions, matchmaking and rooms
// into a running game service.
package gameserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/runnerduel/internal/config"
	"github.com/cory-johannsen/runnerduel/internal/game/match"
	"github.com/cory-johannsen/runnerduel/internal/game/session"
	"github.com/cory-johannsen/runnerduel/internal/protocol"
	"github.com/cory-johannsen/runnerduel/internal/storage/postgres"
)

// Store aggregates the persistence operations the server depends on.
type Store interface {
	UpsertPlayer(ctx context.Context, name string) (int64, error)
	SaveGameResult(ctx context.Context, player1ID, player2ID int64, score1, score2 int, duration time.Duration) error
	GetStats(ctx context.Context, name string) (postgres.PlayerStats, error)
	Leaderboard(ctx context.Context, limit int) ([]postgres.PlayerStats, error)
	RecentGames(ctx context.Context, playerID int64, limit int) ([]postgres.GameRecord, error)
}

// Server owns the matchmaking queue, the active room registry and the
// per-connection session lifecycle. It handles connections from any
// frontend that can produce a protocol.FrameConn.
type Server struct {
	cfg        config.Config
	store      Store
	logger     *zap.Logger
	matchmaker *match.Matchmaker
	mapGen     *match.MapGenerator
	names      *nicknameRegistry

	mu    sync.Mutex
	rooms map[string]*match.Room

	quitOnce sync.Once
	quit     chan struct{}
}

// NewServer creates a server with an empty queue and room registry.
//
// Precondition: store must be non-nil; cfg must have passed Validate.
func NewServer(cfg config.Config, store Store, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		matchmaker: match.NewMatchmaker(logger),
		mapGen:     match.NewMapGenerator(cfg.Game, match.NewCryptoSource()),
		names:      newNicknameRegistry(),
		rooms:      make(map[string]*match.Room),
		quit:       make(chan struct{}),
	}
}

// HandleConn runs a session for one client connection. It blocks until
// the client disconnects or ctx is cancelled.
//
// Postcondition: The session has been fully torn down: dequeued, detached
// from any room, and its nickname released.
func (s *Server) HandleConn(ctx context.Context, conn protocol.FrameConn) {
	sess := session.New(conn, s.matchmaker, s.store, s.names, s.logger)
	sess.Run(ctx)
}

// RunMatchLoop polls the queue at the configured interval and starts a
// room for every pair it can form. It blocks until Stop is called.
func (s *Server) RunMatchLoop() error {
	ticker := time.NewTicker(s.cfg.Server.MatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return nil
		case <-ticker.C:
			s.matchOnce()
		}
	}
}

// matchOnce drains the queue pairwise, starting one room per pair.
func (s *Server) matchOnce() {
	for {
		p1, p2, ok := s.matchmaker.TryMatch()
		if !ok {
			return
		}

		room := match.NewRoom(p1, p2, s.mapGen, s.store, s.logger, s.removeRoom)

		s.mu.Lock()
		s.rooms[room.ID()] = room
		active := len(s.rooms)
		s.mu.Unlock()

		s.logger.Info("room created",
			zap.String("room_id", room.ID()),
			zap.String("player1", p1.Nickname()),
			zap.String("player2", p2.Nickname()),
			zap.Int("active_rooms", active))

		go room.Start()
	}
}

// removeRoom drops a closed room from the registry. Rooms call this
// exactly once as part of closing.
func (s *Server) removeRoom(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	active := len(s.rooms)
	s.mu.Unlock()

	s.logger.Info("room closed",
		zap.String("room_id", roomID),
		zap.Int("active_rooms", active))
}

// Stop terminates the match loop. Safe to call more than once.
func (s *Server) Stop() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// RoomCount returns the number of rooms that are not yet closed.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// QueueDepth returns the number of sessions waiting for a match.
func (s *Server) QueueDepth() int {
	return s.matchmaker.Waiting()
}

// nicknameRegistry tracks which nicknames are claimed by connected
// sessions. A nickname can be re-claimed once its session disconnects.
type nicknameRegistry struct {
	mu    sync.Mutex
	taken map[string]struct{}
}

func newNicknameRegistry() *nicknameRegistry {
	return &nicknameRegistry{taken: make(map[string]struct{})}
}

// Claim reserves the nickname. Returns false if it is already held.
func (r *nicknameRegistry) Claim(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.taken[name]; exists {
		return false
	}
	r.taken[name] = struct{}{}
	return true
}

// Release frees the nickname for reuse. Releasing an unclaimed name is
// a no-op.
func (r *nicknameRegistry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.taken, name)
}
