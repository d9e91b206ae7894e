package match

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/runnerduel/internal/game/session"
	"github.com/cory-johannsen/runnerduel/internal/protocol"
)

// roomState is a room's lifecycle position. Transitions only move forward:
// Created -> Starting -> Active -> Ending -> Closed, with early exits
// straight to Closed when the match never reached Active.
type roomState int

const (
	roomCreated roomState = iota
	roomStarting
	roomActive
	roomEnding
	roomClosed
)

// recordTimeout bounds the persistence call made when a match ends.
const recordTimeout = 5 * time.Second

// Recorder persists a finished match. Implementations must tolerate being
// called from room goroutines; errors are logged by the room, never
// propagated into the match flow.
type Recorder interface {
	SaveGameResult(ctx context.Context, player1ID, player2ID int64, score1, score2 int, duration time.Duration) error
}

// Room owns a matched pair of sessions end to end: it announces the match,
// ships both players the identical obstacle map, relays position and death
// events between them, and records the outcome.
//
// Invariant: exactly one of ReportDeath or PlayerDisconnected drives the
// room out of Active; once Closed, every call is a no-op.
type Room struct {
	id       string
	p1, p2   *session.Session
	gen      *MapGenerator
	recorder Recorder
	logger   *zap.Logger
	onClose  func(roomID string)

	mu        sync.Mutex
	state     roomState
	startedAt time.Time
	scores    map[*session.Session]int
}

// NewRoom creates a room for the given pair.
//
// Precondition: p1 and p2 must be distinct sessions dequeued together;
// gen, recorder, logger, and onClose must be non-nil.
func NewRoom(p1, p2 *session.Session, gen *MapGenerator, recorder Recorder, logger *zap.Logger, onClose func(roomID string)) *Room {
	id := uuid.NewString()[:8]
	return &Room{
		id:       id,
		p1:       p1,
		p2:       p2,
		gen:      gen,
		recorder: recorder,
		logger:   logger.With(zap.String("room_id", id)),
		onClose:  onClose,
		state:    roomCreated,
		scores:   make(map[*session.Session]int, 2),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Start announces the match to both sessions, generates the obstacle map,
// and sends both the byte-identical GameStart payload.
//
// Precondition: the room must be freshly created.
// Postcondition: the room is Active, or Closed if a player vanished during
// startup.
func (r *Room) Start() {
	r.mu.Lock()
	if r.state != roomCreated {
		r.mu.Unlock()
		return
	}
	r.state = roomStarting
	r.mu.Unlock()

	ok1 := r.p1.AttachRoom(r)
	ok2 := r.p2.AttachRoom(r)
	if !ok1 || !ok2 {
		// A player disconnected between dequeue and attach. The match
		// never started, so close without a record and let the survivor
		// know.
		r.logger.Info("match aborted before start")
		if ok1 {
			r.p1.Send(protocol.NewMessage(protocol.KindConnectionError, "opponent disconnected"))
		}
		if ok2 {
			r.p2.Send(protocol.NewMessage(protocol.KindConnectionError, "opponent disconnected"))
		}
		r.close()
		return
	}

	r.p1.Send(protocol.NewMessage(protocol.KindMatchFound, "opponent found!"))
	r.p2.Send(protocol.NewMessage(protocol.KindMatchFound, "opponent found!"))

	// Serialized once so both sides receive identical bytes.
	mapPayload := r.gen.Generate().Encode()

	r.mu.Lock()
	if r.state != roomStarting {
		// A disconnect raced startup and already closed the room.
		r.mu.Unlock()
		return
	}
	r.state = roomActive
	r.startedAt = time.Now()
	r.mu.Unlock()

	r.p1.Send(protocol.NewMessage(protocol.KindGameStart, mapPayload))
	r.p2.Send(protocol.NewMessage(protocol.KindGameStart, mapPayload))

	r.logger.Info("match started",
		zap.String("player1", r.p1.Nickname()),
		zap.String("player2", r.p2.Nickname()),
	)
}

// RelayPosition forwards a position payload verbatim to the sender's
// opponent. Valid only while Active; the payload is trusted as-is, but the
// reported score is remembered so the final record can use the survivor's
// real score.
func (r *Room) RelayPosition(from *session.Session, payload string) {
	r.mu.Lock()
	if r.state != roomActive {
		r.mu.Unlock()
		return
	}
	if pos, err := protocol.ParsePosition(payload); err == nil {
		r.scores[from] = pos.Score
	}
	opponent := r.opponentOf(from)
	r.mu.Unlock()

	if opponent != nil {
		opponent.Send(protocol.NewMessage(protocol.KindOpponentPosition, payload))
	}
}

// ReportDeath ends the match: the sender lost with the score it reported,
// the opponent survives and wins. The survivor gets OpponentDied with the
// loser's score, both players get a GameResult summary, and exactly one
// persistence call records both sides' last known scores.
func (r *Room) ReportDeath(from *session.Session, payload string) {
	r.mu.Lock()
	if r.state != roomActive {
		r.mu.Unlock()
		return
	}
	r.state = roomEnding
	duration := time.Since(r.startedAt)

	loserScore, err := protocol.ParseScore(payload)
	if err != nil {
		// Trust boundary: the payload should be a bare integer. Fall back
		// to the loser's last relayed score rather than dropping the death.
		loserScore = r.scores[from]
	}
	r.scores[from] = loserScore
	winner := r.opponentOf(from)
	winnerScore := r.scores[winner]
	p1Score, p2Score := r.scores[r.p1], r.scores[r.p2]
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("malformed death payload, using last relayed score",
			zap.String("nickname", from.Nickname()),
			zap.Error(err),
		)
	}

	if winner != nil {
		winner.Send(protocol.NewMessage(protocol.KindOpponentDied, strconv.Itoa(loserScore)))
		winner.Send(protocol.NewMessage(protocol.KindGameResult, protocol.Result{
			Won:           true,
			YourScore:     winnerScore,
			OpponentScore: loserScore,
		}.Encode()))
	}
	from.Send(protocol.NewMessage(protocol.KindGameResult, protocol.Result{
		Won:           false,
		YourScore:     loserScore,
		OpponentScore: winnerScore,
	}.Encode()))

	r.logger.Info("match ended",
		zap.String("loser", from.Nickname()),
		zap.Int("loser_score", loserScore),
		zap.Int("winner_score", winnerScore),
		zap.Duration("duration", duration),
	)

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.recorder.SaveGameResult(ctx, r.p1.PlayerID(), r.p2.PlayerID(), p1Score, p2Score, duration); err != nil {
		// A lost record must not break the match flow; both clients have
		// already been told the outcome.
		r.logger.Error("saving game result", zap.Error(err))
	}

	r.close()
}

// PlayerDisconnected handles a player dropping mid-room. An Active match is
// abandoned: the survivor is notified and no record is written, since a
// disconnect is not scored. Outside Active the room just closes cleanly.
func (r *Room) PlayerDisconnected(from *session.Session) {
	r.mu.Lock()
	switch r.state {
	case roomEnding, roomClosed:
		r.mu.Unlock()
		return
	case roomActive:
		r.state = roomEnding
		survivor := r.opponentOf(from)
		r.mu.Unlock()

		r.logger.Info("player disconnected mid-match",
			zap.String("nickname", from.Nickname()),
		)
		if survivor != nil {
			survivor.Send(protocol.NewMessage(protocol.KindConnectionError, "opponent disconnected"))
		}
		r.close()
	default:
		// Created or Starting: the match never began.
		r.state = roomEnding
		r.mu.Unlock()
		r.close()
	}
}

// close performs the terminal transition exactly once: both sessions are
// detached and the owner's removal callback fires.
func (r *Room) close() {
	r.mu.Lock()
	if r.state == roomClosed {
		r.mu.Unlock()
		return
	}
	r.state = roomClosed
	r.mu.Unlock()

	r.p1.DetachRoom()
	r.p2.DetachRoom()
	r.onClose(r.id)

	r.logger.Info("room closed")
}

// opponentOf returns the other session in the pair, or nil for a stranger.
// Callers must hold r.mu.
func (r *Room) opponentOf(s *session.Session) *session.Session {
	switch s {
	case r.p1:
		return r.p2
	case r.p2:
		return r.p1
	default:
		return nil
	}
}
