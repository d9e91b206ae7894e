package protocol

import (
	"strconv"
	"strings"
)

// Position is the payload of PlayerPosition and OpponentPosition messages.
// All values are client-reported and trusted at face value; the server never
// recomputes or bounds-checks them.
type Position struct {
	// Top is the player's vertical screen position.
	Top int
	// Score is the player's current score.
	Score int
	// Jumping reports whether the player is mid-jump.
	Jumping bool
}

// Encode serializes the position as "top,score,jumping".
func (p Position) Encode() string {
	return strconv.Itoa(p.Top) + "," + strconv.Itoa(p.Score) + "," + strconv.FormatBool(p.Jumping)
}

// ParsePosition parses a "top,score,jumping" payload.
//
// Postcondition: ParsePosition(p.Encode()) == p for every Position p.
func ParsePosition(payload string) (Position, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 3 {
		return Position{}, decodeErrorf("position wants 3 fields, got %d", len(parts))
	}
	top, err := strconv.Atoi(parts[0])
	if err != nil {
		return Position{}, decodeErrorf("position top %q: not an integer", truncateForError(parts[0]))
	}
	score, err := strconv.Atoi(parts[1])
	if err != nil {
		return Position{}, decodeErrorf("position score %q: not an integer", truncateForError(parts[1]))
	}
	jumping, err := strconv.ParseBool(parts[2])
	if err != nil {
		return Position{}, decodeErrorf("position jumping %q: not a bool", truncateForError(parts[2]))
	}
	return Position{Top: top, Score: score, Jumping: jumping}, nil
}

// Obstacle is one entry in the shared obstacle map.
type Obstacle struct {
	// Start is the fixed horizontal spawn position.
	Start int
	// Offset is the per-obstacle random spacing offset.
	Offset int
	// Index is the obstacle's position in the map sequence.
	Index int
}

// Encode serializes the obstacle as "start,offset,index".
func (o Obstacle) Encode() string {
	return strconv.Itoa(o.Start) + "," + strconv.Itoa(o.Offset) + "," + strconv.Itoa(o.Index)
}

// ParseObstacle parses a "start,offset,index" triple.
func ParseObstacle(payload string) (Obstacle, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 3 {
		return Obstacle{}, decodeErrorf("obstacle wants 3 fields, got %d", len(parts))
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Obstacle{}, decodeErrorf("obstacle field %q: not an integer", truncateForError(p))
		}
		vals[i] = v
	}
	return Obstacle{Start: vals[0], Offset: vals[1], Index: vals[2]}, nil
}

// ObstacleMap is the ordered obstacle layout shared by both players in a
// match. It is generated once per match and immutable afterwards; both
// players receive the identical serialized form so that client-side physics
// diverge only by input.
type ObstacleMap []Obstacle

// Encode serializes the map as a ";"-joined list of obstacle triples.
// An empty map encodes as the empty string.
func (m ObstacleMap) Encode() string {
	if len(m) == 0 {
		return ""
	}
	parts := make([]string, len(m))
	for i, o := range m {
		parts[i] = o.Encode()
	}
	return strings.Join(parts, ";")
}

// ParseObstacleMap parses a ";"-joined obstacle list. The empty string
// parses as an empty map.
//
// Postcondition: ParseObstacleMap(m.Encode()) is elementwise equal to m.
func ParseObstacleMap(payload string) (ObstacleMap, error) {
	if payload == "" {
		return ObstacleMap{}, nil
	}
	parts := strings.Split(payload, ";")
	m := make(ObstacleMap, 0, len(parts))
	for _, p := range parts {
		o, err := ParseObstacle(p)
		if err != nil {
			return nil, err
		}
		m = append(m, o)
	}
	return m, nil
}

// Result is the payload of the GameResult summary sent to both players when
// a match ends by death.
type Result struct {
	Won           bool
	YourScore     int
	OpponentScore int
}

// Encode serializes the result as "won,yourScore,opponentScore".
func (r Result) Encode() string {
	return strconv.FormatBool(r.Won) + "," + strconv.Itoa(r.YourScore) + "," + strconv.Itoa(r.OpponentScore)
}

// ParseResult parses a "won,yourScore,opponentScore" payload.
func ParseResult(payload string) (Result, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 3 {
		return Result{}, decodeErrorf("result wants 3 fields, got %d", len(parts))
	}
	won, err := strconv.ParseBool(parts[0])
	if err != nil {
		return Result{}, decodeErrorf("result won %q: not a bool", truncateForError(parts[0]))
	}
	yours, err := strconv.Atoi(parts[1])
	if err != nil {
		return Result{}, decodeErrorf("result yourScore %q: not an integer", truncateForError(parts[1]))
	}
	theirs, err := strconv.Atoi(parts[2])
	if err != nil {
		return Result{}, decodeErrorf("result opponentScore %q: not an integer", truncateForError(parts[2]))
	}
	return Result{Won: won, YourScore: yours, OpponentScore: theirs}, nil
}

// ParseScore parses a PlayerDied or OpponentDied payload: a final score as
// a decimal string.
func ParseScore(payload string) (int, error) {
	score, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, decodeErrorf("score %q: not an integer", truncateForError(payload))
	}
	return score, nil
}
