package match

import (
	"crypto/rand"
	"math/big"

	"github.com/cory-johannsen/runnerduel/internal/config"
	"github.com/cory-johannsen/runnerduel/internal/protocol"
)

// Source produces uniformly distributed random ints. Tests supply a
// deterministic implementation.
type Source interface {
	// Intn returns a value in [0, n). Precondition: n > 0.
	Intn(n int) int
}

// cryptoSource implements Source using crypto/rand.
//
// Invariant: all values produced are uniformly distributed in [0, n).
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics with "match: Intn called with n <= 0" if n <= 0.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("match: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("match: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// MapGenerator builds the shared obstacle layout for a match.
type MapGenerator struct {
	cfg config.GameConfig
	src Source
}

// NewMapGenerator creates a generator using the given tuning and source.
//
// Precondition: cfg must satisfy config validation; src must be non-nil.
func NewMapGenerator(cfg config.GameConfig, src Source) *MapGenerator {
	return &MapGenerator{cfg: cfg, src: src}
}

// Generate produces a fresh obstacle map: ObstacleCount obstacles, each at
// the fixed start position with an offset drawn independently and uniformly
// from [OffsetMin, OffsetMax).
//
// Postcondition: len(map) == cfg.ObstacleCount; every offset is in range;
// indexes are 0..n-1 in order.
func (g *MapGenerator) Generate() protocol.ObstacleMap {
	m := make(protocol.ObstacleMap, 0, g.cfg.ObstacleCount)
	for i := 0; i < g.cfg.ObstacleCount; i++ {
		offset := g.cfg.OffsetMin + g.src.Intn(g.cfg.OffsetMax-g.cfg.OffsetMin)
		m = append(m, protocol.Obstacle{
			Start:  g.cfg.ObstacleStart,
			Offset: offset,
			Index:  i,
		})
	}
	return m
}
