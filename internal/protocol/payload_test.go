package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParsePosition(t *testing.T) {
	pos, err := ParsePosition("200,15,false")
	require.NoError(t, err)
	assert.Equal(t, Position{Top: 200, Score: 15, Jumping: false}, pos)

	pos, err = ParsePosition("-3,0,true")
	require.NoError(t, err)
	assert.Equal(t, Position{Top: -3, Score: 0, Jumping: true}, pos)
}

func TestParsePositionMalformed(t *testing.T) {
	for _, payload := range []string{"", "200", "200,15", "200,15,false,extra", "abc,15,false", "200,xyz,false", "200,15,maybe"} {
		_, err := ParsePosition(payload)
		assert.Error(t, err, "payload %q", payload)
	}
}

func TestPositionRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pos := Position{
			Top:     rapid.IntRange(-10000, 10000).Draw(t, "top"),
			Score:   rapid.IntRange(0, 1000000).Draw(t, "score"),
			Jumping: rapid.Bool().Draw(t, "jumping"),
		}
		parsed, err := ParsePosition(pos.Encode())
		if err != nil {
			t.Fatalf("parsing %q: %v", pos.Encode(), err)
		}
		if parsed != pos {
			t.Fatalf("round trip mismatch: %+v != %+v", parsed, pos)
		}
	})
}

func TestParseObstacleMap(t *testing.T) {
	m, err := ParseObstacleMap("1200,512,0;1200,730,1;1200,650,2")
	require.NoError(t, err)
	require.Len(t, m, 3)
	assert.Equal(t, Obstacle{Start: 1200, Offset: 512, Index: 0}, m[0])
	assert.Equal(t, Obstacle{Start: 1200, Offset: 730, Index: 1}, m[1])
	assert.Equal(t, Obstacle{Start: 1200, Offset: 650, Index: 2}, m[2])
}

func TestParseObstacleMapEmpty(t *testing.T) {
	m, err := ParseObstacleMap("")
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.Equal(t, "", m.Encode())
}

func TestParseObstacleMapMalformed(t *testing.T) {
	for _, payload := range []string{";", "1200,512", "1200,512,0;bad", "1200,512,0;;1200,730,1"} {
		_, err := ParseObstacleMap(payload)
		assert.Error(t, err, "payload %q", payload)
	}
}

func TestObstacleMapRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(t, "n")
		m := make(ObstacleMap, 0, n)
		for i := 0; i < n; i++ {
			m = append(m, Obstacle{
				Start:  rapid.IntRange(0, 5000).Draw(t, "start"),
				Offset: rapid.IntRange(0, 5000).Draw(t, "offset"),
				Index:  i,
			})
		}
		parsed, err := ParseObstacleMap(m.Encode())
		if err != nil {
			t.Fatalf("parsing %q: %v", m.Encode(), err)
		}
		if len(parsed) != len(m) {
			t.Fatalf("length mismatch: %d != %d", len(parsed), len(m))
		}
		for i := range m {
			if parsed[i] != m[i] {
				t.Fatalf("obstacle %d mismatch: %+v != %+v", i, parsed[i], m[i])
			}
		}
	})
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult("true,40,17")
	require.NoError(t, err)
	assert.Equal(t, Result{Won: true, YourScore: 40, OpponentScore: 17}, res)

	assert.Equal(t, "false,17,40", Result{Won: false, YourScore: 17, OpponentScore: 40}.Encode())
}

func TestParseScore(t *testing.T) {
	score, err := ParseScore("42")
	require.NoError(t, err)
	assert.Equal(t, 42, score)

	score, err = ParseScore(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, 7, score)

	_, err = ParseScore("forty-two")
	assert.Error(t, err)
	_, err = ParseScore("")
	assert.Error(t, err)
}
