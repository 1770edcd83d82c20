package dungeon

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNextMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"mid-morning",
			time.Date(2024, 1, 1, 10, 0, 0, 0, loc),
			time.Date(2024, 1, 2, 0, 0, 0, 0, loc),
		},
		{
			"exactly midnight rolls to next day",
			time.Date(2024, 3, 15, 0, 0, 0, 0, loc),
			time.Date(2024, 3, 16, 0, 0, 0, 0, loc),
		},
		{
			"one nanosecond before midnight",
			time.Date(2024, 6, 30, 23, 59, 59, int(time.Second-time.Nanosecond), loc),
			time.Date(2024, 7, 1, 0, 0, 0, 0, loc),
		},
		{
			"month boundary",
			time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC),
			time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextMidnight(tt.in))
		})
	}
}

func TestNextMidnightIsStrictlyAfter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sec := rapid.Int64Range(0, 4102444800).Draw(t, "sec")
		in := time.Unix(sec, 0).UTC()
		next := NextMidnight(in)

		assert.True(t, next.After(in), "midnight must be strictly after input")
		assert.LessOrEqual(t, next.Sub(in), 24*time.Hour)
		h, m, s := next.Clock()
		assert.Zero(t, h)
		assert.Zero(t, m)
		assert.Zero(t, s)
	})
}

func TestNewDaily(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	d, err := NewDaily(now)
	require.NoError(t, err)

	seed, err := strconv.ParseUint(d.Seed, 10, 64)
	require.NoError(t, err)
	assert.Less(t, seed, uint64(1)<<seedBits)

	assert.Contains(t, Types, d.Type)
	assert.GreaterOrEqual(t, d.Difficulty, MinDifficulty)
	assert.LessOrEqual(t, d.Difficulty, MaxDifficulty)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d.ExpiresAt)
	assert.Equal(t, 14*time.Hour, d.TTL(now))
}

func TestNewDailySeedsDiffer(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		d, err := NewDaily(now)
		require.NoError(t, err)
		seen[d.Seed] = true
	}
	// 63 bits of entropy; a collision in 16 draws means generation is broken.
	assert.Greater(t, len(seen), 1)
}
