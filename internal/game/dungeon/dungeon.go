// Package dungeon defines the daily dungeon descriptor and its generation
// rules. One dungeon exists per calendar day; it is generated lazily on
// first access and expires at the next local midnight.
package dungeon

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// Types enumerates the dungeon themes a daily seed can map to.
var Types = []string{"Other", "Audio", "Image", "Compressed", "Video", "Executable"}

// Difficulty bounds for generated dungeons.
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// seedBits is the entropy of a generated seed.
const seedBits = 63

// Dungeon describes one day's shared dungeon instance. Immutable once
// created; the triple is what clients use to generate the map locally.
type Dungeon struct {
	// Seed is the decimal string of a 63-bit random integer.
	Seed string `json:"seed"`
	// Type is one of Types.
	Type string `json:"type"`
	// Difficulty is in [MinDifficulty, MaxDifficulty].
	Difficulty int `json:"difficulty"`
	// ExpiresAt is the next local midnight after creation.
	ExpiresAt time.Time `json:"expires_at"`
}

// TTL returns the remaining lifetime of the dungeon relative to now.
func (d Dungeon) TTL(now time.Time) time.Duration {
	return d.ExpiresAt.Sub(now)
}

// NewDaily generates a fresh daily dungeon descriptor expiring at the next
// local midnight after now. The seed is drawn from crypto/rand.
//
// Postcondition: Returns a Dungeon with a 63-bit seed, a Type from Types,
// a Difficulty in [1,5], and ExpiresAt strictly after now.
func NewDaily(now time.Time) (Dungeon, error) {
	seed, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), seedBits))
	if err != nil {
		return Dungeon{}, fmt.Errorf("drawing dungeon seed: %w", err)
	}

	typeIdx, err := rand.Int(rand.Reader, big.NewInt(int64(len(Types))))
	if err != nil {
		return Dungeon{}, fmt.Errorf("drawing dungeon type: %w", err)
	}

	diff, err := rand.Int(rand.Reader, big.NewInt(MaxDifficulty-MinDifficulty+1))
	if err != nil {
		return Dungeon{}, fmt.Errorf("drawing dungeon difficulty: %w", err)
	}

	return Dungeon{
		Seed:       strconv.FormatUint(seed.Uint64(), 10),
		Type:       Types[typeIdx.Int64()],
		Difficulty: MinDifficulty + int(diff.Int64()),
		ExpiresAt:  NextMidnight(now),
	}, nil
}

// NextMidnight returns the first midnight strictly after t, in t's location.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
