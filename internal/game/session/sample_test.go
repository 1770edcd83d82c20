package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSampleSizeIsMinOfCapAndAvailable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 100).Draw(t, "n")
		k := rapid.IntRange(0, 100).Draw(t, "k")

		items := make([]int, n)
		for i := range items {
			items[i] = i
		}

		got := sample(items, k)

		want := n
		if k < n {
			want = k
		}
		assert.Len(t, got, want)

		// Without replacement: every element distinct and from the input.
		seen := make(map[int]bool, len(got))
		for _, v := range got {
			assert.False(t, seen[v], "duplicate element in sample")
			assert.GreaterOrEqual(t, v, 0)
			assert.Less(t, v, n)
			seen[v] = true
		}
	})
}

func TestSampleDoesNotModifyInput(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	sample(items, 3)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, items)
}

func TestSampleNeverNil(t *testing.T) {
	assert.NotNil(t, sample([]int(nil), 3))
	assert.NotNil(t, sample([]int{}, 0))
}
