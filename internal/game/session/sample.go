package session

import "math/rand"

// sample returns a uniform random sample without replacement of at most k
// items. The input slice is not modified; the result is never nil.
func sample[T any](items []T, k int) []T {
	out := make([]T, len(items))
	copy(out, items)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}
