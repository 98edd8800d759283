package bingo

import (
	"errors"
	"math/rand/v2"
)

var ErrExhausted = errors.New("value space exhausted")

// Picker returns a uniform integer in [0, n).
type Picker func(n int) int

// DefaultPicker draws from the runtime's ChaCha8-seeded source.
func DefaultPicker(n int) int { return rand.IntN(n) }

// Draw picks an undrawn value from 1..ValueSpace. It rejects and retries up
// to maxAttempts times, then falls back to the lowest undrawn value so it
// terminates whatever pick returns.
func Draw(drawn []int, pick Picker, maxAttempts int) (int, error) {
	if len(drawn) >= ValueSpace {
		return 0, ErrExhausted
	}
	used := make([]bool, ValueSpace+1)
	for _, v := range drawn {
		if v >= 1 && v <= ValueSpace {
			used[v] = true
		}
	}

	for i := 0; i < maxAttempts; i++ {
		v := pick(ValueSpace) + 1
		if v >= 1 && v <= ValueSpace && !used[v] {
			return v, nil
		}
	}
	for v := 1; v <= ValueSpace; v++ {
		if !used[v] {
			return v, nil
		}
	}
	return 0, ErrExhausted
}
