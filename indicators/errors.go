package indicators

import (
	"errors"
	"fmt"
	"math"

	"crypto-dashboard/models"
)

var (
	// ErrInsufficientData means the window is too short for at least one required indicator
	ErrInsufficientData = errors.New("insufficient data to calculate indicators")

	// ErrMalformedInput means the candle window violates ordering or value constraints
	ErrMalformedInput = errors.New("malformed candle data")
)

// Validate checks that timestamps never decrease and that every candle has
// finite values, a non-negative volume and high >= low. An empty window is valid.
func Validate(candles []models.Candle) error {
	for i, c := range candles {
		if !finite(c.Open) || !finite(c.High) || !finite(c.Low) || !finite(c.Close) || !finite(c.Volume) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrMalformedInput, i)
		}
		if c.Volume < 0 {
			return fmt.Errorf("%w: negative volume at index %d", ErrMalformedInput, i)
		}
		if c.High < c.Low {
			return fmt.Errorf("%w: high below low at index %d", ErrMalformedInput, i)
		}
		if i > 0 && c.Timestamp < candles[i-1].Timestamp {
			return fmt.Errorf("%w: timestamp out of order at index %d", ErrMalformedInput, i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
