package bingo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// ValueSpace is the number of distinct drawable values, 1..ValueSpace.
	ValueSpace = 75
	// BandCount splits the value space into equal-width display bands.
	BandCount = 5
	bandWidth = ValueSpace / BandCount
)

var bandLabels = [BandCount]string{"B", "I", "N", "G", "O"}

// Cell is a card or marked value normalized to one numeric form. Free is the
// sentinel for the free centre cell.
type Cell int

const Free Cell = 0

var ErrInvalidCell = errors.New("invalid cell value")

// Band returns the display label for a drawn value, or "" outside the value space.
func Band(v int) string {
	if v < 1 || v > ValueSpace {
		return ""
	}
	return bandLabels[(v-1)/bandWidth]
}

// ParseCell normalizes a raw value coming from any client: JSON numbers,
// numeric strings, or one of the free-cell spellings.
func ParseCell(raw any) (Cell, error) {
	switch v := raw.(type) {
	case nil:
		return Free, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidCell, v)
		}
		return checkRange(int(v))
	case int:
		return checkRange(v)
	case json.Number:
		n, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCell, v)
		}
		return checkRange(n)
	case string:
		s := strings.TrimSpace(v)
		switch strings.ToUpper(s) {
		case "", "FREE", "*", "F":
			return Free, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCell, v)
		}
		return checkRange(n)
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidCell, raw)
	}
}

func checkRange(n int) (Cell, error) {
	if n < 0 || n > ValueSpace {
		return 0, fmt.Errorf("%w: %d out of range", ErrInvalidCell, n)
	}
	return Cell(n), nil
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	v, err := ParseCell(raw)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
