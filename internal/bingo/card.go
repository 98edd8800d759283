package bingo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
)

const Size = 5

// Card is a 5x5 layout indexed [row][col]. Column c holds values from band c.
type Card [Size][Size]Cell

var ErrMalformedCard = errors.New("malformed card")

// CardForSlot derives the card printed on a slot. The same slot always
// yields the same card.
func CardForSlot(slot int) Card {
	r := rand.New(rand.NewPCG(uint64(slot), 0x62696e676f))
	var c Card
	for col := 0; col < Size; col++ {
		perm := r.Perm(bandWidth)
		for row := 0; row < Size; row++ {
			c[row][col] = Cell(col*bandWidth + perm[row] + 1)
		}
	}
	c[2][2] = Free
	return c
}

// Validate checks that the card has a free centre, no other free cells, no
// repeated values and every value inside its column's band.
func (c Card) Validate() error {
	seen := make(map[Cell]bool, Size*Size)
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			v := c[row][col]
			if row == 2 && col == 2 {
				if v != Free {
					return fmt.Errorf("%w: centre must be free", ErrMalformedCard)
				}
				continue
			}
			if v == Free {
				return fmt.Errorf("%w: free cell at %d,%d", ErrMalformedCard, row, col)
			}
			lo, hi := Cell(col*bandWidth+1), Cell((col+1)*bandWidth)
			if v < lo || v > hi {
				return fmt.Errorf("%w: %d outside column %s", ErrMalformedCard, v, bandLabels[col])
			}
			if seen[v] {
				return fmt.Errorf("%w: %d repeated", ErrMalformedCard, v)
			}
			seen[v] = true
		}
	}
	return nil
}

// UnmarshalJSON accepts either a 5x5 nested array or a flat row-major array
// of 25 cells.
func (c *Card) UnmarshalJSON(data []byte) error {
	var rows [][]Cell
	if err := json.Unmarshal(data, &rows); err == nil {
		if len(rows) != Size {
			return fmt.Errorf("%w: %d rows", ErrMalformedCard, len(rows))
		}
		for i, row := range rows {
			if len(row) != Size {
				return fmt.Errorf("%w: row %d has %d cells", ErrMalformedCard, i, len(row))
			}
			copy(c[i][:], row)
		}
		return nil
	}

	var flat []Cell
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if len(flat) != Size*Size {
		return fmt.Errorf("%w: %d cells", ErrMalformedCard, len(flat))
	}
	for i, v := range flat {
		c[i/Size][i%Size] = v
	}
	return nil
}
