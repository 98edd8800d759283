package bingo

type Pattern struct {
	Name    string
	Cells   [][2]int
	Corners bool
}

// Patterns is evaluated in order; the first satisfied pattern wins.
var Patterns = buildPatterns()

func buildPatterns() []Pattern {
	var ps []Pattern
	for r := 0; r < Size; r++ {
		p := Pattern{Name: "row-" + string(rune('1'+r))}
		for c := 0; c < Size; c++ {
			p.Cells = append(p.Cells, [2]int{r, c})
		}
		ps = append(ps, p)
	}
	for c := 0; c < Size; c++ {
		p := Pattern{Name: "column-" + bandLabels[c]}
		for r := 0; r < Size; r++ {
			p.Cells = append(p.Cells, [2]int{r, c})
		}
		ps = append(ps, p)
	}
	diag := Pattern{Name: "diagonal-down"}
	anti := Pattern{Name: "diagonal-up"}
	for i := 0; i < Size; i++ {
		diag.Cells = append(diag.Cells, [2]int{i, i})
		anti.Cells = append(anti.Cells, [2]int{Size - 1 - i, i})
	}
	ps = append(ps, diag, anti)
	ps = append(ps, Pattern{
		Name:    "four-corners",
		Cells:   [][2]int{{0, 0}, {0, Size - 1}, {Size - 1, 0}, {Size - 1, Size - 1}},
		Corners: true,
	})
	return ps
}

// Match returns the first pattern whose every cell is free, or both marked by
// the player and already drawn in the round.
func Match(card Card, marked []Cell, drawn []int) (Pattern, bool) {
	markedSet := make(map[Cell]bool, len(marked))
	for _, m := range marked {
		markedSet[m] = true
	}
	drawnSet := make(map[Cell]bool, len(drawn))
	for _, d := range drawn {
		drawnSet[Cell(d)] = true
	}

	for _, p := range Patterns {
		ok := true
		for _, rc := range p.Cells {
			v := card[rc[0]][rc[1]]
			if v == Free {
				continue
			}
			if !markedSet[v] || !drawnSet[v] {
				ok = false
				break
			}
		}
		if ok {
			return p, true
		}
	}
	return Pattern{}, false
}
