package bingo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBand(t *testing.T) {
	cases := map[int]string{1: "B", 15: "B", 16: "I", 30: "I", 31: "N", 45: "N", 46: "G", 61: "O", 75: "O", 0: "", 76: ""}
	for v, want := range cases {
		assert.Equal(t, want, Band(v), "Band(%d)", v)
	}
}

func TestParseCell(t *testing.T) {
	cases := []struct {
		in      any
		want    Cell
		wantErr bool
	}{
		{in: 12, want: 12},
		{in: "12", want: 12},
		{in: " 7 ", want: 7},
		{in: json.Number("33"), want: 33},
		{in: "FREE", want: Free},
		{in: "free", want: Free},
		{in: "*", want: Free},
		{in: nil, want: Free},
		{in: 0, want: Free},
		{in: "76", wantErr: true},
		{in: -1, wantErr: true},
		{in: "abc", wantErr: true},
		{in: true, wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseCell(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrInvalidCell, "ParseCell(%v)", tc.in)
			continue
		}
		require.NoError(t, err, "ParseCell(%v)", tc.in)
		assert.Equal(t, tc.want, got, "ParseCell(%v)", tc.in)
	}
}

func TestCell_UnmarshalMixedJSON(t *testing.T) {
	var cells []Cell
	require.NoError(t, json.Unmarshal([]byte(`[5, "17", "FREE", 75]`), &cells))
	assert.Equal(t, []Cell{5, 17, Free, 75}, cells)

	assert.Error(t, json.Unmarshal([]byte(`["x"]`), &cells))
}

func TestCardForSlot_DeterministicAndValid(t *testing.T) {
	for slot := 1; slot <= 200; slot++ {
		c := CardForSlot(slot)
		require.NoError(t, c.Validate(), "slot %d", slot)
		assert.Equal(t, c, CardForSlot(slot))
	}
	assert.NotEqual(t, CardForSlot(1), CardForSlot(2))
}

func TestCard_Validate(t *testing.T) {
	good := CardForSlot(7)

	bad := good
	bad[2][2] = 40
	assert.ErrorIs(t, bad.Validate(), ErrMalformedCard)

	bad = good
	bad[0][0] = bad[1][0]
	assert.ErrorIs(t, bad.Validate(), ErrMalformedCard)

	bad = good
	bad[0][0] = 70
	assert.ErrorIs(t, bad.Validate(), ErrMalformedCard)

	bad = good
	bad[4][4] = Free
	assert.ErrorIs(t, bad.Validate(), ErrMalformedCard)
}

func TestCard_UnmarshalNestedAndFlat(t *testing.T) {
	want := CardForSlot(3)
	nested, err := json.Marshal(want)
	require.NoError(t, err)

	var got Card
	require.NoError(t, json.Unmarshal(nested, &got))
	assert.Equal(t, want, got)

	flat := make([]any, 0, 25)
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if want[r][c] == Free {
				flat = append(flat, "FREE")
				continue
			}
			flat = append(flat, fmtCell(want[r][c]))
		}
	}
	data, err := json.Marshal(flat)
	require.NoError(t, err)

	var got2 Card
	require.NoError(t, json.Unmarshal(data, &got2))
	assert.Equal(t, want, got2)

	assert.Error(t, json.Unmarshal([]byte(`[[1,2,3]]`), &got2))
	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &got2))
}

func fmtCell(c Cell) string {
	b, _ := json.Marshal(int(c))
	return string(b)
}

func TestPatterns_Order(t *testing.T) {
	require.Len(t, Patterns, 13)
	assert.Equal(t, "row-1", Patterns[0].Name)
	assert.Equal(t, "column-B", Patterns[5].Name)
	assert.Equal(t, "diagonal-down", Patterns[10].Name)
	assert.True(t, Patterns[12].Corners)
}

func values(card Card, cells [][2]int) []int {
	var out []int
	for _, rc := range cells {
		if v := card[rc[0]][rc[1]]; v != Free {
			out = append(out, int(v))
		}
	}
	return out
}

func asCells(vs []int) []Cell {
	out := make([]Cell, len(vs))
	for i, v := range vs {
		out[i] = Cell(v)
	}
	return out
}

func TestMatch_MiddleRowUsesFreeCell(t *testing.T) {
	card := CardForSlot(11)
	row := values(card, Patterns[2].Cells)
	require.Len(t, row, 4)

	p, ok := Match(card, asCells(row), row)
	require.True(t, ok)
	assert.Equal(t, "row-3", p.Name)
	assert.False(t, p.Corners)
}

func TestMatch_RequiresDrawnAndMarked(t *testing.T) {
	card := CardForSlot(12)
	row := values(card, Patterns[0].Cells)

	_, ok := Match(card, asCells(row), row[:4])
	assert.False(t, ok, "one value not drawn yet")

	_, ok = Match(card, asCells(row[:4]), row)
	assert.False(t, ok, "one value not marked")
}

func TestMatch_FourCorners(t *testing.T) {
	card := CardForSlot(13)
	corners := values(card, Patterns[12].Cells)

	p, ok := Match(card, asCells(corners), corners)
	require.True(t, ok)
	assert.True(t, p.Corners)
}

func TestMatch_FirstPatternWins(t *testing.T) {
	card := CardForSlot(14)
	all := append(values(card, Patterns[12].Cells), values(card, Patterns[0].Cells)...)

	p, ok := Match(card, asCells(all), all)
	require.True(t, ok)
	assert.Equal(t, "row-1", p.Name)
}

func TestDraw_NeverRepeats(t *testing.T) {
	var drawn []int
	for i := 0; i < ValueSpace; i++ {
		v, err := Draw(drawn, DefaultPicker, 100)
		require.NoError(t, err)
		assert.NotContains(t, drawn, v)
		drawn = append(drawn, v)
	}
	_, err := Draw(drawn, DefaultPicker, 100)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestDraw_AdversarialPickerFallsBack(t *testing.T) {
	always := func(int) int { return 0 }

	v, err := Draw(nil, always, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = Draw([]int{1, 2, 3}, always, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	outOfRange := func(int) int { return 500 }
	v, err = Draw([]int{1}, outOfRange, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
