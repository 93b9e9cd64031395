package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnLettersRoundTrip(t *testing.T) {
	cases := map[int]string{
		0:   "A",
		25:  "Z",
		26:  "AA",
		27:  "AB",
		51:  "AZ",
		52:  "BA",
		701: "ZZ",
		702: "AAA",
	}
	for idx, letters := range cases {
		assert.Equal(t, letters, ColumnLetters(idx), "index %d", idx)
		back, err := ColumnIndex(letters)
		require.NoError(t, err)
		assert.Equal(t, idx, back, "letters %s", letters)
	}
	assert.Equal(t, "", ColumnLetters(-1))
}

func TestColumnIndexRejectsGarbage(t *testing.T) {
	_, err := ColumnIndex("A1")
	assert.Error(t, err)
	_, err = ColumnIndex("")
	assert.Error(t, err)
}

func TestRangeA1(t *testing.T) {
	r := Block("ORDERS", Coord{Row: 0, Col: 0}, 10, 13)
	assert.Equal(t, "'ORDERS'!A1:M10", r.A1())
	assert.Equal(t, 10, r.Rows())
	assert.Equal(t, 13, r.Cols())

	single := Block("METRICS", Coord{Row: 4, Col: 2}, 0, 0)
	assert.Equal(t, "'METRICS'!C5", single.A1())

	quoted := Block("Bob's tab", Coord{}, 1, 1)
	assert.Equal(t, "'Bob''s tab'!A1", quoted.A1())
}

func TestColumnsAndParse(t *testing.T) {
	assert.Equal(t, "'RAW_ORDERS'!A:AB", Columns("RAW_ORDERS", 0, 27))

	c, err := ParseA1("'ORDERS'!AB12")
	require.NoError(t, err)
	assert.Equal(t, Coord{Row: 11, Col: 27}, c)

	_, err = ParseA1("12")
	assert.Error(t, err)
	_, err = ParseA1("A0")
	assert.Error(t, err)
}
