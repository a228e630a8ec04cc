package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGranularityPrevious(t *testing.T) {
	cases := []struct {
		g    Granularity
		in   string
		want string
	}{
		{GranularityDay, "20250103", "20250102"},
		{GranularityDay, "20250101", "20241231"},
		{GranularityDay, "20240301", "20240229"},
		{GranularityDay, "20230301", "20230228"},
		{GranularityMonth, "202501", "202412"},
		{GranularityMonth, "202403", "202402"},
		{GranularityYear, "2025", "2024"},
	}
	for _, c := range cases {
		got, ok := c.g.Previous(c.in)
		require.True(t, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, ok := GranularityDay.Previous("2025-01-01")
	assert.False(t, ok)
	_, ok = GranularityMonth.Previous("20250101")
	assert.False(t, ok)
}

func TestGranularityNext(t *testing.T) {
	next, ok := GranularityMonth.Next("202412")
	require.True(t, ok)
	assert.Equal(t, "202501", next)

	next, ok = GranularityDay.Next("20240228")
	require.True(t, ok)
	assert.Equal(t, "20240229", next)
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, GranularityDay, g)

	g, err = ParseGranularity("year")
	require.NoError(t, err)
	assert.Equal(t, GranularityYear, g)

	_, err = ParseGranularity("week")
	assert.Error(t, err)
}

func TestGranularityFromTimestamp(t *testing.T) {
	g, ok := GranularityFromTimestamp("20250101")
	assert.True(t, ok)
	assert.Equal(t, GranularityDay, g)

	g, ok = GranularityFromTimestamp("202501")
	assert.True(t, ok)
	assert.Equal(t, GranularityMonth, g)

	_, ok = GranularityFromTimestamp("2025010112")
	assert.False(t, ok)
}

func TestGranularityDisplay(t *testing.T) {
	assert.Equal(t, "2025-01-02", GranularityDay.Display("20250102"))
	assert.Equal(t, "2025-01", GranularityMonth.Display("202501"))
	assert.Equal(t, "2025", GranularityYear.Display("2025"))
	assert.Equal(t, "garbage", GranularityDay.Display("garbage"))
}

func TestGranularityTruncate(t *testing.T) {
	ts := time.Date(2025, time.March, 17, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, "20250317", GranularityDay.Format(GranularityDay.Truncate(ts)))
	assert.Equal(t, "202503", GranularityMonth.Format(GranularityMonth.Truncate(ts)))
	assert.Equal(t, "2025", GranularityYear.Format(GranularityYear.Truncate(ts)))
}
