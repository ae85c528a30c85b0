package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageNormalize(t *testing.T) {
	p := Page{}.Normalize(20, 100)
	assert.Equal(t, Page{Page: 1, Limit: 20}, p)

	p = Page{Page: 3, Limit: 500}.Normalize(20, 100)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 200, p.Offset())
}

func TestPageInfo(t *testing.T) {
	p := Page{Page: 2, Limit: 10}
	assert.True(t, p.Info(25).HasMore)
	assert.False(t, p.Info(20).HasMore)
	assert.Equal(t, int64(25), p.Info(25).Total)
}

func TestCursorRoundTripAndTrim(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-01T00:00:00Z"})
	require.NoError(t, err)
	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", decoded.ID)

	rows, info := TrimCursorPage([]int{1, 2, 3}, 2, func(v int) string { return "c" })
	assert.Equal(t, []int{1, 2}, rows)
	assert.True(t, info.HasMore)
	assert.Equal(t, "c", info.NextPageToken)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}
