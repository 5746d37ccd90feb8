package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id int }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", At: "2024-01-10T00:00:00Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
	assert.Equal(t, "2024-01-10T00:00:00Z", cursor.At)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	empty, err := EncodeCursor(Cursor{})
	require.NoError(t, err)
	_, err = DecodeCursor(empty)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestBuildCursorPageInfoTrimsExtraRow(t *testing.T) {
	rows := []*row{{1}, {2}, {3}}
	info, page := BuildCursorPageInfo(rows, 2, func(r *row) string { return strconv.Itoa(r.id) })

	assert.True(t, info.HasMore)
	assert.Equal(t, "2", info.NextPageToken)
	assert.Len(t, page, 2)

	info, page = BuildCursorPageInfo(rows, 5, func(r *row) string { return strconv.Itoa(r.id) })
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
	assert.Len(t, page, 3)
}

func TestNormalizeSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, NormalizeSize(0))
	assert.Equal(t, 10, NormalizeSize(10))
	assert.Equal(t, MaxPageSize, NormalizeSize(10_000))
}
