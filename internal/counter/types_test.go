package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
)

func TestParseField(t *testing.T) {
	for _, f := range Fields {
		got, err := ParseField(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	_, err := ParseField("bookmark")
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestCounters_SetClampsNegative(t *testing.T) {
	c := Zero(1)
	c.Set(FieldShare, 4)
	c.Set(FieldLike, -3)

	assert.Equal(t, int64(4), c.Value(FieldShare))
	assert.Equal(t, int64(0), c.Value(FieldLike))
}

func TestParseFields(t *testing.T) {
	c, err := parseFields(3, map[string]string{
		"like":      "10",
		"comment":   "5",
		"synced_at": "1767225600000",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.LikeCount)
	assert.Equal(t, int64(5), c.CommentCount)
	assert.Equal(t, int64(0), c.ViewCount)
	require.NotNil(t, c.LastSyncedAt)
	assert.Equal(t, int64(1767225600000), c.LastSyncedAt.UnixMilli())

	_, err = parseFields(3, map[string]string{"like": "ten"})
	assert.Error(t, err)

	_, err = parseFields(3, map[string]string{"like": "-1"})
	assert.Error(t, err)

	_, err = parseFields(3, map[string]string{"bogus": "1"})
	assert.Error(t, err)
}
