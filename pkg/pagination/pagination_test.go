package pagination

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}
	token := EncodeCursor(in)
	assert.NotContains(t, token, "=")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!!", rawToken("no-separator"), rawToken("yesterday|" + uuid.NewString())} {
		_, err := ParseCursor(token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidCursor))
	}

	c, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestTrimReturnsCursorOfLastKeptRow(t *testing.T) {
	rows := []int{1, 2, 3, 4}
	key := func(i int) Cursor { return Cursor{ID: uuid.NewSHA1(uuid.Nil, []byte{byte(i)})} }

	page, next := Trim(rows, 3, key)
	assert.Equal(t, []int{1, 2, 3}, page)
	require.NotNil(t, next)
	assert.Equal(t, key(3).ID, next.ID)

	page, next = Trim(rows[:2], 3, key)
	assert.Len(t, page, 2)
	assert.Nil(t, next)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(1000))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func rawToken(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}
