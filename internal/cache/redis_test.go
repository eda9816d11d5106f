package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/library-system/internal/model"
)

func TestHoldKey(t *testing.T) {
	assert.Equal(t, "hold:7", holdKey(7))
	assert.Equal(t, "hold:1234567890123", holdKey(1234567890123))
}

func TestEncodeDecodeHold(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	hold := model.Hold{BookID: 9, MemberID: 3, CreatedAt: created, ExpiresAt: created.Add(3 * time.Hour)}

	data, err := encodeHold(hold)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"book_id":9,"member_id":3,"created_at":"2026-03-01T10:00:00Z","expires_at":"2026-03-01T13:00:00Z"}`,
		string(data))

	got, err := decodeHold(data)
	require.NoError(t, err)
	assert.True(t, hold.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, hold.MemberID, got.MemberID)
}

func TestDecodeHold_Invalid(t *testing.T) {
	_, err := decodeHold([]byte("not json"))
	assert.Error(t, err)
}
