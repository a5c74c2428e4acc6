package hold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestHold(t *testing.T) *SeatHold {
	t.Helper()
	h := NewSeatHold("event-456", "user-123", time.Now().Add(15*time.Minute))
	require.NoError(t, h.Validate())
	return h
}

func TestNewSeatHold(t *testing.T) {
	tests := []struct {
		name        string
		eventID     string
		userID      string
		expiresAt   time.Time
		wantErr     bool
		errExpected error
	}{
		{
			name: "正常なホールド作成", eventID: "event-456", userID: "user-123",
			expiresAt: time.Now().Add(15 * time.Minute), wantErr: false,
		},
		{
			name: "イベントID未指定", eventID: "", userID: "user-123",
			expiresAt: time.Now().Add(15 * time.Minute), wantErr: true, errExpected: ErrEventIDRequired,
		},
		{
			name: "ユーザーID未指定", eventID: "event-456", userID: "",
			expiresAt: time.Now().Add(15 * time.Minute), wantErr: true, errExpected: ErrUserIDRequired,
		},
		{
			name: "有効期限未指定", eventID: "event-456", userID: "user-123",
			expiresAt: time.Time{}, wantErr: true, errExpected: ErrExpiresAtRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSeatHold(tt.eventID, tt.userID, tt.expiresAt)
			err := h.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.errExpected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusActive, h.Status)
			assert.Nil(t, h.SessionRef)
		})
	}
}

func TestSeatHold_IsReserving(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("有効期限内の active は定員を消費する", func(t *testing.T) {
		h := NewSeatHold("event-1", "user-1", now.Add(10*time.Minute))
		assert.True(t, h.IsReserving(now))
	})

	t.Run("期限切れの active は定員を消費しない", func(t *testing.T) {
		h := NewSeatHold("event-1", "user-1", now.Add(-1*time.Second))
		assert.Equal(t, StatusActive, h.Status)
		assert.True(t, h.IsExpired(now))
		assert.False(t, h.IsReserving(now))
	})

	t.Run("expiresAt ちょうどは期限切れ扱い", func(t *testing.T) {
		h := NewSeatHold("event-1", "user-1", now)
		assert.True(t, h.IsExpired(now))
	})

	t.Run("消費済みは定員を消費しない", func(t *testing.T) {
		h := NewSeatHold("event-1", "user-1", now.Add(10*time.Minute))
		require.NoError(t, h.Consume())
		assert.False(t, h.IsReserving(now))
	})
}

func TestSeatHold_Consume(t *testing.T) {
	h := createTestHold(t)
	require.NoError(t, h.Consume())
	assert.Equal(t, StatusConsumed, h.Status)

	// 終端状態からは遷移しない
	assert.ErrorIs(t, h.Consume(), ErrHoldNotActive)
	assert.ErrorIs(t, h.Expire(), ErrHoldNotActive)
}

func TestSeatHold_Expire(t *testing.T) {
	h := createTestHold(t)
	require.NoError(t, h.Expire())
	assert.Equal(t, StatusExpired, h.Status)
	assert.ErrorIs(t, h.Consume(), ErrHoldNotActive)
}

func TestSeatHold_Release(t *testing.T) {
	h := createTestHold(t)
	require.NoError(t, h.Release())
	assert.Equal(t, StatusReleased, h.Status)
	assert.ErrorIs(t, h.Release(), ErrHoldNotActive)
}
