package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/booking"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/hold"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/clock"
)

type holdTestDeps struct {
	txManager   *MockTxManager
	tx          *MockTx
	holdRepo    *MockHoldRepository
	bookingRepo *MockBookingRepository
	eventRepo   *MockEventRepository
	lockManager *MockLockManager
	lock        *MockLock
	clock       *clock.FixedClock
	service     *HoldService
}

func newHoldTestDeps() *holdTestDeps {
	txm := new(MockTxManager)
	tx := new(MockTx)
	holdRepo := new(MockHoldRepository)
	bookingRepo := new(MockBookingRepository)
	eventRepo := new(MockEventRepository)
	lockManager := new(MockLockManager)
	lock := new(MockLock)
	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	service := NewHoldService(txm, holdRepo, bookingRepo, eventRepo, lockManager, clk, 15*time.Minute, nil)

	return &holdTestDeps{
		txManager:   txm,
		tx:          tx,
		holdRepo:    holdRepo,
		bookingRepo: bookingRepo,
		eventRepo:   eventRepo,
		lockManager: lockManager,
		lock:        lock,
		clock:       clk,
		service:     service,
	}
}

func (d *holdTestDeps) expectLock(ctx context.Context, eventID string) {
	d.lockManager.On("AcquireLockWithRetry", ctx, "event:"+eventID, 10*time.Second, 3, 100*time.Millisecond).
		Return(d.lock, nil)
	d.lock.On("Release", ctx).Return(nil)
}

func TestHoldService_PlaceHold(t *testing.T) {
	t.Run("空きがあればホールドが作成される", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()
		now := deps.clock.Now()

		deps.eventRepo.On("GetByID", ctx, "event-1").Return(publishedEvent("event-1", 10, 1000), nil)
		deps.expectLock(ctx, "event-1")
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.tx.On("Rollback").Return(nil)
		deps.tx.On("Commit").Return(nil)

		deps.holdRepo.On("FindActive", ctx, deps.tx, "event-1", "user-1").
			Return(nil, hold.ErrHoldNotFound)
		deps.bookingRepo.On("CountConfirmed", ctx, deps.tx, "event-1").Return(3, nil)
		deps.holdRepo.On("CountReserving", ctx, deps.tx, "event-1", now).Return(2, nil)
		deps.holdRepo.On("UpsertActive", ctx, deps.tx, mock.AnythingOfType("*hold.SeatHold")).Return(nil)

		h, err := deps.service.PlaceHold(ctx, "event-1", "user-1")

		require.NoError(t, err)
		assert.Equal(t, hold.StatusActive, h.Status)
		assert.True(t, h.ExpiresAt.Equal(now.Add(15*time.Minute)))
		deps.holdRepo.AssertExpectations(t)
	})

	t.Run("確定予約と有効ホールドの合計が定員以上なら満席エラー", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()
		now := deps.clock.Now()

		deps.eventRepo.On("GetByID", ctx, "event-1").Return(publishedEvent("event-1", 5, 1000), nil)
		deps.expectLock(ctx, "event-1")
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.tx.On("Rollback").Return(nil)

		deps.holdRepo.On("FindActive", ctx, deps.tx, "event-1", "user-1").
			Return(nil, hold.ErrHoldNotFound)
		deps.bookingRepo.On("CountConfirmed", ctx, deps.tx, "event-1").Return(3, nil)
		deps.holdRepo.On("CountReserving", ctx, deps.tx, "event-1", now).Return(2, nil)

		_, err := deps.service.PlaceHold(ctx, "event-1", "user-1")

		assert.ErrorIs(t, err, hold.ErrEventAtCapacity)
		deps.holdRepo.AssertNotCalled(t, "UpsertActive", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("自分の有効なホールドがあれば定員判定をスキップして期限を更新する", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()
		now := deps.clock.Now()

		existing := &hold.SeatHold{
			ID: "hold-1", EventID: "event-1", UserID: "user-1",
			Status: hold.StatusActive, ExpiresAt: now.Add(5 * time.Minute),
		}

		// 満席状態でも自分のホールドの更新は拒否されない
		deps.eventRepo.On("GetByID", ctx, "event-1").Return(publishedEvent("event-1", 1, 1000), nil)
		deps.expectLock(ctx, "event-1")
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.tx.On("Rollback").Return(nil)
		deps.tx.On("Commit").Return(nil)

		deps.holdRepo.On("FindActive", ctx, deps.tx, "event-1", "user-1").Return(existing, nil)
		deps.holdRepo.On("UpsertActive", ctx, deps.tx, mock.AnythingOfType("*hold.SeatHold")).Return(nil)

		h, err := deps.service.PlaceHold(ctx, "event-1", "user-1")

		require.NoError(t, err)
		assert.True(t, h.ExpiresAt.Equal(now.Add(15*time.Minute)))
		deps.bookingRepo.AssertNotCalled(t, "CountConfirmed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("期限切れの自ホールドは定員を消費していないので定員判定が走る", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		stale := &hold.SeatHold{
			ID: "hold-1", EventID: "event-1", UserID: "user-1",
			Status: hold.StatusActive, ExpiresAt: deps.clock.Now().Add(5 * time.Minute),
		}

		// ホールドの期限を越えるまで時計を進める
		deps.clock.Advance(10 * time.Minute)
		now := deps.clock.Now()

		deps.eventRepo.On("GetByID", ctx, "event-1").Return(publishedEvent("event-1", 1, 1000), nil)
		deps.expectLock(ctx, "event-1")
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.tx.On("Rollback").Return(nil)

		deps.holdRepo.On("FindActive", ctx, deps.tx, "event-1", "user-1").Return(stale, nil)
		deps.bookingRepo.On("CountConfirmed", ctx, deps.tx, "event-1").Return(1, nil)
		deps.holdRepo.On("CountReserving", ctx, deps.tx, "event-1", now).Return(0, nil)

		_, err := deps.service.PlaceHold(ctx, "event-1", "user-1")

		assert.ErrorIs(t, err, hold.ErrEventAtCapacity)
	})

	t.Run("公開されていないイベントにはホールドできない", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		draft := publishedEvent("event-1", 10, 1000)
		draft.Status = event.StatusDraft
		deps.eventRepo.On("GetByID", ctx, "event-1").Return(draft, nil)

		_, err := deps.service.PlaceHold(ctx, "event-1", "user-1")

		assert.ErrorIs(t, err, event.ErrEventNotPublished)
	})
}

func TestHoldService_ConsumeHold(t *testing.T) {
	t.Run("有効なホールドを消費できる", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		deps.holdRepo.On("MarkConsumedBySession", ctx, "event-1", "user-1", "cs_123").
			Return(int64(1), nil)

		err := deps.service.ConsumeHold(ctx, "event-1", "user-1", "cs_123")

		require.NoError(t, err)
	})

	t.Run("対象が見つからなくてもエラーにしない", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		deps.holdRepo.On("MarkConsumedBySession", ctx, "event-1", "user-1", "cs_123").
			Return(int64(0), nil)

		err := deps.service.ConsumeHold(ctx, "event-1", "user-1", "cs_123")

		require.NoError(t, err)
	})
}

func TestHoldService_ExpireHoldsForSession(t *testing.T) {
	t.Run("セッションに紐付く有効ホールドを失効させる", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		deps.holdRepo.On("ExpireBySession", ctx, "cs_123").Return(int64(1), nil)

		n, err := deps.service.ExpireHoldsForSession(ctx, "cs_123")

		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("消費済みホールドは対象外なので0件でも正常", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		deps.holdRepo.On("ExpireBySession", ctx, "cs_123").Return(int64(0), nil)

		n, err := deps.service.ExpireHoldsForSession(ctx, "cs_123")

		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestHoldService_ReleaseHold(t *testing.T) {
	t.Run("有効なホールドを解放できる", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		deps.holdRepo.On("ReleaseActive", ctx, "event-1", "user-1").Return(int64(1), nil)

		err := deps.service.ReleaseHold(ctx, "event-1", "user-1")

		require.NoError(t, err)
	})

	t.Run("有効なホールドがなければエラー", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		deps.holdRepo.On("ReleaseActive", ctx, "event-1", "user-1").Return(int64(0), nil)

		err := deps.service.ReleaseHold(ctx, "event-1", "user-1")

		assert.ErrorIs(t, err, hold.ErrHoldNotFound)
	})
}

func TestHoldService_ReapExpired(t *testing.T) {
	t.Run("注入された時計の現在時刻で期限切れを整理する", func(t *testing.T) {
		deps := newHoldTestDeps()
		ctx := context.Background()

		deps.clock.Advance(30 * time.Minute)
		now := deps.clock.Now()

		deps.holdRepo.On("ExpireOverdue", ctx, now).Return(int64(4), nil)

		n, err := deps.service.ReapExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		deps.holdRepo.AssertExpectations(t)
	})
}

// booking の定員計算にホールドが影響しないことの確認
// （確定予約の判定はホールド数を見ない）
func TestHoldService_CapacityInteraction(t *testing.T) {
	t.Run("ホールドで満席でも確定予約数に空きがあれば予約は confirmed になる", func(t *testing.T) {
		deps := newBookingTestDeps()
		ctx := context.Background()

		deps.eventRepo.On("GetByID", ctx, "event-1").Return(publishedEvent("event-1", 5, 1000), nil)
		deps.expectLock(ctx, "event-1")
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.tx.On("Rollback").Return(nil)
		deps.tx.On("Commit").Return(nil)

		deps.bookingRepo.On("FindActive", ctx, deps.tx, "event-1", "user-1").
			Return(nil, booking.ErrBookingNotFound)
		deps.bookingRepo.On("CountConfirmed", ctx, deps.tx, "event-1").Return(4, nil)
		deps.bookingRepo.On("Create", ctx, deps.tx, mock.AnythingOfType("*booking.Booking")).Return(nil)
		deps.cache.On("Invalidate", ctx, "event-1").Return(nil)

		b, err := deps.service.CreateBooking(ctx, "event-1", "user-1")

		require.NoError(t, err)
		assert.Equal(t, booking.StatusConfirmed, b.Status)
	})
}
