package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/booking"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/transaction"
	redisinfra "github.com/SeifEldin15/quackplan-backend/internal/infrastructure/redis"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/logger"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/metrics"
)

const (
	eventLockTTL        = 10 * time.Second
	eventLockMaxRetries = 3
	eventLockRetryDelay = 100 * time.Millisecond
)

// BookingService は定員判定とキャンセル待ち昇格を担う予約エンジン
// 同一イベントに対する count-then-insert はイベント単位の分散ロックと
// トランザクションで直列化し、一意制約を最終防衛線とする
type BookingService struct {
	txManager   transaction.Manager
	bookingRepo booking.Repository
	eventRepo   event.Repository
	lockManager redisinfra.LockManagerInterface
	cache       redisinfra.AvailabilityCacheInterface
	metrics     *metrics.Metrics
}

func NewBookingService(
	txManager transaction.Manager,
	br booking.Repository,
	er event.Repository,
	lm redisinfra.LockManagerInterface,
	cache redisinfra.AvailabilityCacheInterface,
	m *metrics.Metrics,
) *BookingService {
	return &BookingService{
		txManager:   txManager,
		bookingRepo: br,
		eventRepo:   er,
		lockManager: lm,
		cache:       cache,
		metrics:     m,
	}
}

// lockEvent はイベント単位の分散ロックを取得する
func (s *BookingService) lockEvent(ctx context.Context, eventID string) (redisinfra.Lock, error) {
	if s.lockManager == nil {
		return nil, nil
	}
	start := time.Now()
	lock, err := s.lockManager.AcquireLockWithRetry(ctx, "event:"+eventID, eventLockTTL, eventLockMaxRetries, eventLockRetryDelay)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		s.metrics.DistributedLockDuration.WithLabelValues("acquire", status).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			return nil, fmt.Errorf("イベントが他のリクエストによって処理中です: %w", err)
		}
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	return lock, nil
}

// CreateBooking は予約を作成する
// 定員内なら confirmed、満席なら waitlisted を返す。同一（イベント, ユーザー）の
// キャンセルされていない予約が既に存在する場合はそれをそのまま返す（冪等）
func (s *BookingService) CreateBooking(ctx context.Context, eventID, userID string) (*booking.Booking, error) {
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsPublished() {
		return nil, event.ErrEventNotPublished
	}

	lock, err := s.lockEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	b, err := s.createBookingTx(ctx, ev, userID)
	if err != nil {
		// 一意制約に負けた場合は既存の予約を返す（再試行パス）
		if errors.Is(err, booking.ErrBookingConflict) {
			s.countBooking("conflict")
			return s.findExistingBooking(ctx, eventID, userID)
		}
		s.countBooking("error")
		return nil, err
	}

	s.invalidateAvailability(ctx, eventID)
	s.countBooking(string(b.Status))
	logger.Info("予約を作成",
		zap.String("booking_id", b.ID),
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
		zap.String("status", string(b.Status)),
	)
	return b, nil
}

// createBookingTx は冪等性チェック・定員カウント・INSERTを単一トランザクションで行う
func (s *BookingService) createBookingTx(ctx context.Context, ev *event.Event, userID string) (*booking.Booking, error) {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// 冪等性チェック（再予約・決済後の再確認もこのパスを通る）
	existing, err := s.bookingRepo.FindActive(ctx, tx, ev.ID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, booking.ErrBookingNotFound) {
		return nil, fmt.Errorf("冪等性チェックに失敗: %w", err)
	}

	// 定員判定はINSERTと同一スナップショットで行う
	confirmedCount, err := s.bookingRepo.CountConfirmed(ctx, tx, ev.ID)
	if err != nil {
		return nil, err
	}
	status := booking.StatusConfirmed
	if confirmedCount >= ev.Capacity {
		status = booking.StatusWaitlisted
	}

	b := booking.NewBooking(ev.ID, userID, status)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.bookingRepo.Create(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return b, nil
}

// findExistingBooking は制約競合後に既存の予約を取得する
func (s *BookingService) findExistingBooking(ctx context.Context, eventID, userID string) (*booking.Booking, error) {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.bookingRepo.FindActive(ctx, tx, eventID, userID)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// CancelResult はキャンセル操作の結果
type CancelResult struct {
	Cancelled *booking.Booking
	Promoted  *booking.Booking // 昇格した予約（なければ nil）
}

// CancelBooking は予約をキャンセルし、確定席が空いた場合は
// 最も古いキャンセル待ちを同一トランザクションで昇格する
// 認可（本人または主催者）は呼び出し層の責務
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, byUserID string) (*CancelResult, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	lock, err := s.lockEvent(ctx, b.EventID)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	wasCancelled := b.Status == booking.StatusCancelled
	freedSeat := b.Cancel()
	if !wasCancelled {
		if err := s.bookingRepo.UpdateStatus(ctx, tx, b); err != nil {
			return nil, err
		}
	}

	// 昇格スキャンは確定席が空いたとき、またはキャンセルの再実行時に走る
	// 定員を再確認するため、再実行で二重昇格することはない
	var promoted *booking.Booking
	if freedSeat || wasCancelled {
		promoted, err = s.promoteOldestWaitlisted(ctx, tx, b.EventID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.invalidateAvailability(ctx, b.EventID)
	if promoted != nil {
		if s.metrics != nil {
			s.metrics.WaitlistPromotionsTotal.Inc()
		}
		logger.Info("キャンセル待ちを昇格",
			zap.String("promoted_id", promoted.ID),
			zap.String("event_id", b.EventID),
		)
	}
	logger.Info("予約をキャンセル",
		zap.String("booking_id", b.ID),
		zap.String("by_user_id", byUserID),
		zap.Bool("freed_seat", freedSeat),
	)
	return &CancelResult{Cancelled: b, Promoted: promoted}, nil
}

// promoteOldestWaitlisted は定員に空きがある場合に限り、
// 最も古い（created_at 昇順、同時刻は id 昇順）キャンセル待ちを確定に昇格する
func (s *BookingService) promoteOldestWaitlisted(ctx context.Context, tx transaction.Tx, eventID string) (*booking.Booking, error) {
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	confirmedCount, err := s.bookingRepo.CountConfirmed(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if confirmedCount >= ev.Capacity {
		return nil, nil
	}

	candidate, err := s.bookingRepo.OldestWaitlisted(ctx, tx, eventID)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := candidate.Promote(); err != nil {
		return nil, err
	}
	if err := s.bookingRepo.UpdateStatus(ctx, tx, candidate); err != nil {
		return nil, err
	}
	return candidate, nil
}

// GetBooking はIDから予約を取得する
func (s *BookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

// ListUserBookings はユーザーの予約一覧を取得する
func (s *BookingService) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookingRepo.ListByUserID(ctx, userID, limit, offset)
}

// ListEventBookings はイベントの予約一覧を取得する（主催者向け）
func (s *BookingService) ListEventBookings(ctx context.Context, eventID string, limit, offset int) ([]*booking.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookingRepo.ListByEventID(ctx, eventID, limit, offset)
}

// UpdateBookingStatus は出欠状態（noshow / checked_in）を記録する
func (s *BookingService) UpdateBookingStatus(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := b.MarkAttendance(status); err != nil {
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.bookingRepo.UpdateStatus(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return b, nil
}

func (s *BookingService) countBooking(status string) {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(status).Inc()
	}
}

func (s *BookingService) invalidateAvailability(ctx context.Context, eventID string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, eventID); err != nil {
			logger.Warn("キャッシュ無効化エラー", zap.Error(err))
		}
	}
}
