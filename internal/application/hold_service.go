package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/booking"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/hold"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/transaction"
	redisinfra "github.com/SeifEldin15/quackplan-backend/internal/infrastructure/redis"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/clock"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/logger"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/metrics"
)

// DefaultHoldTTL はシートホールドの既定の有効期間
const DefaultHoldTTL = 15 * time.Minute

// HoldService は決済フローと定員をつなぐシートホールドを管理する
// 期限判定は注入された Clock で行い、定員の読み取りは常に
// expires_at > now でフィルタする（物理的な状態反映は最適化にすぎない）
type HoldService struct {
	txManager   transaction.Manager
	holdRepo    hold.Repository
	bookingRepo booking.Repository
	eventRepo   event.Repository
	lockManager redisinfra.LockManagerInterface
	clock       clock.Clock
	holdTTL     time.Duration
	metrics     *metrics.Metrics
}

func NewHoldService(
	txManager transaction.Manager,
	hr hold.Repository,
	br booking.Repository,
	er event.Repository,
	lm redisinfra.LockManagerInterface,
	clk clock.Clock,
	holdTTL time.Duration,
	m *metrics.Metrics,
) *HoldService {
	if holdTTL <= 0 {
		holdTTL = DefaultHoldTTL
	}
	return &HoldService{
		txManager:   txManager,
		holdRepo:    hr,
		bookingRepo: br,
		eventRepo:   er,
		lockManager: lm,
		clock:       clk,
		holdTTL:     holdTTL,
		metrics:     m,
	}
}

// PlaceHold は有料イベントの席を一時的に確保する
// reserved = 確定予約数 + 有効（期限内）ホールド数 が定員以上なら ErrEventAtCapacity
// 同一ユーザーの有効なホールドが既に存在する場合は expiresAt を更新して返す
func (s *HoldService) PlaceHold(ctx context.Context, eventID, userID string) (*hold.SeatHold, error) {
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsPublished() {
		return nil, event.ErrEventNotPublished
	}

	if s.lockManager != nil {
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
			return nil, fmt.Errorf("ロック取得に失敗: %w", err)
		}
		defer lock.Release(ctx)
	}

	now := s.clock.Now()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// 自分の有効なホールドは定員を消費済みなので、更新だけ行う
	existing, err := s.holdRepo.FindActive(ctx, tx, eventID, userID)
	if err != nil && !errors.Is(err, hold.ErrHoldNotFound) {
		return nil, err
	}
	refreshing := err == nil && existing.IsReserving(now)

	if !refreshing {
		confirmedCount, err := s.bookingRepo.CountConfirmed(ctx, tx, eventID)
		if err != nil {
			return nil, err
		}
		activeHolds, err := s.holdRepo.CountReserving(ctx, tx, eventID, now)
		if err != nil {
			return nil, err
		}
		if confirmedCount+activeHolds >= ev.Capacity {
			s.countHold("at_capacity")
			return nil, hold.ErrEventAtCapacity
		}
	}

	h := hold.NewSeatHold(eventID, userID, now.Add(s.holdTTL))
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if err := s.holdRepo.UpsertActive(ctx, tx, h); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.countHold("placed")
	logger.Info("シートホールドを作成",
		zap.String("hold_id", h.ID),
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
		zap.Time("expires_at", h.ExpiresAt),
		zap.Bool("refreshed", refreshing),
	)
	return h, nil
}

// AttachSessionRef は有効なホールドに決済セッションIDを紐付ける（冪等）
func (s *HoldService) AttachSessionRef(ctx context.Context, eventID, userID, sessionRef string) error {
	if err := s.holdRepo.AttachSessionRef(ctx, eventID, userID, sessionRef); err != nil {
		return err
	}
	logger.Debug("セッションIDを紐付け",
		zap.String("event_id", eventID),
		zap.String("session_ref", sessionRef),
	)
	return nil
}

// ConsumeHold は決済完了時にホールドを消費する
// 対象が見つからない場合（既に期限切れ等）はエラーにしない
// 予約自体は CreateBooking 側の定員判定で保証される
func (s *HoldService) ConsumeHold(ctx context.Context, eventID, userID, sessionRef string) error {
	n, err := s.holdRepo.MarkConsumedBySession(ctx, eventID, userID, sessionRef)
	if err != nil {
		return err
	}
	if n == 0 {
		logger.Warn("消費対象のホールドが見つかりません（期限切れの可能性）",
			zap.String("event_id", eventID),
			zap.String("session_ref", sessionRef),
		)
		return nil
	}
	s.countHold("consumed")
	return nil
}

// ExpireHoldsForSession はセッションIDに紐付く有効なホールドを一括で期限切れにする
// 消費済みのホールドは対象外（Webhook 再配送で復活しない）
func (s *HoldService) ExpireHoldsForSession(ctx context.Context, sessionRef string) (int64, error) {
	n, err := s.holdRepo.ExpireBySession(ctx, sessionRef)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.countHold("expired")
		logger.Info("セッション期限切れによりホールドを失効",
			zap.String("session_ref", sessionRef),
			zap.Int64("count", n),
		)
	}
	return n, nil
}

// ReleaseHold はチェックアウトを明示的に放棄したユーザーのホールドを解放する
// 解放されたホールドは即座に定員を解放する
func (s *HoldService) ReleaseHold(ctx context.Context, eventID, userID string) error {
	n, err := s.holdRepo.ReleaseActive(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return hold.ErrHoldNotFound
	}
	s.countHold("released")
	logger.Info("シートホールドを解放",
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
	)
	return nil
}

// ReapExpired は expires_at を過ぎた有効なホールドを物理的に期限切れへ反映する
// 定員の読み取りは常に期限でフィルタされるため、正しさはこの処理に依存しない
func (s *HoldService) ReapExpired(ctx context.Context) (int64, error) {
	n, err := s.holdRepo.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *HoldService) countHold(status string) {
	if s.metrics != nil {
		s.metrics.HoldsTotal.WithLabelValues(status).Inc()
	}
}
