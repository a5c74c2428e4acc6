package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/booking"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/hold"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/logger"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/metrics"
)

// CheckoutSession は外部決済コラボレーターが発行したセッション
type CheckoutSession struct {
	Ref string // 決済側のセッションID
	URL string // ユーザーを誘導するチェックアウトURL
}

// CheckoutSessionRequest はセッション作成に必要な情報
type CheckoutSessionRequest struct {
	EventID string
	UserID  string
	Title   string
	Amount  int64
}

// CheckoutSessionCreator は決済コラボレーターへのポート
type CheckoutSessionCreator interface {
	CreateSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
}

// bookingEngine は決済フローが必要とする予約操作
type bookingEngine interface {
	CreateBooking(ctx context.Context, eventID, userID string) (*booking.Booking, error)
}

// seatHoldManager は決済フローが必要とするホールド操作
type seatHoldManager interface {
	PlaceHold(ctx context.Context, eventID, userID string) (*hold.SeatHold, error)
	AttachSessionRef(ctx context.Context, eventID, userID, sessionRef string) error
	ConsumeHold(ctx context.Context, eventID, userID, sessionRef string) error
	ExpireHoldsForSession(ctx context.Context, sessionRef string) (int64, error)
	ReleaseHold(ctx context.Context, eventID, userID string) error
}

// PaymentService は決済フローと予約エンジンの橋渡しを行う
// 無料イベントは即時予約、有料イベントはホールド→セッション→Webhook の順で確定する
type PaymentService struct {
	eventRepo event.Repository
	bookings  bookingEngine
	holds     seatHoldManager
	sessions  CheckoutSessionCreator
	metrics   *metrics.Metrics
}

func NewPaymentService(
	er event.Repository,
	bookings bookingEngine,
	holds seatHoldManager,
	sessions CheckoutSessionCreator,
	m *metrics.Metrics,
) *PaymentService {
	return &PaymentService{
		eventRepo: er,
		bookings:  bookings,
		holds:     holds,
		sessions:  sessions,
		metrics:   m,
	}
}

// CheckoutResult はチェックアウト開始の結果
// 無料イベントでは Booking のみ、有料イベントでは Hold とセッション情報が入る
type CheckoutResult struct {
	Booking     *booking.Booking
	Hold        *hold.SeatHold
	SessionRef  string
	CheckoutURL string
}

// StartCheckout はチェックアウトフローを開始する
// 無料イベント: 予約を直接作成する（confirmed または waitlisted）
// 有料イベント: 席をホールドし、決済セッションを作成して紐付ける
func (s *PaymentService) StartCheckout(ctx context.Context, eventID, userID string) (*CheckoutResult, error) {
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsPublished() {
		return nil, event.ErrEventNotPublished
	}

	if ev.IsFree() {
		b, err := s.bookings.CreateBooking(ctx, eventID, userID)
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Booking: b}, nil
	}

	h, err := s.holds.PlaceHold(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx, CheckoutSessionRequest{
		EventID: eventID,
		UserID:  userID,
		Title:   ev.Title,
		Amount:  int64(ev.PriceAmount),
	})
	if err != nil {
		// セッションを作成できなかったホールドは席を塞ぎ続けないよう解放する
		if relErr := s.holds.ReleaseHold(ctx, eventID, userID); relErr != nil {
			logger.Warn("セッション作成失敗後のホールド解放に失敗", zap.Error(relErr))
		}
		return nil, fmt.Errorf("決済セッション作成に失敗: %w", err)
	}

	if err := s.holds.AttachSessionRef(ctx, eventID, userID, session.Ref); err != nil {
		return nil, err
	}

	logger.Info("チェックアウトを開始",
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
		zap.String("session_ref", session.Ref),
	)
	return &CheckoutResult{
		Hold:        h,
		SessionRef:  session.Ref,
		CheckoutURL: session.URL,
	}, nil
}

// HandleSessionCompleted は決済完了Webhookを処理する
// ホールドを消費してから予約を作成する。予約作成は冪等なので
// 同一Webhookの再配送では既存の予約がそのまま返る
// ホールドが期限切れで満席だった場合は waitlisted になる（返金はスコープ外）
func (s *PaymentService) HandleSessionCompleted(ctx context.Context, eventID, userID, sessionRef string) (*booking.Booking, error) {
	if err := s.holds.ConsumeHold(ctx, eventID, userID, sessionRef); err != nil {
		return nil, err
	}

	b, err := s.bookings.CreateBooking(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}

	if b.Status == booking.StatusWaitlisted {
		if s.metrics != nil {
			s.metrics.PaidWaitlistedTotal.Inc()
		}
		logger.Warn("決済完了したがキャンセル待ちになりました（ホールド期限切れ）",
			zap.String("booking_id", b.ID),
			zap.String("event_id", eventID),
			zap.String("user_id", userID),
			zap.String("session_ref", sessionRef),
		)
	}
	return b, nil
}

// HandleSessionExpired はセッション期限切れWebhookを処理する
// 紐付くホールドを失効させて席を解放する（既に失効済みなら何もしない）
func (s *PaymentService) HandleSessionExpired(ctx context.Context, sessionRef string) error {
	_, err := s.holds.ExpireHoldsForSession(ctx, sessionRef)
	return err
}
