package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/booking"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/hold"
	redisinfra "github.com/SeifEldin15/quackplan-backend/internal/infrastructure/redis"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/clock"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/logger"
)

// availabilityCacheTTL は残席数キャッシュの有効期間
// 書き込み時に無効化されるため短くてよい
const availabilityCacheTTL = 10 * time.Second

// EventService はイベントのライフサイクルと残席照会を担う
type EventService struct {
	eventRepo   event.Repository
	bookingRepo booking.Repository
	holdRepo    hold.Repository
	cache       redisinfra.AvailabilityCacheInterface
	clock       clock.Clock
}

func NewEventService(
	er event.Repository,
	br booking.Repository,
	hr hold.Repository,
	cache redisinfra.AvailabilityCacheInterface,
	clk clock.Clock,
) *EventService {
	return &EventService{
		eventRepo:   er,
		bookingRepo: br,
		holdRepo:    hr,
		cache:       cache,
		clock:       clk,
	}
}

// CreateEventInput はイベント作成の入力
type CreateEventInput struct {
	VendorID    string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int
	PriceAmount int
}

// CreateEvent は新しいイベントを draft 状態で作成する
func (s *EventService) CreateEvent(ctx context.Context, input CreateEventInput) (*event.Event, error) {
	ev := event.NewEvent(
		input.VendorID, input.Title, input.Description, input.Location,
		input.StartsAt, input.EndsAt, input.Capacity, input.PriceAmount,
	)
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if err := s.eventRepo.Create(ctx, ev); err != nil {
		return nil, err
	}
	logger.Info("イベントを作成",
		zap.String("event_id", ev.ID),
		zap.String("vendor_id", ev.VendorID),
		zap.Int("capacity", ev.Capacity),
	)
	return ev, nil
}

// GetEvent はIDからイベントを取得する
func (s *EventService) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	return s.eventRepo.GetByID(ctx, id)
}

// ListEvents はイベント一覧を取得する
func (s *EventService) ListEvents(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.eventRepo.List(ctx, limit, offset)
}

// UpdateEventStatus はイベントの公開状態を変更する
func (s *EventService) UpdateEventStatus(ctx context.Context, id string, status event.Status) (*event.Event, error) {
	switch status {
	case event.StatusDraft, event.StatusPublished, event.StatusCancelled:
	default:
		return nil, event.ErrInvalidStatus
	}
	if err := s.eventRepo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	logger.Info("イベント状態を変更",
		zap.String("event_id", id),
		zap.String("status", string(status)),
	)
	return s.eventRepo.GetByID(ctx, id)
}

// Availability はイベントの残席情報
type Availability struct {
	EventID   string
	Capacity  int
	Confirmed int
	Held      int
	Remaining int
}

// GetAvailability はイベントの残席数を取得する
// remaining = capacity - confirmed - 有効（期限内）ホールド数
// キャッシュヒット時はカウントを省略する（表示用途のスナップショット）
func (s *EventService) GetAvailability(ctx context.Context, eventID string) (*Availability, error) {
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if remaining, err := s.cache.GetRemaining(ctx, eventID); err == nil {
			return &Availability{
				EventID:   eventID,
				Capacity:  ev.Capacity,
				Remaining: remaining,
			}, nil
		} else if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	confirmed, err := s.bookingRepo.CountConfirmed(ctx, nil, eventID)
	if err != nil {
		return nil, err
	}
	held, err := s.holdRepo.CountReserving(ctx, nil, eventID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	remaining := ev.Capacity - confirmed - held
	if remaining < 0 {
		remaining = 0
	}

	if s.cache != nil {
		if err := s.cache.SetRemaining(ctx, eventID, remaining, availabilityCacheTTL); err != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(err))
		}
	}

	return &Availability{
		EventID:   eventID,
		Capacity:  ev.Capacity,
		Confirmed: confirmed,
		Held:      held,
		Remaining: remaining,
	}, nil
}
