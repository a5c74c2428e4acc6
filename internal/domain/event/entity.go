package event

import "time"

// Status はイベントの公開状態を表す
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
)

// Event はイベントエンティティを表す
// 予約コアからは読み取り専用（status と capacity の参照のみ）
type Event struct {
	ID          string
	VendorID    string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int
	PriceAmount int // 最小通貨単位（円・セント等）
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewEvent は新しいイベントを作成する（初期状態は draft）
func NewEvent(vendorID, title, description, location string, startsAt, endsAt time.Time, capacity, priceAmount int) *Event {
	now := time.Now()
	return &Event{
		VendorID:    vendorID,
		Title:       title,
		Description: description,
		Location:    location,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Capacity:    capacity,
		PriceAmount: priceAmount,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsPublished はイベントが公開中（予約受付可能）かを返す
func (e *Event) IsPublished() bool {
	return e.Status == StatusPublished
}

// IsFree は無料イベントかを返す
func (e *Event) IsFree() bool {
	return e.PriceAmount == 0
}

// Validate はイベントの検証を行う
func (e *Event) Validate() error {
	if e.VendorID == "" {
		return ErrVendorIDRequired
	}
	if e.Title == "" {
		return ErrTitleRequired
	}
	if e.Capacity < 0 {
		return ErrInvalidCapacity
	}
	if e.PriceAmount < 0 {
		return ErrInvalidPrice
	}
	if e.EndsAt.Before(e.StartsAt) {
		return ErrInvalidEventTime
	}
	return nil
}
