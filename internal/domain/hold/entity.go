package hold

import "time"

// Status はシートホールドの状態を表す
// consumed / released / expired は終端状態
type Status string

const (
	StatusActive   Status = "active"
	StatusConsumed Status = "consumed"
	StatusReleased Status = "released"
	StatusExpired  Status = "expired"
)

// SeatHold は決済完了までの一時的な席の仮押さえを表す
// active かつ expiresAt が未来のホールドだけが定員を消費する
type SeatHold struct {
	ID         string
	EventID    string
	UserID     string
	Status     Status
	SessionRef *string // 外部決済セッションID（セッション作成前は nil）
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSeatHold は新しいシートホールドを作成する
func NewSeatHold(eventID, userID string, expiresAt time.Time) *SeatHold {
	now := time.Now()
	return &SeatHold{
		EventID:   eventID,
		UserID:    userID,
		Status:    StatusActive,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsExpired は指定時刻においてホールドが期限切れかを返す
// status が active のままでも expiresAt を過ぎていれば論理的に期限切れ
func (h *SeatHold) IsExpired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// IsReserving は指定時刻において定員を消費しているかを返す
func (h *SeatHold) IsReserving(now time.Time) bool {
	return h.Status == StatusActive && !h.IsExpired(now)
}

// Consume はホールドを消費済みにする（決済完了時）
func (h *SeatHold) Consume() error {
	if h.Status != StatusActive {
		return ErrHoldNotActive
	}
	h.Status = StatusConsumed
	h.UpdatedAt = time.Now()
	return nil
}

// Expire はホールドを期限切れにする
// 消費済みのホールドは復活させない（Webhook の再配送対策）
func (h *SeatHold) Expire() error {
	if h.Status != StatusActive {
		return ErrHoldNotActive
	}
	h.Status = StatusExpired
	h.UpdatedAt = time.Now()
	return nil
}

// Release はホールドを明示的に解放する（チェックアウト放棄時）
func (h *SeatHold) Release() error {
	if h.Status != StatusActive {
		return ErrHoldNotActive
	}
	h.Status = StatusReleased
	h.UpdatedAt = time.Now()
	return nil
}

// Validate はシートホールドの検証を行う
func (h *SeatHold) Validate() error {
	if h.EventID == "" {
		return ErrEventIDRequired
	}
	if h.UserID == "" {
		return ErrUserIDRequired
	}
	if h.ExpiresAt.IsZero() {
		return ErrExpiresAtRequired
	}
	return nil
}
