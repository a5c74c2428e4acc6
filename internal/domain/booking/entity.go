package booking

import "time"

// Status は予約の状態を表す
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusWaitlisted Status = "waitlisted"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "noshow"
	StatusCheckedIn  Status = "checked_in"
)

// IsValid は既知の予約状態かを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusConfirmed, StatusWaitlisted, StatusCancelled, StatusNoShow, StatusCheckedIn:
		return true
	}
	return false
}

// Booking は予約エンティティを表す
// レコードは物理削除されず、cancelled への遷移のみで無効化される
type Booking struct {
	ID        string
	EventID   string
	UserID    string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBooking は新しい予約を作成する
// status は定員判定の結果（confirmed または waitlisted）を渡す
func NewBooking(eventID, userID string, status Status) *Booking {
	now := time.Now()
	return &Booking{
		EventID:   eventID,
		UserID:    userID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive はキャンセルされていない予約かを返す
func (b *Booking) IsActive() bool {
	return b.Status != StatusCancelled
}

// Cancel は予約をキャンセルする
// 戻り値は確定席が解放されたか（waitlisted や noshow のキャンセルでは席は空かない）
// 既にキャンセル済みの場合は何もしない（冪等）
func (b *Booking) Cancel() (freedSeat bool) {
	if b.Status == StatusCancelled {
		return false
	}
	freedSeat = b.Status == StatusConfirmed
	b.Status = StatusCancelled
	b.UpdatedAt = time.Now()
	return freedSeat
}

// Promote はキャンセル待ちの予約を確定に昇格する
func (b *Booking) Promote() error {
	if b.Status != StatusWaitlisted {
		return ErrBookingNotWaitlisted
	}
	b.Status = StatusConfirmed
	b.UpdatedAt = time.Now()
	return nil
}

// MarkAttendance は出欠状態（noshow / checked_in）を記録する
// 確定済みの予約に対してのみ許可される
func (b *Booking) MarkAttendance(status Status) error {
	if status != StatusNoShow && status != StatusCheckedIn {
		return ErrInvalidStatus
	}
	if b.Status != StatusConfirmed {
		return ErrBookingNotConfirmed
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	return nil
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.EventID == "" {
		return ErrEventIDRequired
	}
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if !b.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}
