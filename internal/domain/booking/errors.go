package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound      = errors.New("予約が見つかりません")
	ErrBookingConflict      = errors.New("同じユーザーの予約が既に存在します")
	ErrBookingNotWaitlisted = errors.New("予約はキャンセル待ちではありません")
	ErrBookingNotConfirmed  = errors.New("予約は確定されていません")
	ErrEventIDRequired      = errors.New("イベントIDは必須です")
	ErrUserIDRequired       = errors.New("ユーザーIDは必須です")
	ErrInvalidStatus        = errors.New("不正な予約状態です")
)
