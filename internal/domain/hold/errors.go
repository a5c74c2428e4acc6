package hold

import "errors"

// SeatHold ドメインのエラー定義
var (
	ErrHoldNotFound      = errors.New("シートホールドが見つかりません")
	ErrHoldConflict      = errors.New("同じユーザーの有効なホールドが既に存在します")
	ErrHoldNotActive     = errors.New("ホールドは有効ではありません")
	ErrEventAtCapacity   = errors.New("イベントは満席です")
	ErrEventIDRequired   = errors.New("イベントIDは必須です")
	ErrUserIDRequired    = errors.New("ユーザーIDは必須です")
	ErrExpiresAtRequired = errors.New("有効期限は必須です")
)
