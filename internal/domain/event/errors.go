package event

import "errors"

// Event ドメインのエラー定義
var (
	ErrEventNotFound     = errors.New("イベントが見つかりません")
	ErrEventNotPublished = errors.New("イベントは公開されていません")
	ErrVendorIDRequired  = errors.New("主催者IDは必須です")
	ErrTitleRequired     = errors.New("イベント名は必須です")
	ErrInvalidCapacity   = errors.New("定員は0以上である必要があります")
	ErrInvalidPrice      = errors.New("価格は0以上である必要があります")
	ErrInvalidEventTime  = errors.New("終了時刻は開始時刻より後である必要があります")
	ErrInvalidStatus     = errors.New("不正なイベント状態です")
)
