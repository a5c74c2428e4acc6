package event

import "context"

// Repository はイベントリポジトリのインターフェース
// 予約コアは GetByID のみを利用する。作成・状態変更はイベント管理側の操作
type Repository interface {
	// Create は新しいイベントを作成する
	Create(ctx context.Context, event *Event) error

	// GetByID はIDからイベントを取得する
	GetByID(ctx context.Context, id string) (*Event, error)

	// List はイベント一覧を取得する
	List(ctx context.Context, limit, offset int) ([]*Event, error)

	// UpdateStatus はイベントの状態を変更する
	UpdateStatus(ctx context.Context, id string, status Status) error
}
