package booking

import (
	"context"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
// 定員判定に関わる読み書きは同一トランザクション内で行うこと
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	// 一意制約違反（同一イベント・同一ユーザーの有効な予約）は ErrBookingConflict を返す
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// FindActive はキャンセルされていない予約を取得する（トランザクション内の冪等性チェック用）
	FindActive(ctx context.Context, tx transaction.Tx, eventID, userID string) (*Booking, error)

	// CountConfirmed はイベントの確定予約数を取得する
	// 定員判定に使う場合はトランザクション必須。tx が nil の場合は
	// トランザクション外のスナップショットを読む（表示用途のみ）
	CountConfirmed(ctx context.Context, tx transaction.Tx, eventID string) (int, error)

	// OldestWaitlisted は最も古いキャンセル待ち予約を取得する
	// created_at 昇順、同時刻の場合は id 昇順で決定的に選ぶ
	OldestWaitlisted(ctx context.Context, tx transaction.Tx, eventID string) (*Booking, error)

	// UpdateStatus は予約の状態を更新する（トランザクション必須）
	UpdateStatus(ctx context.Context, tx transaction.Tx, b *Booking) error

	// ListByUserID はユーザーの予約一覧を取得する
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*Booking, error)

	// ListByEventID はイベントの予約一覧を取得する（主催者向け）
	ListByEventID(ctx context.Context, eventID string, limit, offset int) ([]*Booking, error)
}
