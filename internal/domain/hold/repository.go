package hold

import (
	"context"
	"time"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/transaction"
)

// Repository はシートホールドリポジトリのインターフェース
// 定員判定（CountReserving）と作成（UpsertActive）は同一トランザクション内で行うこと
type Repository interface {
	// UpsertActive は有効なホールドを作成する（トランザクション必須）
	// 同一（イベント, ユーザー）の有効なホールドが既に存在する場合は expires_at を更新する
	UpsertActive(ctx context.Context, tx transaction.Tx, h *SeatHold) error

	// CountReserving は定員を消費しているホールド数を取得する
	// status = active かつ expires_at > now のものだけを数える
	// 定員判定に使う場合はトランザクション必須。tx が nil の場合は
	// トランザクション外のスナップショットを読む（表示用途のみ）
	CountReserving(ctx context.Context, tx transaction.Tx, eventID string, now time.Time) (int, error)

	// FindActive は有効なホールドを取得する
	// tx が nil の場合はトランザクション外で読み取る
	FindActive(ctx context.Context, tx transaction.Tx, eventID, userID string) (*SeatHold, error)

	// AttachSessionRef は有効なホールドに決済セッションIDを紐付ける（冪等）
	AttachSessionRef(ctx context.Context, eventID, userID, sessionRef string) error

	// MarkConsumedBySession はセッションIDが一致する有効なホールドを消費済みにする
	// 対象が存在しない場合は 0 を返す（エラーにしない）
	MarkConsumedBySession(ctx context.Context, eventID, userID, sessionRef string) (int64, error)

	// ExpireBySession はセッションIDが一致する有効なホールドを一括で期限切れにする
	ExpireBySession(ctx context.Context, sessionRef string) (int64, error)

	// ReleaseActive は有効なホールドを解放する（チェックアウト放棄時）
	// 対象が存在しない場合は 0 を返す
	ReleaseActive(ctx context.Context, eventID, userID string) (int64, error)

	// ExpireOverdue は expires_at を過ぎた有効なホールドを一括で期限切れにする
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}
