package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/hold"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/transaction"
)

type holdRow struct {
	ID         string    `db:"id"`
	EventID    string    `db:"event_id"`
	UserID     string    `db:"user_id"`
	Status     string    `db:"status"`
	SessionRef *string   `db:"session_ref"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *holdRow) toEntity() *hold.SeatHold {
	return &hold.SeatHold{
		ID: r.ID, EventID: r.EventID, UserID: r.UserID,
		Status: hold.Status(r.Status), SessionRef: r.SessionRef,
		ExpiresAt: r.ExpiresAt, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const holdColumns = `id, event_id, user_id, status, session_ref, expires_at, created_at, updated_at`

// HoldRepository はシートホールドリポジトリのPostgreSQL実装
type HoldRepository struct{ db *sqlx.DB }

func NewHoldRepository(db *sqlx.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

// UpsertActive は有効なホールドを作成、既存の場合は expires_at を更新する
// 部分一意インデックス（event_id, user_id WHERE status = 'active'）を衝突対象にする
func (r *HoldRepository) UpsertActive(ctx context.Context, tx transaction.Tx, h *hold.SeatHold) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}
	query := `
		INSERT INTO seat_holds (event_id, user_id, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, 'active', $3, $4, $5)
		ON CONFLICT (event_id, user_id) WHERE status = 'active'
		DO UPDATE SET expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	if err := sqlxTx.QueryRowContext(ctx, query, h.EventID, h.UserID, h.ExpiresAt, h.CreatedAt, h.UpdatedAt).Scan(&h.ID); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return hold.ErrHoldConflict
		}
		return fmt.Errorf("ホールド作成に失敗: %w", err)
	}
	return nil
}

// CountReserving は定員を消費しているホールド数を取得する
// 期限切れのホールドは status が active のままでも数えない
// tx が nil の場合はトランザクション外のスナップショットを読む
func (r *HoldRepository) CountReserving(ctx context.Context, tx transaction.Tx, eventID string, now time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM seat_holds WHERE event_id = $1 AND status = 'active' AND expires_at > $2`
	var err error
	if sqlxTx := UnwrapTx(tx); sqlxTx != nil {
		err = sqlxTx.GetContext(ctx, &count, query, eventID, now)
	} else {
		err = r.db.GetContext(ctx, &count, query, eventID, now)
	}
	if err != nil {
		return 0, fmt.Errorf("有効ホールド数の取得に失敗: %w", err)
	}
	return count, nil
}

// FindActive は有効なホールドを取得する
// tx が nil の場合はトランザクション外で読み取る
func (r *HoldRepository) FindActive(ctx context.Context, tx transaction.Tx, eventID, userID string) (*hold.SeatHold, error) {
	var row holdRow
	query := `SELECT ` + holdColumns + ` FROM seat_holds WHERE event_id = $1 AND user_id = $2 AND status = 'active'`
	var err error
	if sqlxTx := UnwrapTx(tx); sqlxTx != nil {
		err = sqlxTx.GetContext(ctx, &row, query, eventID, userID)
	} else {
		err = r.db.GetContext(ctx, &row, query, eventID, userID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hold.ErrHoldNotFound
		}
		return nil, fmt.Errorf("ホールド取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// AttachSessionRef は有効なホールドに決済セッションIDを紐付ける
// 同じセッションIDの再設定は冪等
func (r *HoldRepository) AttachSessionRef(ctx context.Context, eventID, userID, sessionRef string) error {
	query := `UPDATE seat_holds SET session_ref = $1, updated_at = NOW() WHERE event_id = $2 AND user_id = $3 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, sessionRef, eventID, userID)
	if err != nil {
		return fmt.Errorf("セッションID紐付けに失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return hold.ErrHoldNotFound
	}
	return nil
}

// MarkConsumedBySession はセッションIDが一致する有効なホールドを消費済みにする
func (r *HoldRepository) MarkConsumedBySession(ctx context.Context, eventID, userID, sessionRef string) (int64, error) {
	query := `UPDATE seat_holds SET status = 'consumed', updated_at = NOW() WHERE event_id = $1 AND user_id = $2 AND session_ref = $3 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, eventID, userID, sessionRef)
	if err != nil {
		return 0, fmt.Errorf("ホールド消費に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新結果の確認に失敗: %w", err)
	}
	return rows, nil
}

// ExpireBySession はセッションIDが一致する有効なホールドを一括で期限切れにする
// active 以外（consumed 等）は対象外なので、Webhook の再配送で消費済みが復活することはない
func (r *HoldRepository) ExpireBySession(ctx context.Context, sessionRef string) (int64, error) {
	query := `UPDATE seat_holds SET status = 'expired', updated_at = NOW() WHERE session_ref = $1 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, sessionRef)
	if err != nil {
		return 0, fmt.Errorf("ホールド期限切れ処理に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新結果の確認に失敗: %w", err)
	}
	return rows, nil
}

// ReleaseActive は有効なホールドを解放する
func (r *HoldRepository) ReleaseActive(ctx context.Context, eventID, userID string) (int64, error) {
	query := `UPDATE seat_holds SET status = 'released', updated_at = NOW() WHERE event_id = $1 AND user_id = $2 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, eventID, userID)
	if err != nil {
		return 0, fmt.Errorf("ホールド解放に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新結果の確認に失敗: %w", err)
	}
	return rows, nil
}

// ExpireOverdue は expires_at を過ぎた有効なホールドを一括で期限切れにする
func (r *HoldRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE seat_holds SET status = 'expired', updated_at = NOW() WHERE status = 'active' AND expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("期限切れホールドの整理に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新結果の確認に失敗: %w", err)
	}
	return rows, nil
}

var _ hold.Repository = (*HoldRepository)(nil)
