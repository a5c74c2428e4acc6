package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/booking"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/transaction"
)

type bookingRow struct {
	ID        string    `db:"id"`
	EventID   string    `db:"event_id"`
	UserID    string    `db:"user_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *bookingRow) toEntity() *booking.Booking {
	return &booking.Booking{
		ID: r.ID, EventID: r.EventID, UserID: r.UserID,
		Status:    booking.Status(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const bookingColumns = `id, event_id, user_id, status, created_at, updated_at`

// BookingRepository は予約リポジトリのPostgreSQL実装
type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create は新しい予約を作成する
// 部分一意インデックス（event_id, user_id WHERE status <> 'cancelled'）への
// 違反は ErrBookingConflict にマッピングする
func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}
	query := `INSERT INTO bookings (event_id, user_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := sqlxTx.QueryRowContext(ctx, query, b.EventID, b.UserID, string(b.Status), b.CreatedAt, b.UpdatedAt).Scan(&b.ID); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return booking.ErrBookingConflict
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

// GetByID はIDから予約を取得する
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// FindActive はキャンセルされていない予約をトランザクション内で取得する
func (r *BookingRepository) FindActive(ctx context.Context, tx transaction.Tx, eventID, userID string) (*booking.Booking, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return nil, errors.New("トランザクションが不正です")
	}
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE event_id = $1 AND user_id = $2 AND status <> 'cancelled'`
	if err := sqlxTx.GetContext(ctx, &row, query, eventID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約検索に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// CountConfirmed はイベントの確定予約数を取得する
// tx が nil の場合はトランザクション外のスナップショットを読む
func (r *BookingRepository) CountConfirmed(ctx context.Context, tx transaction.Tx, eventID string) (int, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE event_id = $1 AND status = 'confirmed'`
	var count int
	var err error
	if sqlxTx := UnwrapTx(tx); sqlxTx != nil {
		err = sqlxTx.GetContext(ctx, &count, query, eventID)
	} else {
		err = r.db.GetContext(ctx, &count, query, eventID)
	}
	if err != nil {
		return 0, fmt.Errorf("確定予約数の取得に失敗: %w", err)
	}
	return count, nil
}

// OldestWaitlisted は最も古いキャンセル待ち予約を取得する
// created_at の同時刻は id で決定的に順序付ける
func (r *BookingRepository) OldestWaitlisted(ctx context.Context, tx transaction.Tx, eventID string) (*booking.Booking, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return nil, errors.New("トランザクションが不正です")
	}
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE event_id = $1 AND status = 'waitlisted' ORDER BY created_at ASC, id ASC LIMIT 1`
	if err := sqlxTx.GetContext(ctx, &row, query, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("キャンセル待ち検索に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// UpdateStatus は予約の状態を更新する
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}
	query := `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := sqlxTx.ExecContext(ctx, query, string(b.Status), b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

// ListByUserID はユーザーの予約一覧を取得する
func (r *BookingRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i, row := range rows {
		result[i] = row.toEntity()
	}
	return result, nil
}

// ListByEventID はイベントの予約一覧を取得する
func (r *BookingRepository) ListByEventID(ctx context.Context, eventID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE event_id = $1 ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, eventID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i, row := range rows {
		result[i] = row.toEntity()
	}
	return result, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
