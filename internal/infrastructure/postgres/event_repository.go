package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
)

// eventRow はDBの行を表す構造体
type eventRow struct {
	ID          string    `db:"id"`
	VendorID    string    `db:"vendor_id"`
	Title       string    `db:"title"`
	Description *string   `db:"description"`
	Location    *string   `db:"location"`
	StartsAt    time.Time `db:"starts_at"`
	EndsAt      time.Time `db:"ends_at"`
	Capacity    int       `db:"capacity"`
	PriceAmount int       `db:"price_amount"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// toEntity はeventRowをEventエンティティに変換する
func (r *eventRow) toEntity() *event.Event {
	var desc, location string
	if r.Description != nil {
		desc = *r.Description
	}
	if r.Location != nil {
		location = *r.Location
	}
	return &event.Event{
		ID:          r.ID,
		VendorID:    r.VendorID,
		Title:       r.Title,
		Description: desc,
		Location:    location,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		Capacity:    r.Capacity,
		PriceAmount: r.PriceAmount,
		Status:      event.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// EventRepository はイベントリポジトリのPostgreSQL実装
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create は新しいイベントを作成する
func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	query := `
		INSERT INTO events (vendor_id, title, description, location, starts_at, ends_at, capacity, price_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var desc, location *string
	if e.Description != "" {
		desc = &e.Description
	}
	if e.Location != "" {
		location = &e.Location
	}

	err := r.db.QueryRowContext(ctx, query,
		e.VendorID, e.Title, desc, location, e.StartsAt, e.EndsAt, e.Capacity, e.PriceAmount, string(e.Status), e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	return nil
}

// GetByID はIDからイベントを取得する
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	query := `SELECT id, vendor_id, title, description, location, starts_at, ends_at, capacity, price_amount, status, created_at, updated_at FROM events WHERE id = $1`

	var row eventRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", err)
	}
	return row.toEntity(), nil
}

// List はイベント一覧を取得する
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	query := `
		SELECT id, vendor_id, title, description, location, starts_at, ends_at, capacity, price_amount, status, created_at, updated_at
		FROM events
		ORDER BY starts_at DESC
		LIMIT $1 OFFSET $2
	`

	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧取得に失敗しました: %w", err)
	}

	events := make([]*event.Event, len(rows))
	for i, row := range rows {
		events[i] = row.toEntity()
	}
	return events, nil
}

// UpdateStatus はイベントの状態を変更する
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, status event.Status) error {
	query := `UPDATE events SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("イベント状態更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return event.ErrEventNotFound
	}
	return nil
}

// インターフェースを満たしているか確認
var _ event.Repository = (*EventRepository)(nil)
