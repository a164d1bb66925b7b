package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roamjs/backend/internal/model"
)

// PostgresStatusRepo はPostgreSQLを使用したステータスレコードリポジトリ。
type PostgresStatusRepo struct {
	db *sql.DB
}

// NewPostgresStatusRepo はPostgresStatusRepoを生成する。
func NewPostgresStatusRepo(db *sql.DB) *PostgresStatusRepo {
	return &PostgresStatusRepo{db: db}
}

// Append はステータスレコードを追記する。既存レコードは更新しない。
func (r *PostgresStatusRepo) Append(ctx context.Context, record *model.StatusRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO status_records (id, action, graph, status, user_id, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.Action, record.Graph, record.Status, record.UserID, record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append status record: %w", err)
	}
	return nil
}

// Latest は(action, graph)複合キーの最新レコードを取得する。見つからない場合はnilを返す。
func (r *PostgresStatusRepo) Latest(ctx context.Context, action, graph string) (*model.StatusRecord, error) {
	record := &model.StatusRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, action, graph, status, user_id, recorded_at
		 FROM status_records
		 WHERE action = $1 AND graph = $2
		 ORDER BY recorded_at DESC
		 LIMIT 1`,
		action, graph,
	).Scan(&record.ID, &record.Action, &record.Graph, &record.Status, &record.UserID, &record.RecordedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest status record: %w", err)
	}

	return record, nil
}

// ListByUser はユーザーのステータスレコードを新しい順に取得する。
func (r *PostgresStatusRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.StatusRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, graph, status, user_id, recorded_at
		 FROM status_records
		 WHERE user_id = $1
		 ORDER BY recorded_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list status records: %w", err)
	}
	defer rows.Close()

	var records []*model.StatusRecord
	for rows.Next() {
		record := &model.StatusRecord{}
		if err := rows.Scan(&record.ID, &record.Action, &record.Graph, &record.Status, &record.UserID, &record.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status records: %w", err)
	}

	return records, nil
}

// compile-time interface check
var _ StatusRepository = (*PostgresStatusRepo)(nil)
