package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roamjs/backend/internal/model"
)

// PostgresSessionRequestRepo はPostgreSQLを使用したセッションリクエストリポジトリ。
type PostgresSessionRequestRepo struct {
	db *sql.DB
}

// NewPostgresSessionRequestRepo はPostgresSessionRequestRepoを生成する。
func NewPostgresSessionRequestRepo(db *sql.DB) *PostgresSessionRequestRepo {
	return &PostgresSessionRequestRepo{db: db}
}

// Create はセッションリクエストを作成する。
func (r *PostgresSessionRequestRepo) Create(ctx context.Context, req *model.SessionRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_requests (id, code, user_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		req.ID, req.Code, req.UserID, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session request: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションリクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRequestRepo) FindByID(ctx context.Context, id string) (*model.SessionRequest, error) {
	req := &model.SessionRequest{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, user_id, created_at
		 FROM session_requests
		 WHERE id = $1`,
		id,
	).Scan(&req.ID, &req.Code, &req.UserID, &req.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session request: %w", err)
	}

	return req, nil
}

// DeleteByID は指定IDのセッションリクエストを削除する。対象がなくてもエラーにならない。
func (r *PostgresSessionRequestRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_requests WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session request: %w", err)
	}
	return nil
}

// DeleteOlderThan は指定時刻より古いセッションリクエストを削除する。
func (r *PostgresSessionRequestRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM session_requests WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale session requests: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// compile-time interface check
var _ SessionRequestRepository = (*PostgresSessionRequestRepo)(nil)
