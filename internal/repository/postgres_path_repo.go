package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roamjs/backend/internal/model"
)

// PostgresPathReservationRepo はPostgreSQLを使用したパス予約リポジトリ。
type PostgresPathReservationRepo struct {
	db *sql.DB
}

// NewPostgresPathReservationRepo はPostgresPathReservationRepoを生成する。
func NewPostgresPathReservationRepo(db *sql.DB) *PostgresPathReservationRepo {
	return &PostgresPathReservationRepo{db: db}
}

// Create はパス予約を作成する。パスが既に予約済みの場合はエラーを返す。
func (r *PostgresPathReservationRepo) Create(ctx context.Context, reservation *model.PathReservation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO path_reservations (path, user_id, created_at)
		 VALUES ($1, $2, $3)`,
		reservation.Path, reservation.UserID, reservation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create path reservation: %w", err)
	}
	return nil
}

// FindByPath は指定パスの予約を取得する。見つからない場合はnilを返す。
func (r *PostgresPathReservationRepo) FindByPath(ctx context.Context, path string) (*model.PathReservation, error) {
	reservation := &model.PathReservation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT path, user_id, created_at
		 FROM path_reservations
		 WHERE path = $1`,
		path,
	).Scan(&reservation.Path, &reservation.UserID, &reservation.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find path reservation: %w", err)
	}

	return reservation, nil
}

// ListByUser はユーザーの予約パス一覧を返す。
func (r *PostgresPathReservationRepo) ListByUser(ctx context.Context, userID string) ([]*model.PathReservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT path, user_id, created_at
		 FROM path_reservations
		 WHERE user_id = $1
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list path reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*model.PathReservation
	for rows.Next() {
		reservation := &model.PathReservation{}
		if err := rows.Scan(&reservation.Path, &reservation.UserID, &reservation.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan path reservation: %w", err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate path reservations: %w", err)
	}

	return reservations, nil
}

// compile-time interface check
var _ PathReservationRepository = (*PostgresPathReservationRepo)(nil)
