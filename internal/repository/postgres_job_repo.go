package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roamjs/backend/internal/model"
)

// PostgresJobRepo はPostgreSQLを使用したジョブ投入レコードリポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

// Create はジョブ投入レコードを作成する。
func (r *PostgresJobRepo) Create(ctx context.Context, job *model.JobRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_records (id, name, payload, status, submitted_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.Name, job.Payload, job.Status, job.SubmittedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}
	return nil
}

// UpdateStatus はジョブの状態を更新する。
func (r *PostgresJobRepo) UpdateStatus(ctx context.Context, id string, status model.JobStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE job_records SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// MarkTimedOut は指定時刻より前に投入され未完了のジョブをTIMED_OUTに遷移させる。
func (r *PostgresJobRepo) MarkTimedOut(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE job_records
		 SET status = $1, updated_at = now()
		 WHERE status IN ($2, $3) AND submitted_at < $4`,
		model.JobTimedOut, model.JobSubmitted, model.JobAccepted, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark timed out jobs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// compile-time interface check
var _ JobRepository = (*PostgresJobRepo)(nil)
