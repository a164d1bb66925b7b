package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roamjs/backend/internal/model"
)

// PostgresWorkflowStateRepo はPostgreSQLを使用したワークフロー状態リポジトリ。
type PostgresWorkflowStateRepo struct {
	db *sql.DB
}

// NewPostgresWorkflowStateRepo はPostgresWorkflowStateRepoを生成する。
func NewPostgresWorkflowStateRepo(db *sql.DB) *PostgresWorkflowStateRepo {
	return &PostgresWorkflowStateRepo{db: db}
}

// Create はワークフロー状態を作成する。
func (r *PostgresWorkflowStateRepo) Create(ctx context.Context, state *model.WorkflowState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_states
		 (id, workflow_type, user_id, target, status, callback_token, checkout_session_id, created_at, updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		state.ID, state.Type, state.UserID, state.Target, state.Status,
		state.CallbackToken, state.CheckoutSessionID,
		state.CreatedAt, state.UpdatedAt, state.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow state: %w", err)
	}
	return nil
}

// FindAwaiting は外部確認待ちのワークフローを検索する。見つからない場合はnilを返す。
// 同一キーで複数存在する場合は最新の1件を返す。
func (r *PostgresWorkflowStateRepo) FindAwaiting(ctx context.Context, wfType model.WorkflowType, userID, target string) (*model.WorkflowState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, workflow_type, user_id, target, status, callback_token, checkout_session_id, created_at, updated_at, expires_at
		 FROM workflow_states
		 WHERE workflow_type = $1 AND user_id = $2 AND target = $3
		   AND status = $4 AND expires_at > now()
		 ORDER BY created_at DESC
		 LIMIT 1`,
		wfType, userID, target, model.WorkflowAwaiting,
	)
	return scanWorkflowState(row)
}

// FindByCheckoutSession はチェックアウトセッションIDでワークフローを検索する。
func (r *PostgresWorkflowStateRepo) FindByCheckoutSession(ctx context.Context, checkoutSessionID string) (*model.WorkflowState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, workflow_type, user_id, target, status, callback_token, checkout_session_id, created_at, updated_at, expires_at
		 FROM workflow_states
		 WHERE checkout_session_id = $1 AND status = $2
		 LIMIT 1`,
		checkoutSessionID, model.WorkflowAwaiting,
	)
	return scanWorkflowState(row)
}

// Complete はトークンをクリアし、状態をDONEに遷移させる。
func (r *PostgresWorkflowStateRepo) Complete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_states
		 SET status = $1, callback_token = '', updated_at = now()
		 WHERE id = $2 AND status = $3`,
		model.WorkflowDone, id, model.WorkflowAwaiting,
	)
	if err != nil {
		return fmt.Errorf("failed to complete workflow state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("workflow state %s is not awaiting confirmation", id)
	}
	return nil
}

// UpdateStatus はワークフローの状態を更新する。
func (r *PostgresWorkflowStateRepo) UpdateStatus(ctx context.Context, id string, status model.WorkflowStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE workflow_states SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	return nil
}

// ExpireStale は期限切れの外部確認待ちワークフローをEXPIREDに遷移させる。
// トークンも同時にクリアし、放置されたトークンが残り続けないようにする。
func (r *PostgresWorkflowStateRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_states
		 SET status = $1, callback_token = '', updated_at = now()
		 WHERE status = $2 AND expires_at <= $3`,
		model.WorkflowExpired, model.WorkflowAwaiting, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire workflow states: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// scanWorkflowState は1行のスキャン結果をWorkflowStateに変換する。
func scanWorkflowState(row *sql.Row) (*model.WorkflowState, error) {
	state := &model.WorkflowState{}
	err := row.Scan(
		&state.ID, &state.Type, &state.UserID, &state.Target, &state.Status,
		&state.CallbackToken, &state.CheckoutSessionID,
		&state.CreatedAt, &state.UpdatedAt, &state.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow state: %w", err)
	}
	return state, nil
}

// compile-time interface check
var _ WorkflowStateRepository = (*PostgresWorkflowStateRepo)(nil)
