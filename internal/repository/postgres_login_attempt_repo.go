package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mediatech/internal/model"
)

// PostgresLoginAttemptRepo はPostgreSQLを使用したログイン試行記録リポジトリ。
type PostgresLoginAttemptRepo struct {
	db *sql.DB
}

// NewPostgresLoginAttemptRepo はPostgresLoginAttemptRepoを生成する。
func NewPostgresLoginAttemptRepo(db *sql.DB) *PostgresLoginAttemptRepo {
	return &PostgresLoginAttemptRepo{db: db}
}

// Insert は試行記録を1件追加する。
func (r *PostgresLoginAttemptRepo) Insert(ctx context.Context, attempt *model.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_attempts (id, identity, origin, success, attempted_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		attempt.ID, attempt.Identity, attempt.Origin, attempt.Success, attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}
	return nil
}

// CountFailuresByIdentitySince はsinceより後に記録された指定IDの失敗件数を返す。
// 部分インデックス (identity, attempted_at) WHERE success = false を使用する。
func (r *PostgresLoginAttemptRepo) CountFailuresByIdentitySince(ctx context.Context, identity string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM login_attempts
		 WHERE identity = $1 AND success = false AND attempted_at > $2`,
		identity, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count identity failures: %w", err)
	}
	return count, nil
}

// CountFailuresByOriginSince はsinceより後に記録された指定送信元の失敗件数を返す。
func (r *PostgresLoginAttemptRepo) CountFailuresByOriginSince(ctx context.Context, origin string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM login_attempts
		 WHERE origin = $1 AND success = false AND attempted_at > $2`,
		origin, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count origin failures: %w", err)
	}
	return count, nil
}

// DeleteOlderThan はcutoffより前の記録を削除し、削除件数を返す。
func (r *PostgresLoginAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge login attempts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListRecent は新しい順に最大limit件の記録を返す。
func (r *PostgresLoginAttemptRepo) ListRecent(ctx context.Context, filter LoginAttemptFilter, limit int) ([]*model.LoginAttempt, error) {
	var conds []string
	var args []any
	if filter.Identity != "" {
		args = append(args, filter.Identity)
		conds = append(conds, fmt.Sprintf("identity = $%d", len(args)))
	}
	if filter.Origin != "" {
		args = append(args, filter.Origin)
		conds = append(conds, fmt.Sprintf("origin = $%d", len(args)))
	}

	query := `SELECT id, identity, origin, success, attempted_at FROM login_attempts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY attempted_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.LoginAttempt
	for rows.Next() {
		a := &model.LoginAttempt{}
		if err := rows.Scan(&a.ID, &a.Identity, &a.Origin, &a.Success, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate login attempts: %w", err)
	}
	return attempts, nil
}

// compile-time interface check
var _ LoginAttemptRepository = (*PostgresLoginAttemptRepo)(nil)
