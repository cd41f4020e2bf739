package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mediatech/internal/model"
)

// PostgresRatingRepo はPostgreSQLを使用したコレクション評価リポジトリ。
type PostgresRatingRepo struct {
	db *sql.DB
}

// NewPostgresRatingRepo はPostgresRatingRepoを生成する。
func NewPostgresRatingRepo(db *sql.DB) *PostgresRatingRepo {
	return &PostgresRatingRepo{db: db}
}

// Upsert は評価を冪等にUPSERTする。
// UNIQUE(collection_id, user_id)制約を利用したINSERT ON CONFLICTで実装し、
// 既存の評価はscoreとupdated_atのみ更新する。
func (r *PostgresRatingRepo) Upsert(ctx context.Context, rating *model.CollectionRating) error {
	now := time.Now().UTC()
	if rating.ID == "" {
		rating.ID = uuid.New().String()
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = now
	}
	rating.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_ratings (id, collection_id, user_id, score, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (collection_id, user_id) DO UPDATE SET
		     score = EXCLUDED.score,
		     updated_at = EXCLUDED.updated_at`,
		rating.ID, rating.CollectionID, rating.UserID, rating.Score, rating.CreatedAt, rating.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

// Summary はコレクションの平均評価と評価件数を返す。
func (r *PostgresRatingRepo) Summary(ctx context.Context, collectionID string) (float64, int, error) {
	var avg float64
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(avg(score)::float8, 0), count(*) FROM collection_ratings WHERE collection_id = $1`,
		collectionID,
	).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to summarize ratings: %w", err)
	}
	return avg, count, nil
}

// PostgresCommentRepo はPostgreSQLを使用したコレクションコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.CollectionComment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_comments (id, collection_id, user_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		comment.ID, comment.CollectionID, comment.UserID, comment.Body, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

const commentSelect = `SELECT cc.id, cc.collection_id, cc.user_id, u.name, cc.body, cc.created_at
	FROM collection_comments cc
	JOIN users u ON u.id = cc.user_id`

func scanComment(row interface{ Scan(...any) error }) (*model.CollectionComment, error) {
	c := &model.CollectionComment{}
	if err := row.Scan(&c.ID, &c.CollectionID, &c.UserID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.CollectionComment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx, commentSelect+` WHERE cc.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	return c, nil
}

// ListByCollection はコレクションのコメントを投稿日時順で返す。
func (r *PostgresCommentRepo) ListByCollection(ctx context.Context, collectionID string) ([]*model.CollectionComment, error) {
	rows, err := r.db.QueryContext(ctx,
		commentSelect+` WHERE cc.collection_id = $1 ORDER BY cc.created_at ASC`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.CollectionComment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// DeleteByID は指定IDのコメントを削除する。
func (r *PostgresCommentRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM collection_comments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ RatingRepository  = (*PostgresRatingRepo)(nil)
	_ CommentRepository = (*PostgresCommentRepo)(nil)
)
