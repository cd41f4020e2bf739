// Package collection はコレクションの管理と、公開コレクションへの評価・コメントを提供する。
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/mediatech/internal/model"
	"github.com/hitoshi/mediatech/internal/repository"
)

// 入力値の上限
const (
	MaxNameLength    = 100
	MaxCommentLength = 2000
	MinScore         = 1
	MaxScore         = 5
)

// TextSanitizer はユーザー入力からHTMLを除去するインターフェース。
type TextSanitizer interface {
	PlainText(raw string) string
}

// Detail はコレクションと所属メディア・評価集計を結合したドメインオブジェクト。
type Detail struct {
	Collection   *model.Collection
	Books        []*model.Book
	Movies       []*model.Movie
	AverageScore float64
	RatingCount  int
}

// Service はコレクション管理のサービス層。
type Service struct {
	collections repository.CollectionRepository
	ratings     repository.RatingRepository
	comments    repository.CommentRepository
	sanitizer   TextSanitizer
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	collections repository.CollectionRepository,
	ratings repository.RatingRepository,
	comments repository.CommentRepository,
	sanitizer TextSanitizer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		collections: collections,
		ratings:     ratings,
		comments:    comments,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// Create はユーザースコープのコレクションを作成する。
// visibilityが空の場合は非公開とする。
func (s *Service) Create(ctx context.Context, userID, name, description string, visibility model.Visibility) (*model.Collection, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, model.NewValidationError("visibilityはprivateまたはpublicを指定してください")
	}

	now := time.Now().UTC()
	c := &model.Collection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: s.sanitize(description),
		Visibility:  visibility,
		Scope:       model.ScopeUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.collections.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("コレクションの作成に失敗しました: %w", err)
	}
	return c, nil
}

// ListMine はユーザーのコレクション一覧を返す。デフォルトコレクションも含む。
func (s *Service) ListMine(ctx context.Context, userID string) ([]repository.CollectionSummary, error) {
	list, err := s.collections.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("コレクション一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListPublic は公開コレクションを新しい順で返す。
func (s *Service) ListPublic(ctx context.Context, limit, offset int) ([]repository.CollectionSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.collections.ListPublic(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("公開コレクション一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// Get はコレクションの詳細を返す。
// 非公開コレクションは所有者以外には存在しないものとして扱う。viewerIDは未ログインの場合は空。
func (s *Service) Get(ctx context.Context, viewerID, collectionID string) (*Detail, error) {
	c, err := s.visibleCollection(ctx, viewerID, collectionID)
	if err != nil {
		return nil, err
	}

	books, err := s.collections.ListBooks(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("書籍一覧の取得に失敗しました: %w", err)
	}
	movies, err := s.collections.ListMovies(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("映画一覧の取得に失敗しました: %w", err)
	}
	avg, count, err := s.ratings.Summary(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("評価の集計に失敗しました: %w", err)
	}

	return &Detail{
		Collection:   c,
		Books:        books,
		Movies:       movies,
		AverageScore: avg,
		RatingCount:  count,
	}, nil
}

// Update はコレクションの名前・説明・公開範囲を更新する。
// デフォルトコレクションは名前の変更と公開ができない。
func (s *Service) Update(ctx context.Context, userID, collectionID, name, description string, visibility model.Visibility) (*model.Collection, error) {
	c, err := s.ownedCollection(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}
	if visibility == "" {
		visibility = c.Visibility
	}
	if !visibility.Valid() {
		return nil, model.NewValidationError("visibilityはprivateまたはpublicを指定してください")
	}

	if c.IsDefault() {
		if (name != "" && name != c.Name) || visibility != model.VisibilityPrivate {
			return nil, model.NewDefaultCollectionLockedError()
		}
	} else if name != "" {
		if c.Name, err = validateName(name); err != nil {
			return nil, err
		}
	}

	c.Description = s.sanitize(description)
	c.Visibility = visibility
	c.UpdatedAt = time.Now().UTC()
	if err := s.collections.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("コレクションの更新に失敗しました: %w", err)
	}
	return c, nil
}

// Delete はユーザーのコレクションを削除する。デフォルトコレクションは削除できない。
func (s *Service) Delete(ctx context.Context, userID, collectionID string) error {
	c, err := s.ownedCollection(ctx, userID, collectionID)
	if err != nil {
		return err
	}
	return s.delete(ctx, c, userID)
}

// DeleteAsAdmin は管理者がコレクションを削除する。所有者は問わない。
func (s *Service) DeleteAsAdmin(ctx context.Context, adminID, collectionID string) error {
	c, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	if c == nil {
		return model.NewCollectionNotFoundError(collectionID)
	}
	return s.delete(ctx, c, adminID)
}

func (s *Service) delete(ctx context.Context, c *model.Collection, actorID string) error {
	if c.IsDefault() {
		return model.NewDefaultCollectionLockedError()
	}
	if err := s.collections.Delete(ctx, c.ID); err != nil {
		return fmt.Errorf("コレクションの削除に失敗しました: %w", err)
	}
	s.logger.Info("コレクションを削除しました",
		slog.String("collection_id", c.ID),
		slog.String("owner_id", c.UserID),
		slog.String("actor_id", actorID),
	)
	return nil
}

// Rate は公開コレクションを評価する。同じユーザーの再評価は上書きする。
func (s *Service) Rate(ctx context.Context, userID, collectionID string, score int) error {
	if score < MinScore || score > MaxScore {
		return model.NewValidationError(fmt.Sprintf("評価は%d〜%dで指定してください", MinScore, MaxScore))
	}
	c, err := s.publicCollection(ctx, userID, collectionID)
	if err != nil {
		return err
	}
	if c.UserID == userID {
		return model.NewOwnCollectionError()
	}

	err = s.ratings.Upsert(ctx, &model.CollectionRating{
		CollectionID: c.ID,
		UserID:       userID,
		Score:        score,
	})
	if err != nil {
		return fmt.Errorf("評価の保存に失敗しました: %w", err)
	}
	return nil
}

// Comment は公開コレクションにコメントを投稿する。本文はHTMLを除去して保存する。
func (s *Service) Comment(ctx context.Context, userID, collectionID, body string) (*model.CollectionComment, error) {
	body = s.sanitize(body)
	if n := utf8.RuneCountInString(body); n == 0 || n > MaxCommentLength {
		return nil, model.NewValidationError(fmt.Sprintf("コメントは1〜%d文字で入力してください", MaxCommentLength))
	}
	c, err := s.publicCollection(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}

	comment := &model.CollectionComment{
		ID:           uuid.New().String(),
		CollectionID: c.ID,
		UserID:       userID,
		Body:         body,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗しました: %w", err)
	}
	return comment, nil
}

// ListComments はコレクションのコメントを投稿日時順で返す。
func (s *Service) ListComments(ctx context.Context, viewerID, collectionID string) ([]*model.CollectionComment, error) {
	c, err := s.visibleCollection(ctx, viewerID, collectionID)
	if err != nil {
		return nil, err
	}
	list, err := s.comments.ListByCollection(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// DeleteComment はコメントを削除する。投稿者本人または管理者のみ削除できる。
func (s *Service) DeleteComment(ctx context.Context, actor *model.User, commentID string) error {
	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if comment == nil {
		return model.NewCommentNotFoundError(commentID)
	}
	if comment.UserID != actor.ID && !actor.IsAdmin() {
		return model.NewForbiddenError()
	}

	if err := s.comments.DeleteByID(ctx, commentID); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	s.logger.Info("コメントを削除しました",
		slog.String("comment_id", commentID),
		slog.String("actor_id", actor.ID),
		slog.Bool("moderated", comment.UserID != actor.ID),
	)
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxNameLength {
		return "", model.NewValidationError(fmt.Sprintf("コレクション名は1〜%d文字で入力してください", MaxNameLength))
	}
	if strings.EqualFold(name, model.DefaultCollectionName) {
		return "", model.NewReservedNameError()
	}
	return name, nil
}

func (s *Service) sanitize(text string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(s.sanitizer.PlainText(text))
}

func (s *Service) ownedCollection(ctx context.Context, userID, collectionID string) (*model.Collection, error) {
	c, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	if c == nil || c.UserID != userID {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}
	return c, nil
}

func (s *Service) visibleCollection(ctx context.Context, viewerID, collectionID string) (*model.Collection, error) {
	c, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	if c == nil || (c.Visibility != model.VisibilityPublic && c.UserID != viewerID) {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}
	return c, nil
}

// publicCollection は評価・コメント対象のコレクションを返す。
// 所有者から見た非公開コレクションはNotPublic、他人から見た場合はNotFoundとする。
func (s *Service) publicCollection(ctx context.Context, userID, collectionID string) (*model.Collection, error) {
	c, err := s.visibleCollection(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}
	if c.Visibility != model.VisibilityPublic {
		return nil, model.NewNotPublicError()
	}
	return c, nil
}
