// Package auth はメールアドレスとパスワードによる認証、セッション管理を提供する。
// ログインはthrottleパッケージの判定でブロックされた場合、パスワード照合を行わずに拒否する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/mediatech/internal/model"
	"github.com/hitoshi/mediatech/internal/repository"
	"github.com/hitoshi/mediatech/internal/throttle"
	"golang.org/x/crypto/bcrypt"
)

// パスワード長の制約。bcryptは72バイトを超える入力を扱えない。
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

// LoginThrottle はログイン試行の判定と記録のインターフェース。
type LoginThrottle interface {
	Check(ctx context.Context, identity, origin string) throttle.Decision
	RecordAttempt(ctx context.Context, identity, origin string, success bool)
}

// Metrics はログイン結果を集計するインターフェース。
type Metrics interface {
	RecordLoginAttempt(result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	throttle    LoginThrottle
	metrics     Metrics
	config      ServiceConfig

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	throttle LoginThrottle,
	metrics Metrics,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		throttle:    throttle,
		metrics:     metrics,
		config:      config,
	}
}

// Register はユーザーを登録する。メールアドレスは小文字に正規化する。
// 既に登録済みのメールアドレスの場合はEMAIL_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	email = model.NormalizeIdentity(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, model.NewValidationError("メールアドレスを入力してください")
	}
	if name == "" {
		return nil, model.NewValidationError("名前を入力してください")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := s.userRepo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if result == repository.InsertAlreadyExists {
		return nil, model.NewEmailTakenError()
	}

	slog.Info("new user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
//
// 処理順序:
//  1. スロットル判定。ブロック中はパスワード照合も試行記録も行わずに拒否する
//  2. パスワード照合。未登録のメールアドレスでもダミーハッシュと照合し応答時間を揃える
//  3. 試行結果を記録する
//  4. 成功時はセッションを発行する
func (s *Service) Login(ctx context.Context, email, password, origin string) (*model.Session, error) {
	identity := model.NormalizeIdentity(email)
	if identity == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	if decision := s.throttle.Check(ctx, identity, origin); decision.Blocked {
		s.record("blocked")
		slog.Warn("login blocked",
			slog.String("identity", identity),
			slog.String("origin", origin),
			slog.String("reason", decision.Reason),
		)
		return nil, model.NewLoginThrottledError(decision.RetryAfter)
	}

	// 登録時の上限を超えるメールアドレスのアカウントは存在しない
	if len(identity) > model.MaxIdentityLength {
		s.throttle.RecordAttempt(ctx, identity, origin, false)
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	ok := s.verifyPassword(user, password)
	s.throttle.RecordAttempt(ctx, identity, origin, ok)
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID), slog.String("origin", origin))
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以内で入力してください", MaxPasswordBytes))
	}
	return nil
}

// verifyPassword はパスワードを照合する。userがnilの場合もダミーハッシュと照合してfalseを返す。
func (s *Service) verifyPassword(user *model.User, password string) bool {
	if user == nil || user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		slog.Error("failed to compare password hash",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return err == nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("mediatech-dummy-password"), s.config.BcryptCost)
		if err != nil {
			slog.Error("failed to generate dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordLoginAttempt(result)
	}
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
