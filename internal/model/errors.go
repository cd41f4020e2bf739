// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, library, catalog, system
	Action   string // ユーザー向け対処方法

	// RetryAfter は429応答でRetry-Afterヘッダーに設定する待機時間。
	RetryAfter time.Duration
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidMediaKind      = "INVALID_MEDIA_KIND"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeMediaNotFound         = "MEDIA_NOT_FOUND"
	ErrCodeCatalogUnavailable    = "CATALOG_UNAVAILABLE"
	ErrCodeCollectionNotFound    = "COLLECTION_NOT_FOUND"
	ErrCodeDefaultCollectionLock = "DEFAULT_COLLECTION_LOCKED"
	ErrCodeReservedName          = "RESERVED_COLLECTION_NAME"
	ErrCodeNotPublic             = "COLLECTION_NOT_PUBLIC"
	ErrCodeOwnCollection         = "OWN_COLLECTION"
	ErrCodeCommentNotFound       = "COMMENT_NOT_FOUND"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeLoginThrottled        = "LOGIN_THROTTLED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
)

// NewInvalidMediaKindError は未対応のメディア種別エラーを生成する。
func NewInvalidMediaKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMediaKind,
		Message:  fmt.Sprintf("未対応のメディア種別です: %s", kind),
		Category: "validation",
		Action:   "種別には book または movie を指定してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewMediaNotFoundError は外部カタログにメディアが存在しない場合のエラーを生成する。
func NewMediaNotFoundError(kind MediaKind, externalID string) *APIError {
	return &APIError{
		Code:     ErrCodeMediaNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", kind, externalID),
		Category: "catalog",
		Action:   "IDを確認してください。",
	}
}

// NewCatalogUnavailableError は外部カタログへのアクセス失敗エラーを生成する。
func NewCatalogUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeCatalogUnavailable,
		Message:  "外部カタログから情報を取得できませんでした。",
		Category: "catalog",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCollectionNotFoundError はコレクションが見つからない場合のエラーを生成する。
// 非公開コレクションへの他ユーザーからのアクセスもこのエラーとする。
func NewCollectionNotFoundError(collectionID string) *APIError {
	return &APIError{
		Code:     ErrCodeCollectionNotFound,
		Message:  fmt.Sprintf("指定されたコレクションが見つかりません: %s", collectionID),
		Category: "library",
		Action:   "コレクションIDを確認してください。",
	}
}

// NewDefaultCollectionLockedError はデフォルトコレクションの変更・削除エラーを生成する。
func NewDefaultCollectionLockedError() *APIError {
	return &APIError{
		Code:     ErrCodeDefaultCollectionLock,
		Message:  "デフォルトコレクションは変更・削除できません。",
		Category: "library",
		Action:   "新しいコレクションを作成してください。",
	}
}

// NewReservedNameError は予約済みのコレクション名エラーを生成する。
func NewReservedNameError() *APIError {
	return &APIError{
		Code:     ErrCodeReservedName,
		Message:  fmt.Sprintf("コレクション名「%s」は使用できません。", DefaultCollectionName),
		Category: "validation",
		Action:   "別の名前を指定してください。",
	}
}

// NewNotPublicError は非公開コレクションへの評価・コメントエラーを生成する。
func NewNotPublicError() *APIError {
	return &APIError{
		Code:     ErrCodeNotPublic,
		Message:  "このコレクションは公開されていません。",
		Category: "library",
		Action:   "公開コレクションにのみ評価・コメントできます。",
	}
}

// NewOwnCollectionError は自分のコレクションを評価しようとした場合のエラーを生成する。
func NewOwnCollectionError() *APIError {
	return &APIError{
		Code:     ErrCodeOwnCollection,
		Message:  "自分のコレクションは評価できません。",
		Category: "library",
		Action:   "他のユーザーの公開コレクションを評価してください。",
	}
}

// NewCommentNotFoundError はコメントが見つからない場合のエラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "library",
		Action:   "コメントIDを確認してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。",
	}
}

// NewLoginThrottledError はログイン試行回数超過エラーを生成する。
// 待機時間の目安はスライディングウィンドウの長さから算出する。
func NewLoginThrottledError(retryAfter time.Duration) *APIError {
	minutes := int(retryAfter.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return &APIError{
		Code:       ErrCodeLoginThrottled,
		Message:    "ログイン試行回数が上限を超えました。",
		Category:   "auth",
		Action:     fmt.Sprintf("%d分ほど待ってから再度お試しください。", minutes),
		RetryAfter: retryAfter,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnauthorizedError は未ログイン・セッション切れのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}
