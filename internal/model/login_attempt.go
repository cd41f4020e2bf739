package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// 試行記録の列長（login_attempts.identity / origin）に合わせた上限バイト数。
const (
	MaxIdentityLength = 254
	MaxOriginLength   = 64
)

// ErrInvalidIdentity は空のログインIDが指定された場合のエラー。
var ErrInvalidIdentity = errors.New("invalid login identity")

// LoginAttempt は1回の認証試行の記録。作成後に更新されることはない。
type LoginAttempt struct {
	ID          string
	Identity    string // 小文字化したメールアドレス
	Origin      string // クライアントIPアドレス
	Success     bool
	AttemptedAt time.Time
}

// NormalizeIdentity はログインIDを前後空白除去・小文字化する。
// 不正なUTF-8とNULバイトは取り除く。
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(sanitizeText(identity)))
}

// ClampIdentity は正規化済みのログインIDをMaxIdentityLengthバイト以内に切り詰める。
func ClampIdentity(identity string) string {
	return truncateBytes(identity, MaxIdentityLength)
}

// NormalizeOrigin は送信元を前後空白除去し、MaxOriginLengthバイト以内に切り詰める。
// 不正なUTF-8とNULバイトは取り除く。
func NormalizeOrigin(origin string) string {
	return truncateBytes(strings.TrimSpace(sanitizeText(origin)), MaxOriginLength)
}

func sanitizeText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}

// truncateBytes はUTF-8の文字境界を保ったままsをnバイト以内に切り詰める。
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
