package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部カタログのあらすじやユーザーコメントからHTMLを除去し、プレーンテキストにする。
type TextSanitizer interface {
	// PlainText は全てのタグを除去し、エンティティを復元した上で前後の空白を取り除く。
	// <br>と</p>は改行として残す。
	PlainText(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使用したTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

var lineBreakReplacer = strings.NewReplacer(
	"<br>", "\n",
	"<br/>", "\n",
	"<br />", "\n",
	"</p>", "\n",
	"</P>", "\n",
	"<BR>", "\n",
)

// PlainText は全てのタグを除去したプレーンテキストを返す。
func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(lineBreakReplacer.Replace(raw))
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// compile-time interface check
var (
	_ TextSanitizer    = (*textSanitizer)(nil)
	_ SSRFGuardService = (*ssrfGuard)(nil)
)
