package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述テキストからHTMLを取り除く。
// ワークアウト詳細の文字列値とカタログに保存するタイトル・エラーに使用する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。すべてのタグを除去するポリシーを使う。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去したプレーンテキストを返す。
// CSVやデータベースに保存するためエンティティはデコードする。
func (s *TextSanitizer) SanitizeText(text string) string {
	if !strings.ContainsAny(text, "<>&") {
		return text
	}
	return html.UnescapeString(s.policy.Sanitize(text))
}
