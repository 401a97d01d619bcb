package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は記事説明文などユーザー入力HTMLを許可リスト方式でサニタイズする。
// bluemondayのポリシーはゴルーチンセーフ。
type Sanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
// 説明文で許可するのは段落・改行・リスト・強調・コード・リンク（http / https）のみ。
func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "code", "pre", "blockquote")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("http", "https")
	rich.AllowRelativeURLs(false)
	rich.RequireNoReferrerOnLinks(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{
		rich:  rich,
		plain: bluemonday.StrictPolicy(),
	}
}

// SanitizeHTML は許可タグ以外を除去したHTMLを返す。
func (s *Sanitizer) SanitizeHTML(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// PlainText はすべてのタグを除去したテキストを返す。タイトルやロール名に使用する。
// 文字参照は元の文字に戻す。
func (s *Sanitizer) PlainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(raw)))
}
