// Package security はメモリアル本文のサニタイズとURL検証を提供する。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は利用者が入力したテキストを保存前に無害化する。
type TextSanitizer interface {
	// RichText は伝記・生涯の要約・功績などの装飾付きテキストを許可リストで無害化する。
	RichText(raw string) string
	// PlainText は全てのタグを取り除く。ゲストブックのメッセージや名前に使う。
	PlainText(raw string) string
}

// Sanitizer はbluemondayのポリシーを2種類保持するTextSanitizerの実装。
// ポリシーは生成後に変更しないため、複数のgoroutineから安全に使える。
type Sanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
//
// 装飾付きテキストで許可するもの:
//   - p, br, ul, ol, li, blockquote, strong, em, h3, h4
//   - aのhref（httpsのみ、target="_blank"とrel="noopener noreferrer"を付与）
//
// img・script・iframe・styleとon*属性は全て除去する。画像は専用フィールドで扱う。
func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em", "h3", "h4",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowRelativeURLs(false)
	rich.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &Sanitizer{
		rich:  rich,
		plain: bluemonday.StrictPolicy(),
	}
}

// RichText は装飾付きテキストを無害化する。
func (s *Sanitizer) RichText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// PlainText はタグを除去したテキストを返す。
// bluemondayは&などをエスケープするため、表示側でエスケープし直す前提で元に戻す。
func (s *Sanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(unescaper.Replace(s.plain.Sanitize(raw)))
}

var unescaper = strings.NewReplacer(
	"&amp;", "&",
	"&#39;", "'",
	"&#34;", `"`,
	"&quot;", `"`,
)

// compile-time interface check
var _ TextSanitizer = (*Sanitizer)(nil)
