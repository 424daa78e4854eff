// Package security はユーザー入力テキストの無害化を提供する。
//
// キャラクター名やコメントはプレーンテキストとして保存する。
// bluemondayのStrictPolicyでタグをすべて取り除き、
// script/style要素はその中身ごと除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト項目の無害化インターフェース。
type TextSanitizer interface {
	// Clean はHTMLタグ（文字参照で書かれたものを含む）を除去し、
	// 前後の空白を取り除いたテキストを返す。Clean(Clean(x)) == Clean(x)。
	Clean(raw string) string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はStrictPolicyを使用するTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxCleanPasses は文字参照の多重エンコードを剥がす最大回数。
const maxCleanPasses = 8

// markupRunes は多重エンコードが剥がしきれなかった場合に取り除く文字。
var markupRunes = strings.NewReplacer("<", "", ">", "", "&", "")

// Clean はタグを除去したプレーンテキストを返す。
// 文字参照で書かれたタグも元に戻した上で除去するため、
// 除去と文字参照の復元を出力が変化しなくなるまで繰り返す。
func (s *textSanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	for i := 0; i < maxCleanPasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			return strings.TrimSpace(text)
		}
		text = next
	}
	return strings.TrimSpace(markupRunes.Replace(text))
}

var _ TextSanitizer = (*textSanitizer)(nil)
