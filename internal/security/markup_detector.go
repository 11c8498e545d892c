package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MarkupDetector はフォーム入力の自由記述（名前、流入元）にHTMLタグが含まれるかを判定する。
// 入力値そのものは変更しない。
type MarkupDetector interface {
	ContainsMarkup(s string) bool
}

type markupDetector struct {
	policy *bluemonday.Policy
}

// NewMarkupDetector はタグを一切許可しないbluemondayポリシーでMarkupDetectorを生成する。
func NewMarkupDetector() MarkupDetector {
	return &markupDetector{policy: bluemonday.StrictPolicy()}
}

// ContainsMarkup はポリシー適用でタグとして取り除かれる部分があればtrueを返す。
// "x < y" や "Tom & Jerry" のような、エスケープだけで済む文字はタグとみなさない。
func (d *markupDetector) ContainsMarkup(s string) bool {
	if !strings.ContainsAny(s, "<&") {
		return false
	}
	return html.UnescapeString(d.policy.Sanitize(s)) != s
}
