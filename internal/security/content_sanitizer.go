// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 送信データの暗号化（Codec）、リカバリーリンクの署名、
// 注文データのテキストサニタイズ、送信先URLのSSRF防止を含む。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は注文・カート由来の自由入力テキストをサニタイズするインターフェース。
// 送信データに氏名・住所・IPアドレスなどを載せる前に使用する。
type TextSanitizerService interface {
	// Sanitize はHTMLタグを全て除去し、前後の空白を取り除いたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyでタグを全て除去する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// bluemondayがエスケープした実体参照は元の文字に戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
