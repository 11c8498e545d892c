// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// ForwardStatus はメーリングリストへの転送結果を表す。
type ForwardStatus string

const (
	ForwardStatusSuccess ForwardStatus = "success"
	ForwardStatusError   ForwardStatus = "error"
	ForwardStatusPending ForwardStatus = "pending"
)

// Subscriber はランディングページから獲得したリード（購読者）を表す。
// 作成後は更新も削除もされない。
// JSONフィールド名は既存データとの互換のためcamelCaseで固定している。
type Subscriber struct {
	Email            string        `json:"email"`
	Name             string        `json:"name"`
	Source           string        `json:"source"`
	Timestamp        time.Time     `json:"timestamp"`
	UserAgent        string        `json:"userAgent,omitempty"`
	Referrer         string        `json:"referrer,omitempty"`
	ConvertKitStatus ForwardStatus `json:"convertKitStatus,omitempty"`
	ConvertKitError  string        `json:"convertKitError,omitempty"`
}

// Key は重複判定に使うキー（小文字化したメールアドレス）を返す。
func (s *Subscriber) Key() string {
	return EmailKey(s.Email)
}

// EmailKey はメールアドレスを重複判定用のキーに正規化する。
func EmailKey(email string) string {
	return strings.ToLower(email)
}

// ConvertKitCounts は転送結果ごとの件数。
type ConvertKitCounts struct {
	Success int `json:"success"`
	Error   int `json:"error"`
	Pending int `json:"pending"`
}

// Stats は購読者の集計結果。
type Stats struct {
	Total      int              `json:"total"`
	BySource   map[string]int   `json:"bySource"`
	ConvertKit ConvertKitCounts `json:"convertKit"`
}
