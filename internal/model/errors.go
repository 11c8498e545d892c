package model

import (
	"fmt"
	"net/http"
)

// APIError はクライアントに返すエラーを表す。
// Statusはレスポンスのステータスコード、Messageはそのままレスポンスボディに載る。
type APIError struct {
	Code    string // エラーコード
	Message string // 利用者向けメッセージ
	Status  int    // HTTPステータスコード
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMalformedPayload    = "MALFORMED_PAYLOAD"
	ErrCodeMissingField        = "MISSING_FIELD"
	ErrCodeInvalidEmailFormat  = "INVALID_EMAIL_FORMAT"
	ErrCodeDuplicateSubscriber = "DUPLICATE_SUBSCRIBER"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	ErrCodePersistence         = "PERSISTENCE_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewMalformedPayloadError はリクエストボディを解析できない場合のエラーを生成する。
func NewMalformedPayloadError() *APIError {
	return &APIError{
		Code:    ErrCodeMalformedPayload,
		Message: "Invalid JSON payload",
		Status:  http.StatusBadRequest,
	}
}

// NewMissingFieldError は必須項目が欠けている場合のエラーを生成する。
func NewMissingFieldError() *APIError {
	return &APIError{
		Code:    ErrCodeMissingField,
		Message: "Missing required fields: email, name, and source are required",
		Status:  http.StatusBadRequest,
	}
}

// NewInvalidEmailFormatError はメールアドレスの形式が不正な場合のエラーを生成する。
func NewInvalidEmailFormatError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidEmailFormat,
		Message: "Invalid email format",
		Status:  http.StatusBadRequest,
	}
}

// NewDuplicateSubscriberError は登録済みのメールアドレスの場合のエラーを生成する。
func NewDuplicateSubscriberError() *APIError {
	return &APIError{
		Code:    ErrCodeDuplicateSubscriber,
		Message: "This email is already subscribed",
		Status:  http.StatusConflict,
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "Too many requests. Please try again later.",
		Status:  http.StatusTooManyRequests,
	}
}

// NewStorageUnavailableError はストレージ未設定時のエラーを生成する。
// 内部の詳細はログのみに記録する。
func NewStorageUnavailableError() *APIError {
	return &APIError{
		Code:    ErrCodeStorageUnavailable,
		Message: "Database configuration error. Please contact support.",
		Status:  http.StatusInternalServerError,
	}
}

// NewPersistenceError は保存失敗時のエラーを生成する。
func NewPersistenceError() *APIError {
	return &APIError{
		Code:    ErrCodePersistence,
		Message: "An unexpected error occurred. Please try again.",
		Status:  http.StatusInternalServerError,
	}
}

// NewUnauthorizedError は管理APIの認証失敗時のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "Unauthorized",
		Status:  http.StatusUnauthorized,
	}
}

// NewInternalError は分類できない内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "An unexpected error occurred. Please try again.",
		Status:  http.StatusInternalServerError,
	}
}
