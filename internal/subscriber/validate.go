// Package subscriber は購読申込の検証と受付処理を提供する。
package subscriber

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/leadbox/internal/model"
	"github.com/hitoshi/leadbox/internal/security"
)

// MaxBodyBytes は受け付けるリクエストボディの最大サイズ。
const MaxBodyBytes = 16 << 10

// emailPattern は「空白と@以外 @ 空白と@以外 . 空白と@以外」の形式。
// 既存のランディングページと同じ判定にするため、RFC準拠の厳密な検証は行わない。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Request は購読申込のリクエストボディ。
type Request struct {
	Email  string `json:"email" validate:"required,leademail"`
	Name   string `json:"name" validate:"required"`
	Source string `json:"source" validate:"required"`
}

// ParseRequest はリクエストボディをRequestにデコードする。
// JSONオブジェクトでない、フィールドが文字列でない、MaxBodyBytesを超える場合は
// MalformedPayloadエラーを返す。
func ParseRequest(body io.Reader) (*Request, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxBodyBytes+1))
	if err != nil || len(data) > MaxBodyBytes {
		return nil, model.NewMalformedPayloadError()
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, model.NewMalformedPayloadError()
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, model.NewMalformedPayloadError()
	}
	return &req, nil
}

// Validator は購読申込の正規化と検証を行う。
type Validator struct {
	validate *validator.Validate
	markup   security.MarkupDetector
}

// NewValidator はValidatorを生成する。
// detectorがnilの場合はbluemondayのStrictPolicyで判定する。
func NewValidator(detector security.MarkupDetector) *Validator {
	if detector == nil {
		detector = security.NewMarkupDetector()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	// 登録失敗は起動時のプログラミングエラー
	if err := v.RegisterValidation("leademail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("failed to register leademail validation: %v", err))
	}

	return &Validator{validate: v, markup: detector}
}

// Normalize は各項目の前後の空白を除く。それ以外の変換は行わない。
func (v *Validator) Normalize(req *Request) *Request {
	return &Request{
		Email:  strings.TrimSpace(req.Email),
		Name:   strings.TrimSpace(req.Name),
		Source: strings.TrimSpace(req.Source),
	}
}

// MarkupFields はHTMLタグを含む項目名を返す。
func (v *Validator) MarkupFields(req *Request) []string {
	var fields []string
	if v.markup.ContainsMarkup(req.Name) {
		fields = append(fields, "name")
	}
	if v.markup.ContainsMarkup(req.Source) {
		fields = append(fields, "source")
	}
	return fields
}

// Validate は正規化済みのリクエストを検証する。
// 必須項目の欠落はメールアドレス形式の不正より優先して報告する。
func (v *Validator) Validate(req *Request) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("入力の検証に失敗しました: %w", err)
	}

	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return model.NewMissingFieldError()
		}
	}
	return model.NewInvalidEmailFormatError()
}
