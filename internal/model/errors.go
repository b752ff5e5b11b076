// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind は呼び出し元が区別すべき失敗の分類。
type ErrorKind string

const (
	KindUnauthenticated  ErrorKind = "unauthenticated"
	KindForbidden        ErrorKind = "forbidden"
	KindNotFound         ErrorKind = "not_found"
	KindValidationFailed ErrorKind = "validation_failed"
	KindConflict         ErrorKind = "conflict"
	KindUpstreamFailure  ErrorKind = "upstream_failure"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, memorial, payment, media, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因（ログ用、レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf はエラーの分類を返す。APIErrorでない場合は空文字列を返す。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidCredential = "INVALID_CREDENTIALS"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeAdminRequired     = "ADMIN_REQUIRED"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeMemorialNotFound  = "MEMORIAL_NOT_FOUND"
	ErrCodeNoSampleMemorial  = "NO_SAMPLE_MEMORIAL"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeNotPublished      = "MEMORIAL_NOT_PUBLISHED"
	ErrCodeAlreadyPublished  = "ALREADY_PUBLISHED"
	ErrCodePaymentRequired   = "PAYMENT_REFERENCE_REQUIRED"
	ErrCodeEmailTaken        = "EMAIL_ALREADY_REGISTERED"
	ErrCodeUpstream          = "UPSTREAM_FAILURE"
	ErrCodeInvalidURL        = "INVALID_URL"
)

// NewUnauthenticatedError は認証情報がない・無効な場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Kind:     KindUnauthenticated,
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードが誤っている場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:     KindUnauthenticated,
		Code:     ErrCodeInvalidCredential,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認するか、Googleでログインしてください。",
	}
}

// NewForbiddenError は認証済みだが操作が許可されない場合のエラーを生成する。
func NewForbiddenError(action string) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("このメモリアルを%sする権限がありません。", action),
		Category: "auth",
		Action:   "メモリアルの作成者または管理者のアカウントでログインしてください。",
	}
}

// NewAdminRequiredError は管理者権限が必要な操作のエラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeAdminRequired,
		Message:  "管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewMemorialNotFoundError はメモリアルが見つからない場合のエラーを生成する。
func NewMemorialNotFoundError(memorialID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeMemorialNotFound,
		Message:  fmt.Sprintf("指定されたメモリアルが見つかりません: %s", memorialID),
		Category: "memorial",
		Action:   "メモリアルIDを確認してください。",
	}
}

// NewNoSampleMemorialError は公開済みのサンプルが存在しない場合のエラーを生成する。
func NewNoSampleMemorialError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeNoSampleMemorial,
		Message:  "公開済みのサンプルメモリアルがありません。",
		Category: "memorial",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidationFailed,
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストボディの解析に失敗しました: %s", reason),
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値の検証に失敗した場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidationFailed,
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLが指定された場合のエラーを生成する。
func NewInvalidURLError(field, reason string) *APIError {
	return &APIError{
		Kind:     KindValidationFailed,
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("%s のURLが無効です: %s", field, reason),
		Category: "validation",
		Action:   "https:// で始まる公開URLを入力してください。",
	}
}

// NewNotPublishedError は下書きのメモリアルへのゲストブック・ハグを拒否するエラーを生成する。
func NewNotPublishedError(what string) *APIError {
	return &APIError{
		Kind:     KindValidationFailed,
		Code:     ErrCodeNotPublished,
		Message:  fmt.Sprintf("下書きのメモリアルには%sできません。", what),
		Category: "memorial",
		Action:   "メモリアルが公開されてから再度お試しください。",
	}
}

// NewAlreadyPublishedError は公開済みのメモリアルを再度公開しようとした場合のエラーを生成する。
func NewAlreadyPublishedError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeAlreadyPublished,
		Message:  "このメモリアルは既に公開されています。",
		Category: "memorial",
		Action:   "メモリアルページを確認してください。",
	}
}

// NewPaymentRequiredError は公開時に支払い情報が無い場合のエラーを生成する。
func NewPaymentRequiredError() *APIError {
	return &APIError{
		Kind:     KindValidationFailed,
		Code:     ErrCodePaymentRequired,
		Message:  "公開には支払いIDが必要です。",
		Category: "payment",
		Action:   "支払いを完了してから公開してください。",
	}
}

// NewEmailTakenError はメールアドレスが登録済みの場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewUpstreamError は外部サービス（決済・メディアホスト・OAuth）の呼び出し失敗を表すエラーを生成する。
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Kind:     KindUpstreamFailure,
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("%s の呼び出しに失敗しました。", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}
