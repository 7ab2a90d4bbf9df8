package reconcile

import (
	"errors"
	"fmt"
)

// Common reconciliation errors
// 共通の棚卸分析エラー定義

var (
	// ErrUnknownReportType is returned when an export type is not one of the supported reports
	// 未対応のレポートタイプが指定された場合のエラー
	ErrUnknownReportType = errors.New("未対応のレポートタイプです")

	// ErrInvalidDate is returned when an analysis date is missing
	// 分析対象日が指定されていない場合のエラー
	ErrInvalidDate = errors.New("分析対象日が無効です")

	// ErrStoreUnavailable is returned when the service has no store configured
	// ストアが設定されていない場合のエラー
	ErrStoreUnavailable = errors.New("データストアが利用できません")
)

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

// StorageError wraps a failure of the external store.
// The cause is preserved so callers can inspect it with errors.Is / errors.As.
// 外部ストア呼び出しの失敗を表現（原因エラーを保持）
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e StorageError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// IsValidationError reports whether err carries a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorageError reports whether err carries a *StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
