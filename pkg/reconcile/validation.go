package reconcile

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// エラーのフィールド名はJSONタグ名を使用
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateExportOptions エクスポートオプションをバリデーション
func ValidateExportOptions(opts ExportOptions) error {
	return validateStruct(opts)
}

// ValidateDailyRequest 日次分析リクエストをバリデーション
func ValidateDailyRequest(req DailyRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if req.Date.IsZero() {
		return fmt.Errorf("%w: %w", ErrInvalidDate, NewValidationError("date", "分析対象日が指定されていません", ""))
	}
	for _, id := range req.Selection {
		if strings.TrimSpace(id) == "" {
			return NewValidationError("sessions", "空のセッションIDが含まれています", id)
		}
	}
	return nil
}

// ValidateAnalyticsRequest 拡張分析リクエストをバリデーション
func ValidateAnalyticsRequest(req AnalyticsRequest) error {
	return validateStruct(req)
}

// ValidateExportRequest エクスポートリクエスト全体をバリデーション
func ValidateExportRequest(req ExportRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if err := ValidateExportOptions(req.Options); err != nil {
		return err
	}
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && req.Range.To.Before(req.Range.From) {
		return NewValidationError("range", "終了日が開始日より前です",
			req.Range.From.Format(FileDateLayout)+".."+req.Range.To.Format(FileDateLayout))
	}
	return nil
}

// validateStruct runs tag validation and converts the first failure into a *ValidationError
// タグベースのバリデーションを実行し、最初の違反をValidationErrorに変換
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return NewValidationError("request", "リクエストを検証できません", err.Error())
	}

	fe := fieldErrs[0]
	return NewValidationError(fe.Field(), validationMessage(fe), fmt.Sprintf("%v", fe.Value()))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須項目です"
	case "oneof":
		return "許可されていない値です（" + fe.Param() + "）"
	case "max":
		return "長すぎます"
	case "gte":
		return fe.Param() + "以上である必要があります"
	case "lte":
		return fe.Param() + "以下である必要があります"
	default:
		return "無効な値です"
	}
}
