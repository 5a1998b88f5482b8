package query

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"ai-chef/internal/pkg/common"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// 錯誤訊息使用 JSON 欄位名稱
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("cuisine", vocabularyRule(IsCuisine))
	_ = v.RegisterValidation("protein", vocabularyRule(IsProtein))
	_ = v.RegisterValidation("taste", vocabularyRule(IsTaste))
	_ = v.RegisterValidation("ingredient", vocabularyRule(IsIngredient))
	_ = v.RegisterValidation("unique_fold", validateUniqueFold)

	return v
}

func vocabularyRule(known func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return known(fl.Field().String())
	}
}

// validateUniqueFold 不分大小寫與空白檢查切片元素不重複
func validateUniqueFold(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice {
		return false
	}
	seen := make(map[string]struct{}, field.Len())
	for i := 0; i < field.Len(); i++ {
		w := normalizeWord(field.Index(i).String())
		if _, ok := seen[w]; ok {
			return false
		}
		seen[w] = struct{}{}
	}
	return true
}

// Validate 檢查查詢是否符合格式，失敗時回傳 *common.ValidationError
func Validate(q RecipeQuery) error {
	trimmed := q
	trimmed.Description = strings.TrimSpace(q.Description)

	err := validate.Struct(trimmed)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.NewValidationError(map[string]string{"query": err.Error()})
	}

	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		key := fieldKey(e.Field())
		if _, exists := fields[key]; exists {
			continue
		}
		fields[key] = message(e)
	}
	return common.NewValidationError(fields)
}

// fieldKey 將 "taste[1]" 轉為 "taste"
func fieldKey(field string) string {
	if i := strings.IndexByte(field, '['); i != -1 {
		return field[:i]
	}
	return field
}

func message(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s items", field, e.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s items", field, e.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "unique_fold":
		return fmt.Sprintf("%s must not contain duplicates", field)
	case "cuisine":
		return fmt.Sprintf("%q is not a supported cuisine", e.Value())
	case "protein":
		return fmt.Sprintf("%q is not a supported protein", e.Value())
	case "taste":
		return fmt.Sprintf("%q is not a supported taste", e.Value())
	case "ingredient":
		return fmt.Sprintf("%q is not a supported ingredient", e.Value())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
