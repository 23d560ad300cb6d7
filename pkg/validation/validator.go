package validation

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	apperrors "RetailBackOffice/pkg/errors"
)

// userCodePattern допустимые символы кода пользователя
var userCodePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validatable тело запроса, умеющее проверить себя
type Validatable interface {
	Validate() error
}

// Rules общие правила для полей запросов
var (
	// UserCode код пользователя для входа
	UserCode = []validation.Rule{
		validation.Required,
		validation.Length(1, 64),
		validation.Match(userCodePattern),
	}
	// Email адрес электронной почты
	Email = []validation.Rule{
		validation.Required,
		validation.Length(3, 254),
		is.Email,
	}
	// Secret пароль или токен: только обязательность и разумный верхний предел,
	// политика пароля проверяется отдельно
	Secret = []validation.Rule{
		validation.Required,
		validation.Length(1, 1024),
	}
)

// StringEquals проверяет, что значение совпадает с other (подтверждение пароля)
func StringEquals(other string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != other {
			return errors.New("values do not match")
		}
		return nil
	}
}

// Check проверяет запрос и переводит ошибки валидации в VALIDATION_ERROR.
// Поля перечисляются в детализации в алфавитном порядке.
func Check(v Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	return ToAppError(err)
}

// ToAppError переводит ошибку ozzo-validation в ошибку таксономии
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		return apperrors.New(apperrors.ErrValidation, "invalid request").WithDetails(FormatErrors(fieldErrs))
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return apperrors.Wrap(err, apperrors.ErrInternal, "validation failed")
	}
	return apperrors.New(apperrors.ErrValidation, "invalid request").WithDetails(err.Error())
}

// FormatErrors собирает ошибки полей в одну строку "field: message; ..."
func FormatErrors(errs validation.Errors) string {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, errs[field].Error()))
	}
	return strings.Join(parts, "; ")
}
