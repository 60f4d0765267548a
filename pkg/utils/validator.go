package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// validator.go - проверка входных данных форм
//
// Функции возвращают error с описанием проблемы или nil.
// Доменные правила (диапазоны position_value) живут в сервисах,
// здесь только переиспользуемые проверки формата.

var (
	ErrEmptyValue     = errors.New("value is required")
	ErrInvalidID      = errors.New("invalid identifier format")
	ErrNameTooLong    = errors.New("name is too long")
	ErrInvalidLogin   = errors.New("login must contain 3-20 digits")
	ErrInvalidServer  = errors.New("invalid server name")
	ErrOutOfRange     = errors.New("value is out of range")
	ErrNotInList      = errors.New("value is not allowed")
	ErrPasswordLength = errors.New("password must be 4-128 characters")
)

// MaxNameLength - максимальная длина отображаемого имени
const MaxNameLength = 120

var (
	idRegex     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
	loginRegex  = regexp.MustCompile(`^[0-9]{3,20}$`)
	serverRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]{1,63}$`)
)

// ValidateID проверяет непрозрачный идентификатор (счета, связки)
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyValue
	}
	if !idRegex.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

// ValidateName проверяет отображаемое имя. Пустое имя допустимо.
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ValidateLogin проверяет номер счета MetaTrader
func ValidateLogin(login string) error {
	if !loginRegex.MatchString(strings.TrimSpace(login)) {
		return ErrInvalidLogin
	}
	return nil
}

// ValidateServer проверяет имя торгового сервера брокера
func ValidateServer(server string) error {
	if !serverRegex.MatchString(strings.TrimSpace(server)) {
		return ErrInvalidServer
	}
	return nil
}

// ValidatePassword проверяет длину пароля счета
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < 4 || n > 128 {
		return ErrPasswordLength
	}
	return nil
}

// ValidateRange проверяет что value лежит в [min, max] включительно
func ValidateRange(value, min, max float64) error {
	if value < min || value > max {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, value, min, max)
	}
	return nil
}

// ValidateOneOf проверяет что value входит в список
func ValidateOneOf(value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (allowed: %s)", ErrNotInList, value, strings.Join(allowed, ", "))
}

// NormalizeEnum приводит значение перечисления к каноническому виду
func NormalizeEnum(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// ============ Агрегация ошибок ============

// FieldError - ошибка конкретного поля формы
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors - список ошибок полей
type ValidationErrors []FieldError

// Add добавляет ошибку поля
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// AddError добавляет ошибку поля, nil игнорируется
func (v *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	v.Add(field, err.Error())
}

// HasErrors возвращает true если есть хотя бы одна ошибка
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}
