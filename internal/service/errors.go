package service

import (
	"errors"
	"fmt"

	"tradebridge/pkg/utils"
)

// Ошибки сервисов
var (
	ErrValidation           = errors.New("validation failed")
	ErrFetch                = errors.New("account fetch failed")
	ErrMappingNotFound      = errors.New("mapping not found")
	ErrMappingInError       = errors.New("mapping is in error state and cannot be toggled")
	ErrDeleteNotConfirmed   = errors.New("delete confirmation required")
	ErrPlatformNotSupported = errors.New("account creation is not supported for this platform")
)

// ValidationError - ошибка ввода пользователя. Field указывает на первое
// неверное поле, Fields содержит все найденные ошибки.
type ValidationError struct {
	Field   string
	Message string
	Fields  utils.ValidationErrors
}

func newValidationError(errs utils.ValidationErrors) *ValidationError {
	return &ValidationError{
		Field:   errs[0].Field,
		Message: errs[0].Message,
		Fields:  errs,
	}
}

// fieldError создает ValidationError для одного поля
func fieldError(field, message string) *ValidationError {
	var errs utils.ValidationErrors
	errs.Add(field, message)
	return newValidationError(errs)
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Is позволяет errors.Is(err, ErrValidation)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FetchError - сбой одного источника счетов
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch accounts from %s: %v", e.Source, e.Err)
}

// Unwrap возвращает ошибку источника
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is позволяет errors.Is(err, ErrFetch)
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// NotFoundError - связка с указанным ID не существует
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mapping %s not found", e.ID)
}

// Is позволяет errors.Is(err, ErrMappingNotFound)
func (e *NotFoundError) Is(target error) bool {
	return target == ErrMappingNotFound
}
