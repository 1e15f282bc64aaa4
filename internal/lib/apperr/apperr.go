// Package apperr описывает прикладные ошибки сервиса биллинга.
// Ошибки помечаются маркерами cockroachdb/errors, поэтому их класс
// сохраняется при любом оборачивании через fmt.Errorf("%s: %w", op, err).
package apperr

import (
	"github.com/cockroachdb/errors"
)

// Маркеры классов ошибок.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrGateway      = errors.New("payment gateway error")
	ErrExpiredCycle = errors.New("expired billing cycle")
)

// Validation возвращает ошибку некорректных входных данных.
func Validation(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// NotFound возвращает ошибку отсутствующей сущности.
func NotFound(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Conflict возвращает ошибку нарушения бизнес-правила состояния.
func Conflict(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

// Unauthorized возвращает ошибку аутентификации.
func Unauthorized(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnauthorized)
}

// Forbidden возвращает ошибку недостаточных прав.
func Forbidden(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrForbidden)
}

// ExpiredCycle сообщает, что текущий период подписки уже закончился.
// Является частным случаем ошибки валидации.
func ExpiredCycle() error {
	err := errors.New("current billing cycle has already ended")
	return errors.Mark(errors.Mark(err, ErrExpiredCycle), ErrValidation)
}

// Gateway оборачивает ошибку платёжного провайдера.
func Gateway(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrGateway)
}

// IsValidation сообщает, относится ли ошибка к классу валидации.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound сообщает, относится ли ошибка к классу "не найдено".
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict сообщает, относится ли ошибка к классу конфликтов.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsUnauthorized сообщает, относится ли ошибка к классу аутентификации.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsForbidden сообщает, относится ли ошибка к классу прав доступа.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsGateway сообщает, пришла ли ошибка от платёжного провайдера.
func IsGateway(err error) bool { return errors.Is(err, ErrGateway) }

// IsExpiredCycle сообщает, что операция отклонена из-за истёкшего периода.
func IsExpiredCycle(err error) bool { return errors.Is(err, ErrExpiredCycle) }

// Message возвращает исходный текст ошибки без префиксов операций.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return errors.UnwrapAll(err).Error()
}
