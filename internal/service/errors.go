// errors.go — клиентские ошибки сервисного слоя и трансляция ошибок провайдеров.
package service

import (
	"errors"
	"strings"
)

// Kind — вид клиентской ошибки. Значение совпадает с кодом в HTTP-ответе.
type Kind string

const (
	KindUnauthenticated  Kind = "unauthenticated"
	KindInvalidArgument  Kind = "invalid-argument"
	KindAlreadyExists    Kind = "already-exists"
	KindPermissionDenied Kind = "permission-denied"
	KindInternal         Kind = "internal"
)

// Error — ошибка, возвращаемая клиенту: вид и безопасное сообщение.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Конструкторы клиентских ошибок.

func Unauthenticated(msg string) *Error  { return &Error{Kind: KindUnauthenticated, Message: msg} }
func InvalidArgument(msg string) *Error  { return &Error{Kind: KindInvalidArgument, Message: msg} }
func AlreadyExists(msg string) *Error    { return &Error{Kind: KindAlreadyExists, Message: msg} }
func PermissionDenied(msg string) *Error { return &Error{Kind: KindPermissionDenied, Message: msg} }
func Internal(msg string) *Error         { return &Error{Kind: KindInternal, Message: msg} }

// providerError — ошибка внешнего провайдера с кодом (keycloak.Error,
// repository.PermissionError).
type providerError interface {
	error
	ProviderCode() string
}

// infoError — ошибка с диагностической информацией для логов.
type infoError interface {
	error
	Info() map[string]any
}

// ProviderCode возвращает код провайдера из цепочки ошибок или "".
func ProviderCode(err error) string {
	var pe providerError
	if errors.As(err, &pe) {
		return pe.ProviderCode()
	}
	return ""
}

// providerInfo возвращает диагностическую информацию из цепочки ошибок или nil.
func providerInfo(err error) map[string]any {
	var ie infoError
	if errors.As(err, &ie) {
		return ie.Info()
	}
	return nil
}

// translation — правило трансляции: подстрока кода провайдера → ошибка клиента.
type translation struct {
	substr  string
	kind    Kind
	message string
}

// internalMessage — сообщение клиенту для любой неклассифицированной ошибки.
const internalMessage = "Internal error"

// Порядок правил определяет приоритет.
var translations = []translation{
	{"email-already-exists", KindAlreadyExists, "Email already exists"},
	{"invalid-email", KindInvalidArgument, "Invalid email"},
	{"uid-already-exists", KindAlreadyExists, "UID already exists"},
	{"permission-denied", KindPermissionDenied, "Permission denied"},
}

// Translate преобразует произвольную ошибку в клиентскую.
// Уже классифицированные ошибки (*Error) возвращаются без изменений.
// Неклассифицированная ошибка становится Internal "Internal error":
// исходный текст (коды Keycloak, ошибки pgx) остаётся только в логе.
// Nil-ошибка даёт nil.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}

	code := ProviderCode(err)
	for _, t := range translations {
		if strings.Contains(code, t.substr) {
			return &Error{Kind: t.kind, Message: t.message}
		}
	}

	return Internal(internalMessage)
}
