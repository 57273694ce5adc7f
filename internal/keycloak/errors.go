// errors.go — ошибки Keycloak Admin API с кодами провайдера.
package keycloak

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Коды ошибок провайдера. Формат повторяет коды identity-провайдеров
// (auth/...), на которые опирается трансляция ошибок в сервисном слое.
const (
	CodeEmailAlreadyExists = "auth/email-already-exists"
	CodeUIDAlreadyExists   = "auth/uid-already-exists"
	CodeInvalidEmail       = "auth/invalid-email"
	CodeUserNotFound       = "auth/user-not-found"
	CodePermissionDenied   = "permission-denied"
	CodeInternal           = "auth/internal-error"
)

// Error — ошибка ответа Keycloak Admin API.
type Error struct {
	// Op — операция клиента (CreateUser, GetUserByEmail, ...)
	Op string
	// Status — HTTP статус ответа (0, если ответа не было)
	Status int
	// Code — код провайдера (CodeEmailAlreadyExists, ...)
	Code string
	// Message — сообщение Keycloak
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: Keycloak вернул статус %d (%s): %s", e.Op, e.Status, e.Code, e.Message)
}

// ProviderCode возвращает код провайдера для трансляции ошибок.
func (e *Error) ProviderCode() string {
	return e.Code
}

// Info возвращает диагностическую информацию об ошибке для логов.
func (e *Error) Info() map[string]any {
	return map[string]any{
		"op":      e.Op,
		"status":  e.Status,
		"code":    e.Code,
		"message": e.Message,
	}
}

// IsUserNotFound проверяет, является ли ошибка «пользователь не найден».
func IsUserNotFound(err error) bool {
	var kcErr *Error
	return errors.As(err, &kcErr) && kcErr.Code == CodeUserNotFound
}

// newResponseError строит Error из HTTP статуса и тела ответа.
func newResponseError(op string, status int, body []byte) *Error {
	msg := parseErrorMessage(body)
	return &Error{
		Op:      op,
		Status:  status,
		Code:    classify(status, msg),
		Message: msg,
	}
}

// newTokenError строит Error для отказа token endpoint.
// Статус не классифицируется: 401 означает неверный client secret,
// 404 — неверный realm, и то и другое — ошибка конфигурации сервиса,
// а не отказ в доступе вызывающему или отсутствие аккаунта.
func newTokenError(status int, body []byte) *Error {
	return &Error{
		Op:      "token",
		Status:  status,
		Code:    CodeInternal,
		Message: parseErrorMessage(body),
	}
}

// parseErrorMessage извлекает сообщение из тела ответа Keycloak.
// Если тело не JSON — возвращает его как есть.
func parseErrorMessage(body []byte) string {
	var rep errorRepresentation
	if err := json.Unmarshal(body, &rep); err == nil {
		switch {
		case rep.ErrorMessage != "":
			return rep.ErrorMessage
		case rep.ErrorDescription != "":
			return rep.ErrorDescription
		case rep.Error != "":
			return rep.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// classify сопоставляет HTTP статус и сообщение Keycloak с кодом провайдера.
// Для 409 Keycloak сообщает "User exists with same email" / "same username";
// username совпадает с email, поэтому оба случая — email-already-exists.
func classify(status int, msg string) string {
	lower := strings.ToLower(msg)

	switch status {
	case http.StatusConflict:
		if strings.Contains(lower, "email") || strings.Contains(lower, "username") {
			return CodeEmailAlreadyExists
		}
		return CodeUIDAlreadyExists
	case http.StatusBadRequest:
		if strings.Contains(lower, "email") {
			return CodeInvalidEmail
		}
		return CodeInternal
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodePermissionDenied
	case http.StatusNotFound:
		return CodeUserNotFound
	default:
		return CodeInternal
	}
}
