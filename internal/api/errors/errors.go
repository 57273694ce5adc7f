// Пакет errors — ответы с ошибками callable-протокола.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bigkaa/goartstore/user-admin/internal/service"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusByKind — HTTP-статус для каждого вида клиентской ошибки.
var statusByKind = map[service.Kind]int{
	service.KindUnauthenticated:  http.StatusUnauthorized,
	service.KindInvalidArgument:  http.StatusBadRequest,
	service.KindAlreadyExists:    http.StatusConflict,
	service.KindPermissionDenied: http.StatusForbidden,
	service.KindInternal:         http.StatusInternalServerError,
}

// StatusFor возвращает HTTP-статус для вида ошибки (500 для неизвестного).
func StatusFor(kind service.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError записывает ответ ошибки в формате callable-протокола.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// WriteServiceError записывает клиентскую ошибку сервиса.
// Неклассифицированная ошибка отдаётся как internal "Internal error".
func WriteServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		InternalError(w, "Internal error")
		return
	}
	WriteError(w, StatusFor(svcErr.Kind), string(svcErr.Kind), svcErr.Message)
}

// --- Конструкторы для типичных ошибок ---

// Unauthenticated — 401 нет или недействителен bearer-токен.
func Unauthenticated(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, string(service.KindUnauthenticated), message)
}

// MethodNotAllowed — 405 callable-функции принимают только POST.
func MethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", http.MethodPost)
	WriteError(w, http.StatusMethodNotAllowed, string(service.KindInvalidArgument), "Method not allowed")
}

// NotFound — 404 неизвестная функция.
func NotFound(w http.ResponseWriter) {
	WriteError(w, http.StatusNotFound, "not-found", "Function not found")
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, string(service.KindInternal), message)
}
