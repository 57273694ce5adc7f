// handler.go — основной обработчик API: callable-протокол поверх HTTP.
// Запрос: POST /v1/{function} с телом {"data": {...}}.
// Ответ: 200 {"result": ...} или {"error": {"code", "message"}}.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/user-admin/internal/api/errors"
	"github.com/bigkaa/goartstore/user-admin/internal/api/middleware"
	"github.com/bigkaa/goartstore/user-admin/internal/domain/model"
	"github.com/bigkaa/goartstore/user-admin/internal/service"
)

// maxBodyBytes — предельный размер тела callable-запроса.
const maxBodyBytes = 64 << 10

// AdminUsers — операции администрирования пользователей.
// Реализуется *service.AdminUserService.
type AdminUsers interface {
	CreateUser(ctx context.Context, caller *model.Caller, displayName, email, role string) (*service.CreateUserResult, error)
	SetStatus(ctx context.Context, caller *model.Caller, uid, status string) (*service.AckResult, error)
	SetRole(ctx context.Context, caller *model.Caller, uid, role string) (*service.AckResult, error)
	WhoAmI(ctx context.Context, caller *model.Caller) (*service.WhoAmIResult, error)
}

// APIHandler — обработчик callable-функций и health endpoints.
type APIHandler struct {
	health *HealthHandler
	users  AdminUsers
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, users AdminUsers, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health: health,
		users:  users,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// callableRequest — конверт запроса callable-функции.
type callableRequest[T any] struct {
	Data T `json:"data"`
}

// callableResponse — конверт успешного ответа.
type callableResponse struct {
	Result any `json:"result"`
}

// errMalformedRequest — тело запроса не разобрано.
var errMalformedRequest = errors.New("некорректное тело callable-запроса")

// decodeData разбирает {"data": ...} в dst. Пустое тело означает пустые данные.
func decodeData[T any](r *http.Request, dst *T) error {
	var req callableRequest[T]
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errMalformedRequest
	}
	*dst = req.Data
	return nil
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeResult записывает успешный ответ callable-функции.
func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, callableResponse{Result: result})
}

// writeCallableError учитывает ошибку в метриках и отдаёт её клиенту.
func (h *APIHandler) writeCallableError(w http.ResponseWriter, function string, err error) {
	kind := service.KindInternal
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		kind = svcErr.Kind
	} else {
		h.logger.Error("Неклассифицированная ошибка callable-функции",
			slog.String("function", function),
			slog.String("error", err.Error()),
		)
	}
	middleware.RecordCallableError(function, string(kind))
	apierrors.WriteServiceError(w, err)
}

// writeMalformed отдаёт invalid-argument для неразобранного тела.
func (h *APIHandler) writeMalformed(w http.ResponseWriter, function string) {
	h.writeCallableError(w, function, service.InvalidArgument("Malformed request body"))
}
