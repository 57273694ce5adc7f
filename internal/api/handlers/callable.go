// callable.go — callable-функции администрирования пользователей.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/user-admin/internal/api/middleware"
	"github.com/bigkaa/goartstore/user-admin/internal/service"
)

type createUserData struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

type setStatusData struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
}

type setRoleData struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
}

// CreateUserWithRole — POST /v1/createUserWithRole.
// Создаёт аккаунт в Keycloak, назначает роль и пишет профиль. Доступ: admin.
func (h *APIHandler) CreateUserWithRole(w http.ResponseWriter, r *http.Request) {
	var data createUserData
	if err := decodeData(r, &data); err != nil {
		h.writeMalformed(w, service.OpCreateUser)
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	res, err := h.users.CreateUser(r.Context(), caller, data.DisplayName, data.Email, data.Role)
	if err != nil {
		h.writeCallableError(w, service.OpCreateUser, err)
		return
	}
	writeResult(w, res)
}

// SetUserStatus — POST /v1/setUserStatus. Доступ: admin.
func (h *APIHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var data setStatusData
	if err := decodeData(r, &data); err != nil {
		h.writeMalformed(w, service.OpSetStatus)
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	res, err := h.users.SetStatus(r.Context(), caller, data.UID, data.Status)
	if err != nil {
		h.writeCallableError(w, service.OpSetStatus, err)
		return
	}
	writeResult(w, res)
}

// SetUserRole — POST /v1/setUserRole. Доступ: admin.
func (h *APIHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var data setRoleData
	if err := decodeData(r, &data); err != nil {
		h.writeMalformed(w, service.OpSetRole)
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	res, err := h.users.SetRole(r.Context(), caller, data.UID, data.Role)
	if err != nil {
		h.writeCallableError(w, service.OpSetRole, err)
		return
	}
	writeResult(w, res)
}

// WhoAmI — POST /v1/whoami. Тело запроса не используется.
func (h *APIHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromContext(r.Context())
	res, err := h.users.WhoAmI(r.Context(), caller)
	if err != nil {
		h.writeCallableError(w, service.OpWhoAmI, err)
		return
	}
	writeResult(w, res)
}
