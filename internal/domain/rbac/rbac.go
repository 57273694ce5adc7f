// Пакет rbac — допустимые роли и статусы пользователей.
// Роль хранится в профиле и дублируется в custom claim role Identity Provider.
package rbac

import "strings"

// Роли пользователей.
const (
	RoleAdmin    = "admin"
	RoleStore    = "store"
	RoleDesigner = "designer"
	RoleEngineer = "engineer"
	RoleAccounts = "accounts"
)

// Статусы пользователей.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// allowedRoles — фиксированный allow-list ролей.
var allowedRoles = map[string]bool{
	RoleAdmin:    true,
	RoleStore:    true,
	RoleDesigner: true,
	RoleEngineer: true,
	RoleAccounts: true,
}

// NormalizeRole приводит роль к нижнему регистру и убирает пробелы по краям.
// Второе значение — false, если роль пустая или не входит в allow-list.
func NormalizeRole(raw string) (string, bool) {
	r := strings.ToLower(strings.TrimSpace(raw))
	if !allowedRoles[r] {
		return "", false
	}
	return r, true
}

// IsAdmin — роль ровно admin (сравнение без нормализации).
func IsAdmin(role string) bool {
	return role == RoleAdmin
}

// IsValidStatus проверяет статус: только active или suspended.
func IsValidStatus(status string) bool {
	return status == StatusActive || status == StatusSuspended
}

// DisabledFor возвращает значение флага disabled аккаунта для статуса.
func DisabledFor(status string) bool {
	return status == StatusSuspended
}
