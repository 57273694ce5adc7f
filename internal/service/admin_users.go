// Пакет service — бизнес-логика User Admin Module.
// admin_users.go — администрирование пользователей: Keycloak + профили в хранилище документов.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/user-admin/internal/domain/model"
	"github.com/bigkaa/goartstore/user-admin/internal/domain/rbac"
	"github.com/bigkaa/goartstore/user-admin/internal/keycloak"
	"github.com/bigkaa/goartstore/user-admin/internal/repository"
)

// timestampLayout — RFC 3339 UTC с миллисекундами (2024-05-01T10:00:00.000Z).
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Имена операций в логах и метриках.
const (
	OpCreateUser = "createUserWithRole"
	OpSetStatus  = "setUserStatus"
	OpSetRole    = "setUserRole"
	OpWhoAmI     = "whoami"
)

// IdentityProvider — операции с аккаунтами во внешнем Identity Provider.
// Реализуется *keycloak.Client.
type IdentityProvider interface {
	GetUserByEmail(ctx context.Context, email string) (*model.IdentityAccount, error)
	CreateUser(ctx context.Context, acc model.NewAccount) (*model.IdentityAccount, error)
	SetCustomClaims(ctx context.Context, uid string, claims map[string]string) error
	SetDisabled(ctx context.Context, uid string, disabled bool) error
}

// CreateUserResult — результат создания пользователя.
type CreateUserResult struct {
	UID string `json:"uid"`
}

// AckResult — подтверждение изменения.
type AckResult struct {
	OK bool `json:"ok"`
}

// WhoAmIResult — диагностика текущего вызывающего.
type WhoAmIResult struct {
	UID        string  `json:"uid"`
	Email      *string `json:"email"`
	HasProfile bool    `json:"hasProfile"`
	Role       *string `json:"role"`
}

// AdminUserService — сервис администрирования пользователей.
// Каждая изменяющая операция выполняет две последовательные записи
// (профиль и аккаунт) без транзакции и без компенсации.
type AdminUserService struct {
	idp      IdentityProvider
	profiles repository.ProfileRepository
	now      func() time.Time
	logger   *slog.Logger
}

// NewAdminUserService создаёт сервис администрирования пользователей.
func NewAdminUserService(
	idp IdentityProvider,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
) *AdminUserService {
	return &AdminUserService{
		idp:      idp,
		profiles: profiles,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "admin_users_service")),
	}
}

// CreateUser создаёт аккаунт с ролью и профиль пользователя.
// Возвращает uid нового аккаунта.
func (s *AdminUserService) CreateUser(ctx context.Context, caller *model.Caller, displayName, email, role string) (*CreateUserResult, error) {
	if caller == nil {
		return nil, s.fail(ctx, OpCreateUser, Unauthenticated("Sign in"))
	}
	if err := s.assertIsAdmin(ctx, caller.UID); err != nil {
		return nil, s.fail(ctx, OpCreateUser, err)
	}

	displayName = strings.TrimSpace(displayName)
	email = strings.TrimSpace(email)
	role, ok := rbac.NormalizeRole(role)
	if !ok {
		return nil, s.fail(ctx, OpCreateUser, InvalidArgument("Invalid role"))
	}
	if displayName == "" || email == "" {
		return nil, s.fail(ctx, OpCreateUser, InvalidArgument("Missing fields"))
	}

	existing, err := s.idp.GetUserByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, s.fail(ctx, OpCreateUser, AlreadyExists("Email already exists"))
	case err != nil && !keycloak.IsUserNotFound(err):
		return nil, s.fail(ctx, OpCreateUser, err)
	}

	account, err := s.idp.CreateUser(ctx, model.NewAccount{
		Email:         email,
		DisplayName:   displayName,
		EmailVerified: false,
		Disabled:      false,
	})
	if err != nil {
		return nil, s.fail(ctx, OpCreateUser, err)
	}

	if err := s.idp.SetCustomClaims(ctx, account.UID, map[string]string{model.FieldRole: role}); err != nil {
		s.warnPartial(ctx, OpCreateUser, "set_custom_claims", account.UID, err)
		return nil, s.fail(ctx, OpCreateUser, err)
	}

	now := s.timestamp()
	err = s.profiles.Merge(ctx, account.UID, map[string]any{
		model.FieldDisplayName: displayName,
		model.FieldEmail:       email,
		model.FieldPhone:       "",
		model.FieldRole:        role,
		model.FieldStatus:      rbac.StatusActive,
		model.FieldCreatedAt:   now,
		model.FieldCreatedBy:   caller.UID,
		model.FieldUpdatedAt:   now,
		model.FieldUpdatedBy:   caller.UID,
	})
	if err != nil {
		s.warnPartial(ctx, OpCreateUser, "write_profile", account.UID, err)
		return nil, s.fail(ctx, OpCreateUser, err)
	}

	s.logger.InfoContext(ctx, "Пользователь создан",
		slog.String("uid", account.UID),
		slog.String("email", email),
		slog.String("role", role),
		slog.String("created_by", caller.UID),
	)
	return &CreateUserResult{UID: account.UID}, nil
}

// SetStatus меняет статус пользователя: сначала профиль, затем флаг disabled аккаунта.
func (s *AdminUserService) SetStatus(ctx context.Context, caller *model.Caller, uid, status string) (*AckResult, error) {
	if caller == nil {
		return nil, s.fail(ctx, OpSetStatus, Unauthenticated("Sign in"))
	}
	if err := s.assertIsAdmin(ctx, caller.UID); err != nil {
		return nil, s.fail(ctx, OpSetStatus, err)
	}

	uid = strings.TrimSpace(uid)
	status = strings.TrimSpace(status)
	if uid == "" || !rbac.IsValidStatus(status) {
		return nil, s.fail(ctx, OpSetStatus, InvalidArgument("Bad input"))
	}

	err := s.profiles.Merge(ctx, uid, map[string]any{
		model.FieldStatus:    status,
		model.FieldUpdatedAt: s.timestamp(),
		model.FieldUpdatedBy: caller.UID,
	})
	if err != nil {
		return nil, s.fail(ctx, OpSetStatus, err)
	}

	if err := s.idp.SetDisabled(ctx, uid, rbac.DisabledFor(status)); err != nil {
		s.warnPartial(ctx, OpSetStatus, "set_disabled", uid, err)
		return nil, s.fail(ctx, OpSetStatus, err)
	}

	s.logger.InfoContext(ctx, "Статус пользователя обновлён",
		slog.String("uid", uid),
		slog.String("status", status),
		slog.String("updated_by", caller.UID),
	)
	return &AckResult{OK: true}, nil
}

// SetRole меняет роль пользователя: сначала профиль, затем custom claim role.
func (s *AdminUserService) SetRole(ctx context.Context, caller *model.Caller, uid, role string) (*AckResult, error) {
	if caller == nil {
		return nil, s.fail(ctx, OpSetRole, Unauthenticated("Sign in"))
	}
	if err := s.assertIsAdmin(ctx, caller.UID); err != nil {
		return nil, s.fail(ctx, OpSetRole, err)
	}

	uid = strings.TrimSpace(uid)
	role, ok := rbac.NormalizeRole(role)
	if !ok {
		return nil, s.fail(ctx, OpSetRole, InvalidArgument("Invalid role"))
	}
	if uid == "" {
		return nil, s.fail(ctx, OpSetRole, InvalidArgument("Missing uid"))
	}

	err := s.profiles.Merge(ctx, uid, map[string]any{
		model.FieldRole:      role,
		model.FieldUpdatedAt: s.timestamp(),
		model.FieldUpdatedBy: caller.UID,
	})
	if err != nil {
		return nil, s.fail(ctx, OpSetRole, err)
	}

	if err := s.idp.SetCustomClaims(ctx, uid, map[string]string{model.FieldRole: role}); err != nil {
		s.warnPartial(ctx, OpSetRole, "set_custom_claims", uid, err)
		return nil, s.fail(ctx, OpSetRole, err)
	}

	s.logger.InfoContext(ctx, "Роль пользователя обновлена",
		slog.String("uid", uid),
		slog.String("role", role),
		slog.String("updated_by", caller.UID),
	)
	return &AckResult{OK: true}, nil
}

// WhoAmI возвращает uid, email и роль вызывающего. Проверки роли admin нет.
func (s *AdminUserService) WhoAmI(ctx context.Context, caller *model.Caller) (*WhoAmIResult, error) {
	if caller == nil {
		return nil, s.fail(ctx, OpWhoAmI, Unauthenticated("Sign in first"))
	}

	res := &WhoAmIResult{UID: caller.UID}
	if caller.Email != "" {
		email := caller.Email
		res.Email = &email
	}

	profile, err := s.profiles.Get(ctx, caller.UID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return res, nil
	case err != nil:
		return nil, s.fail(ctx, OpWhoAmI, err)
	}

	res.HasProfile = true
	if profile.Role != "" {
		role := profile.Role
		res.Role = &role
	}
	return res, nil
}

// assertIsAdmin проверяет, что профиль вызывающего существует и его роль — admin.
// Ошибки чтения возвращаются как есть и транслируются вызывающей операцией.
func (s *AdminUserService) assertIsAdmin(ctx context.Context, uid string) error {
	profile, err := s.profiles.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return PermissionDenied("No profile")
		}
		return err
	}
	if !rbac.IsAdmin(profile.Role) {
		return PermissionDenied("Admin only")
	}
	return nil
}

// fail логирует исходную ошибку с кодом провайдера и возвращает клиентскую.
func (s *AdminUserService) fail(ctx context.Context, op string, err error) error {
	translated := Translate(err)

	level := slog.LevelWarn
	if translated.Kind == KindInternal {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "Callable error",
		slog.String("function", op),
		slog.String("err", err.Error()),
		slog.String("code", ProviderCode(err)),
		slog.Any("info", providerInfo(err)),
		slog.String("kind", string(translated.Kind)),
	)
	return translated
}

// warnPartial фиксирует несогласованность после частично выполненной операции.
func (s *AdminUserService) warnPartial(ctx context.Context, op, stage, uid string, err error) {
	s.logger.WarnContext(ctx, "Операция выполнена частично, данные Keycloak и профиля расходятся",
		slog.String("function", op),
		slog.String("stage", stage),
		slog.String("uid", uid),
		slog.String("error", err.Error()),
	)
}

func (s *AdminUserService) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}
