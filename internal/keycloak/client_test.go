package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/user-admin/internal/domain/model"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockKeycloak создаёт mock HTTP-сервер Keycloak.
// tokenHandler обрабатывает запросы на получение токена.
// adminHandler обрабатывает запросы к Admin REST API.
func setupMockKeycloak(t *testing.T, tokenHandler, adminHandler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()

	// Token endpoint
	mux.HandleFunc("/realms/useradmin/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenHandler != nil {
			tokenHandler(w, r)
			return
		}
		// Дефолтный ответ: валидный токен на 300 секунд
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken: "test-access-token",
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	})

	// Admin REST API
	mux.HandleFunc("/admin/realms/useradmin/", func(w http.ResponseWriter, r *http.Request) {
		if adminHandler != nil {
			adminHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(
		server.URL,
		"useradmin",
		"user-admin",
		"test-secret",
		server.Client(),
		testLogger(),
	)

	return server, client
}

// TestClient_TokenCaching проверяет кэширование токена.
func TestClient_TokenCaching(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "cached-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	ctx := context.Background()

	// Первый запрос — получение токена
	token1, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token1 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token1)
	}

	// Второй запрос — из кэша (не должен вызывать HTTP)
	token2, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token2 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token2)
	}

	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_TokenRefresh проверяет обновление истёкшего токена.
func TestClient_TokenRefresh(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "refreshed-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	// Устанавливаем «просроченный» токен в кэш
	client.accessToken = "old-token"
	client.tokenExpiry = time.Now().Add(-time.Second)

	ctx := context.Background()
	token, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка обновления токена: %v", err)
	}
	if token != "refreshed-token" {
		t.Errorf("ожидался refreshed-token, получен %s", token)
	}
	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_TokenRefreshBefore30s проверяет обновление за 30 секунд до истечения.
func TestClient_TokenRefreshBefore30s(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "new-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	// Токен истекает через 20 секунд — должен обновиться (< 30s)
	client.accessToken = "expiring-token"
	client.tokenExpiry = time.Now().Add(20 * time.Second)

	ctx := context.Background()
	token, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка обновления токена: %v", err)
	}
	if token != "new-token" {
		t.Errorf("ожидался new-token, получен %s", token)
	}
}

// TestClient_ClientCredentialsFlow проверяет формат запроса Client Credentials.
func TestClient_ClientCredentialsFlow(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			// Проверяем метод
			if r.Method != http.MethodPost {
				t.Errorf("ожидался POST, получен %s", r.Method)
			}
			// Проверяем Content-Type
			ct := r.Header.Get("Content-Type")
			if ct != "application/x-www-form-urlencoded" {
				t.Errorf("ожидался Content-Type application/x-www-form-urlencoded, получен %s", ct)
			}
			// Проверяем параметры
			if err := r.ParseForm(); err != nil {
				t.Fatalf("Ошибка парсинга формы: %v", err)
			}
			if r.Form.Get("grant_type") != "client_credentials" {
				t.Errorf("ожидался grant_type=client_credentials, получен %s", r.Form.Get("grant_type"))
			}
			if r.Form.Get("client_id") != "user-admin" {
				t.Errorf("ожидался client_id=user-admin, получен %s", r.Form.Get("client_id"))
			}
			if r.Form.Get("client_secret") != "test-secret" {
				t.Errorf("ожидался client_secret=test-secret, получен %s", r.Form.Get("client_secret"))
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "ok",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	_, err := client.getToken(context.Background())
	if err != nil {
		t.Fatalf("Ошибка: %v", err)
	}
}

// TestClient_TokenError проверяет обработку ошибки получения токена:
// любой статус token endpoint — внутренняя ошибка, не permission-denied
// и не user-not-found.
func TestClient_TokenError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"неверный client secret", http.StatusUnauthorized, `{"error":"invalid_client"}`},
		{"нет доступа", http.StatusForbidden, `{"error":"unauthorized_client"}`},
		{"неверный realm", http.StatusNotFound, `{"error":"Realm does not exist"}`},
		{"ошибка Keycloak", http.StatusInternalServerError, `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := setupMockKeycloak(t,
				func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				},
				nil,
			)

			_, err := client.getToken(context.Background())
			if err == nil {
				t.Fatal("ожидалась ошибка, получен nil")
			}
			var kcErr *Error
			if !errors.As(err, &kcErr) {
				t.Fatalf("ожидалась *Error, получена %T: %v", err, err)
			}
			if kcErr.Status != tt.status {
				t.Errorf("Status = %d, ожидался %d", kcErr.Status, tt.status)
			}
			if kcErr.Code != CodeInternal {
				t.Errorf("Code = %s, ожидался %s", kcErr.Code, CodeInternal)
			}
		})
	}
}

// TestClient_TokenErrorNotUserNotFound проверяет, что поиск по email при
// неверном realm не выглядит как «аккаунт не найден».
func TestClient_TokenErrorNotUserNotFound(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Error("Admin API не должен вызываться без токена")
		},
	)

	_, err := client.GetUserByEmail(context.Background(), "jane@x.com")
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}
	if IsUserNotFound(err) {
		t.Errorf("ошибка token endpoint классифицирована как user-not-found: %v", err)
	}
}

// TestClient_GetUserByEmail проверяет поиск аккаунта по email.
func TestClient_GetUserByEmail(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer test-access-token" {
				t.Errorf("ожидался Bearer test-access-token, получен %s", auth)
			}
			if !strings.HasSuffix(r.URL.Path, "/users") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			q := r.URL.Query()
			if q.Get("exact") != "true" {
				t.Errorf("ожидался exact=true, получен %q", q.Get("exact"))
			}
			if q.Get("email") != "jane@x.com" {
				t.Errorf("ожидался email=jane@x.com, получен %q", q.Get("email"))
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]KeycloakUser{
				{
					ID: "user-1", Username: "jane@x.com", Email: "jane@x.com", Enabled: true,
					Attributes: map[string][]string{AttrDisplayName: {"Jane"}, AttrRole: {"engineer"}},
				},
			})
		},
	)

	acc, err := client.GetUserByEmail(context.Background(), "jane@x.com")
	if err != nil {
		t.Fatalf("Ошибка GetUserByEmail: %v", err)
	}
	if acc.UID != "user-1" {
		t.Errorf("ожидался UID=user-1, получен %s", acc.UID)
	}
	if acc.DisplayName != "Jane" || acc.Role != "engineer" || acc.Disabled {
		t.Errorf("неожиданный аккаунт: %+v", acc)
	}
}

// TestClient_GetUserByEmail_NotFound проверяет код auth/user-not-found при пустом результате.
func TestClient_GetUserByEmail_NotFound(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			// Поиск по подстроке вернул другого пользователя
			json.NewEncoder(w).Encode([]KeycloakUser{
				{ID: "user-2", Email: "jane@x.com.au"},
			})
		},
	)

	_, err := client.GetUserByEmail(context.Background(), "jane@x.com")
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}
	if !IsUserNotFound(err) {
		t.Errorf("ожидалась ошибка user-not-found, получена: %v", err)
	}
}

// TestClient_CreateUser проверяет создание аккаунта и извлечение ID из Location.
func TestClient_CreateUser(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/users") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var req KeycloakUser
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("Ошибка декодирования: %v", err)
			}
			if req.Username != "jane@x.com" || req.Email != "jane@x.com" {
				t.Errorf("ожидались username/email jane@x.com, получены %s/%s", req.Username, req.Email)
			}
			if !req.Enabled {
				t.Error("ожидался enabled=true")
			}
			if req.EmailVerified {
				t.Error("ожидался emailVerified=false")
			}
			if req.Attr(AttrDisplayName) != "Jane" {
				t.Errorf("ожидался displayName=Jane, получен %q", req.Attr(AttrDisplayName))
			}

			w.Header().Set("Location", "https://keycloak/admin/realms/useradmin/users/kc-user-id")
			w.WriteHeader(http.StatusCreated)
		},
	)

	acc, err := client.CreateUser(context.Background(), model.NewAccount{
		Email:       "jane@x.com",
		DisplayName: "Jane",
	})
	if err != nil {
		t.Fatalf("Ошибка CreateUser: %v", err)
	}
	if acc.UID != "kc-user-id" {
		t.Errorf("ожидался UID=kc-user-id, получен %s", acc.UID)
	}
}

// TestClient_CreateUser_Errors проверяет классификацию ошибок Keycloak.
func TestClient_CreateUser_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{
			name:     "дубликат email",
			status:   http.StatusConflict,
			body:     `{"errorMessage":"User exists with same email"}`,
			wantCode: CodeEmailAlreadyExists,
		},
		{
			name:     "дубликат username",
			status:   http.StatusConflict,
			body:     `{"errorMessage":"User exists with same username"}`,
			wantCode: CodeEmailAlreadyExists,
		},
		{
			name:     "прочий конфликт",
			status:   http.StatusConflict,
			body:     `{"errorMessage":"Conflict detected"}`,
			wantCode: CodeUIDAlreadyExists,
		},
		{
			name:     "некорректный email",
			status:   http.StatusBadRequest,
			body:     `{"field":"email","errorMessage":"invalidEmailMessage"}`,
			wantCode: CodeInvalidEmail,
		},
		{
			name:     "нет прав на manage-users",
			status:   http.StatusForbidden,
			body:     `{"error":"unknown_error"}`,
			wantCode: CodePermissionDenied,
		},
		{
			name:     "внутренняя ошибка",
			status:   http.StatusInternalServerError,
			body:     `oops`,
			wantCode: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := setupMockKeycloak(t, nil,
				func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				},
			)

			_, err := client.CreateUser(context.Background(), model.NewAccount{Email: "jane@x.com", DisplayName: "Jane"})
			var kcErr *Error
			if !errors.As(err, &kcErr) {
				t.Fatalf("ожидалась *Error, получена %v", err)
			}
			if kcErr.ProviderCode() != tt.wantCode {
				t.Errorf("код = %q, хотели %q", kcErr.ProviderCode(), tt.wantCode)
			}
			if kcErr.Status != tt.status {
				t.Errorf("статус = %d, хотели %d", kcErr.Status, tt.status)
			}
		})
	}
}

// userStore — mock хранилища пользователя для GET/PUT /users/{id}.
type userStore struct {
	user KeycloakUser
	puts int
}

func (s *userStore) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/"+s.user.ID) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"User not found"}`))
			return
		}
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(s.user)
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&s.user); err != nil {
				t.Fatalf("Ошибка декодирования: %v", err)
			}
			s.puts++
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

// TestClient_SetCustomClaims проверяет, что claims пишутся в атрибуты без потери остальных.
func TestClient_SetCustomClaims(t *testing.T) {
	store := &userStore{user: KeycloakUser{
		ID: "user-1", Email: "jane@x.com", Enabled: true,
		Attributes: map[string][]string{AttrDisplayName: {"Jane"}},
	}}
	_, client := setupMockKeycloak(t, nil, store.handler(t))

	if err := client.SetCustomClaims(context.Background(), "user-1", map[string]string{AttrRole: "engineer"}); err != nil {
		t.Fatalf("Ошибка SetCustomClaims: %v", err)
	}
	if store.puts != 1 {
		t.Errorf("ожидался 1 PUT, было %d", store.puts)
	}
	if store.user.Attr(AttrRole) != "engineer" {
		t.Errorf("role = %q, хотели engineer", store.user.Attr(AttrRole))
	}
	if store.user.Attr(AttrDisplayName) != "Jane" {
		t.Errorf("displayName потерян: %v", store.user.Attributes)
	}
}

// TestClient_SetDisabled проверяет переключение enabled.
func TestClient_SetDisabled(t *testing.T) {
	store := &userStore{user: KeycloakUser{ID: "user-1", Email: "jane@x.com", Enabled: true}}
	_, client := setupMockKeycloak(t, nil, store.handler(t))

	if err := client.SetDisabled(context.Background(), "user-1", true); err != nil {
		t.Fatalf("Ошибка SetDisabled: %v", err)
	}
	if store.user.Enabled {
		t.Error("ожидался enabled=false")
	}

	if err := client.SetDisabled(context.Background(), "user-1", false); err != nil {
		t.Fatalf("Ошибка SetDisabled: %v", err)
	}
	if !store.user.Enabled {
		t.Error("ожидался enabled=true")
	}
}

// TestClient_SetDisabled_UnknownUser проверяет код user-not-found для неизвестного uid.
func TestClient_SetDisabled_UnknownUser(t *testing.T) {
	store := &userStore{user: KeycloakUser{ID: "user-1"}}
	_, client := setupMockKeycloak(t, nil, store.handler(t))

	err := client.SetDisabled(context.Background(), "ghost", true)
	if !IsUserNotFound(err) {
		t.Errorf("ожидалась ошибка user-not-found, получена: %v", err)
	}
	if store.puts != 0 {
		t.Errorf("PUT не должен выполняться, было %d", store.puts)
	}
}

// TestClient_CheckReady проверяет CheckReady.
func TestClient_CheckReady(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimPrefix(r.URL.Path, "/admin/realms/useradmin")
			if path == "" || path == "/" {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(RealmRepresentation{
					Realm:   "useradmin",
					Enabled: true,
				})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	status, msg := client.CheckReady()
	if status != "ok" {
		t.Errorf("ожидался status=ok, получен %s: %s", status, msg)
	}
}

// TestClient_CheckReady_Fail проверяет CheckReady при недоступности.
func TestClient_CheckReady_Fail(t *testing.T) {
	client := New(
		"http://localhost:1", // Несуществующий адрес
		"useradmin",
		"user-admin",
		"secret",
		&http.Client{Timeout: 100 * time.Millisecond},
		testLogger(),
	)

	status, _ := client.CheckReady()
	if status != "fail" {
		t.Errorf("ожидался status=fail, получен %s", status)
	}
}
