// client.go — HTTP-клиент к Keycloak Admin REST API.
// Реализует автоматическое получение service account token через Client Credentials flow,
// кэширование токена (обновление за 30s до expiration).
// Операции: GetUserByEmail, CreateUser, SetCustomClaims, SetDisabled, RealmInfo.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/user-admin/internal/domain/model"
)

// Client — HTTP-клиент к Keycloak Admin REST API.
type Client struct {
	baseURL      string // Базовый URL Keycloak (без trailing slash)
	realm        string // Имя realm
	clientID     string // Client ID для Client Credentials flow
	clientSecret string // Client Secret

	httpClient *http.Client
	logger     *slog.Logger

	// Таймаут CheckReady
	readinessTimeout time.Duration

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент к Keycloak Admin REST API.
// baseURL — базовый URL Keycloak (например, https://keycloak.kryukov.lan).
// realm — имя realm.
// clientID, clientSecret — credentials для Client Credentials flow.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		realm:            realm,
		clientID:         clientID,
		clientSecret:     clientSecret,
		httpClient:       httpClient,
		logger:           logger.With(slog.String("component", "keycloak_client")),
		readinessTimeout: 5 * time.Second,
	}
}

// SetReadinessTimeout задаёт таймаут проверки готовности (UA_KEYCLOAK_READINESS_TIMEOUT).
func (c *Client) SetReadinessTimeout(d time.Duration) {
	if d > 0 {
		c.readinessTimeout = d
	}
}

// --- Аутентификация ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
}

// adminBaseURL возвращает базовый URL Admin REST API для realm.
func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm)
}

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Keycloak токен обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, newTokenError(resp.StatusCode, body)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с авторизацией.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.adminBaseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(op string, resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return newResponseError(op, resp.StatusCode, body)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("%s: декодирование ответа Keycloak: %w", op, err)
		}
	}

	return nil
}

// checkResponse проверяет статус ответа (для запросов без тела ответа).
func checkResponse(op string, resp *http.Response, expectedStatus int) error {
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		body, _ := io.ReadAll(resp.Body)
		return newResponseError(op, resp.StatusCode, body)
	}

	return nil
}

// --- Users API ---

// GetUserByEmail ищет аккаунт по точному совпадению email.
// Если аккаунт не найден — возвращает *Error с кодом CodeUserNotFound.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*model.IdentityAccount, error) {
	const op = "GetUserByEmail"

	path := "/users?exact=true&email=" + url.QueryEscape(email)
	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := decodeResponse(op, resp, &users); err != nil {
		return nil, err
	}

	// Старые версии Keycloak игнорируют exact и ищут по подстроке.
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return toAccount(&users[i]), nil
		}
	}

	return nil, &Error{
		Op:      op,
		Status:  http.StatusNotFound,
		Code:    CodeUserNotFound,
		Message: "There is no user record corresponding to the provided email",
	}
}

// getUser возвращает пользователя по Keycloak ID.
func (c *Client) getUser(ctx context.Context, op, id string) (*KeycloakUser, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var user KeycloakUser
	if err := decodeResponse(op, resp, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// CreateUser создаёт аккаунт. username совпадает с email.
// Возвращает созданный аккаунт с Keycloak ID из Location header.
func (c *Client) CreateUser(ctx context.Context, acc model.NewAccount) (*model.IdentityAccount, error) {
	const op = "CreateUser"

	rep := KeycloakUser{
		Username:      acc.Email,
		Email:         acc.Email,
		FirstName:     acc.DisplayName,
		Enabled:       !acc.Disabled,
		EmailVerified: acc.EmailVerified,
		Attributes: map[string][]string{
			AttrDisplayName: {acc.DisplayName},
		},
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/users", rep)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, newResponseError(op, resp.StatusCode, body)
	}

	// Keycloak возвращает Location header с ID созданного ресурса
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, &Error{Op: op, Status: resp.StatusCode, Code: CodeInternal, Message: "отсутствует Location header в ответе"}
	}

	// Извлекаем ID из Location: .../users/{id}
	id := location[strings.LastIndex(location, "/")+1:]
	if id == "" {
		return nil, &Error{Op: op, Status: resp.StatusCode, Code: CodeInternal, Message: "не удалось извлечь ID из Location: " + location}
	}

	c.logger.Debug("Пользователь создан в Keycloak", slog.String("user_id", id))

	return &model.IdentityAccount{
		UID:         id,
		Email:       acc.Email,
		DisplayName: acc.DisplayName,
		Disabled:    acc.Disabled,
	}, nil
}

// SetCustomClaims записывает custom claims как атрибуты пользователя.
// Остальные атрибуты сохраняются.
func (c *Client) SetCustomClaims(ctx context.Context, uid string, claims map[string]string) error {
	const op = "SetCustomClaims"

	return c.updateUser(ctx, op, uid, func(u *KeycloakUser) {
		if u.Attributes == nil {
			u.Attributes = make(map[string][]string, len(claims))
		}
		for k, v := range claims {
			u.Attributes[k] = []string{v}
		}
	})
}

// SetDisabled включает или отключает аккаунт.
func (c *Client) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	const op = "SetDisabled"

	return c.updateUser(ctx, op, uid, func(u *KeycloakUser) {
		u.Enabled = !disabled
	})
}

// updateUser читает UserRepresentation, применяет mutate и записывает целиком.
// PUT с частичным представлением сбрасывает атрибуты при включённом User Profile.
// GET и PUT не атомарны: два параллельных обновления одного uid (например,
// SetCustomClaims и SetDisabled) могут перезаписать изменения друг друга,
// побеждает последний PUT. Keycloak не поддерживает условный PUT по версии.
func (c *Client) updateUser(ctx context.Context, op, uid string, mutate func(*KeycloakUser)) error {
	user, err := c.getUser(ctx, op, uid)
	if err != nil {
		return err
	}

	mutate(user)

	resp, err := c.doAuthorized(ctx, http.MethodPut, "/users/"+url.PathEscape(uid), user)
	if err != nil {
		return err
	}

	return checkResponse(op, resp, http.StatusNoContent)
}

// --- Realm API ---

// RealmInfo возвращает информацию о realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}

	var realm RealmRepresentation
	if err := decodeResponse("RealmInfo", resp, &realm); err != nil {
		return nil, err
	}

	return &realm, nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность Keycloak через realm info.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.readinessTimeout)
	defer cancel()

	realm, err := c.RealmInfo(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}

	if !realm.Enabled {
		return "degraded", fmt.Sprintf("Realm %s отключён", realm.Realm)
	}

	return "ok", fmt.Sprintf("Realm %s доступен", realm.Realm)
}

// toAccount конвертирует UserRepresentation в доменный аккаунт.
func toAccount(u *KeycloakUser) *model.IdentityAccount {
	displayName := u.Attr(AttrDisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return &model.IdentityAccount{
		UID:         u.ID,
		Email:       u.Email,
		DisplayName: displayName,
		Disabled:    !u.Enabled,
		Role:        u.Attr(AttrRole),
	}
}
