// Пакет keycloak — HTTP-клиент к Keycloak Admin REST API.
// models.go — модели данных Keycloak.
package keycloak

// Атрибуты пользователя Keycloak, которые ведёт User Admin Module.
// Атрибут role попадает в токен через protocol mapper realm как custom claim.
const (
	AttrDisplayName = "displayName"
	AttrRole        = "role"
)

// TokenResponse — ответ на запрос токена через Client Credentials flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// KeycloakUser — пользователь в Keycloak (UserRepresentation).
type KeycloakUser struct { //nolint:revive // stuttering допустим — внешний API Keycloak
	ID            string              `json:"id,omitempty"`
	Username      string              `json:"username,omitempty"`
	Email         string              `json:"email,omitempty"`
	FirstName     string              `json:"firstName,omitempty"`
	LastName      string              `json:"lastName,omitempty"`
	Enabled       bool                `json:"enabled"`
	CreatedAt     int64               `json:"createdTimestamp,omitempty"`
	EmailVerified bool                `json:"emailVerified"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
}

// Attr возвращает первое значение атрибута или пустую строку.
func (u *KeycloakUser) Attr(name string) string {
	if vals := u.Attributes[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// RealmRepresentation — краткая информация о realm.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

// errorRepresentation — тело ответа Keycloak с ошибкой.
// Admin API использует errorMessage, token endpoint — error/error_description.
type errorRepresentation struct {
	ErrorMessage     string `json:"errorMessage"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
