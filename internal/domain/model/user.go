// Пакет model — доменные модели User Admin Module.
package model

// Поля документа профиля в коллекции users.
const (
	FieldDisplayName = "displayName"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldRole        = "role"
	FieldStatus      = "status"
	FieldCreatedAt   = "createdAt"
	FieldCreatedBy   = "createdBy"
	FieldUpdatedAt   = "updatedAt"
	FieldUpdatedBy   = "updatedBy"
)

// ProfilesCollection — коллекция документов профилей.
const ProfilesCollection = "users"

// ProfilePath возвращает путь документа профиля: users/{uid}.
func ProfilePath(uid string) string {
	return ProfilesCollection + "/" + uid
}

// UserProfile — профиль пользователя в хранилище документов.
// Ключ документа — uid аккаунта в Identity Provider.
type UserProfile struct {
	// UID — идентификатор пользователя (ключ документа)
	UID string
	// DisplayName — отображаемое имя
	DisplayName string
	// Email — адрес электронной почты
	Email string
	// Phone — телефон (при создании пустой)
	Phone string
	// Role — роль (admin, store, designer, engineer, accounts)
	Role string
	// Status — статус (active, suspended)
	Status string
	// CreatedAt, UpdatedAt — RFC 3339 UTC
	CreatedAt string
	UpdatedAt string
	// CreatedBy, UpdatedBy — uid администратора
	CreatedBy string
	UpdatedBy string
}

// ProfileFromDocument собирает UserProfile из полей документа.
// Отсутствующие или нестроковые поля остаются пустыми.
func ProfileFromDocument(uid string, data map[string]any) *UserProfile {
	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}
	return &UserProfile{
		UID:         uid,
		DisplayName: str(FieldDisplayName),
		Email:       str(FieldEmail),
		Phone:       str(FieldPhone),
		Role:        str(FieldRole),
		Status:      str(FieldStatus),
		CreatedAt:   str(FieldCreatedAt),
		UpdatedAt:   str(FieldUpdatedAt),
		CreatedBy:   str(FieldCreatedBy),
		UpdatedBy:   str(FieldUpdatedBy),
	}
}

// IdentityAccount — аккаунт во внешнем Identity Provider.
type IdentityAccount struct {
	UID         string
	Email       string
	DisplayName string
	Disabled    bool
	// Role — значение custom claim role (может быть пустым)
	Role string
}

// NewAccount — параметры создания аккаунта в Identity Provider.
type NewAccount struct {
	Email         string
	DisplayName   string
	EmailVerified bool
	Disabled      bool
}

// Caller — вызывающий, извлечённый из bearer-токена запроса.
// Не сохраняется.
type Caller struct {
	UID   string
	Email string
}
