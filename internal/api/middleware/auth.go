// auth.go — JWT middleware: проверка bearer-токенов Keycloak через JWKS
// и извлечение вызывающего (uid, email) в контекст запроса.
//
// Запрос без заголовка Authorization пропускается без вызывающего:
// решение (unauthenticated) принимает сама callable-функция.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/user-admin/internal/api/errors"
	"github.com/bigkaa/goartstore/user-admin/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyCaller — вызывающий, извлечённый из JWT.
	ContextKeyCaller contextKey = "caller"
)

// callerClaims — claims токена Keycloak, нужные сервису.
type callerClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS Keycloak.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	logger    *slog.Logger
	issuer    string
	jwtLeeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из Keycloak.
// httpClient — клиент для загрузки JWKS (с CA-сертификатом, если задан UA_CA_CERT_PATH).
// jwksRefreshInterval — интервал обновления ключей (UA_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени (UA_JWT_LEEWAY).
func NewJWTAuth(
	jwksURL string,
	issuer string,
	httpClient *http.Client,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	// NoErrorReturnFirstHTTPReq — стартуем даже если Keycloak ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, issuer, jwtLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:      kf,
		logger:    logger.With(slog.String("component", "jwt_auth")),
		issuer:    issuer,
		jwtLeeway: jwtLeeway,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				apierrors.Unauthenticated(w, "Invalid Authorization header: expected Bearer <token>")
				return
			}

			caller, err := j.parse(r.Context(), strings.TrimSpace(tokenString))
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthenticated(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// parse валидирует токен (RS256, exp, issuer) и возвращает вызывающего.
func (j *JWTAuth) parse(ctx context.Context, tokenString string) (*model.Caller, error) {
	claims := &callerClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("невалидный токен")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("отсутствует sub в токене")
	}

	return &model.Caller{UID: subject, Email: claims.Email}, nil
}

// --- Context helpers ---

// WithCaller помещает вызывающего в контекст.
func WithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, caller)
}

// CallerFromContext извлекает вызывающего из контекста запроса.
// Возвращает nil, если запрос без токена.
func CallerFromContext(ctx context.Context) *model.Caller {
	caller, _ := ctx.Value(ContextKeyCaller).(*model.Caller)
	return caller
}
