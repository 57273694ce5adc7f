// Точка входа User Admin Module — администрирование пользователей:
// аккаунты и роли в Keycloak, профили в хранилище документов PostgreSQL.
// Загружает конфигурацию, применяет миграции, создаёт клиенты один раз
// и передаёт их в сервисный слой, запускает мониторинг зависимостей
// и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/user-admin/internal/api/handlers"
	"github.com/bigkaa/goartstore/user-admin/internal/api/middleware"
	"github.com/bigkaa/goartstore/user-admin/internal/config"
	"github.com/bigkaa/goartstore/user-admin/internal/database"
	"github.com/bigkaa/goartstore/user-admin/internal/keycloak"
	"github.com/bigkaa/goartstore/user-admin/internal/repository"
	"github.com/bigkaa/goartstore/user-admin/internal/server"
	"github.com/bigkaa/goartstore/user-admin/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования; request_id берётся из контекста запроса
	logger := slog.New(middleware.NewRequestIDHandler(config.SetupLogger(cfg).Handler()))
	slog.SetDefault(logger)
	logger.Info("User Admin Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("UA_DEPHEALTH_GROUP") == "" {
		logger.Warn("UA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Миграции хранилища документов
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиенты с CA-сертификатом (Keycloak Admin API и JWKS)
	kcHTTPClient, err := buildHTTPClient(cfg.CACertPath, 30*time.Second)
	if err != nil {
		logger.Error("Ошибка загрузки CA-сертификата", slog.String("path", cfg.CACertPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	jwksHTTPClient, err := buildHTTPClient(cfg.CACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка загрузки CA-сертификата", slog.String("path", cfg.CACertPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.CACertPath != "" {
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.CACertPath))
	}

	// 6. Keycloak Admin API клиент (Identity Provider)
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		kcHTTPClient,
		logger,
	)
	kcClient.SetReadinessTimeout(cfg.KeycloakReadinessTimeout)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 7. Repositories
	docsRepo := repository.NewDocumentRepository(pool)
	profileRepo := repository.NewProfileRepository(docsRepo)

	// 8. Services
	adminUsersSvc := service.NewAdminUserService(kcClient, profileRepo, logger)

	// 9. Health handlers и API handler
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), kcClient, cfg.Region)
	apiHandler := handlers.NewAPIHandler(healthHandler, adminUsersSvc, logger)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		jwksHTTPClient,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "user-admin",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
		TLSSkipVerify: cfg.CACertPath == "",
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("User Admin Module остановлен")
}

// buildHTTPClient создаёт HTTP-клиент; при заданном caCertPath CA добавляется
// к системному пулу доверия.
func buildHTTPClient(caCertPath string, timeout time.Duration) (*http.Client, error) {
	if caCertPath == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("в %s нет PEM-сертификатов", caCertPath)
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}
