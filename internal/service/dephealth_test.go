package service

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthPath(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"JWKS realm", "https://keycloak.kryukov.lan/realms/useradmin/protocol/openid-connect/certs",
			"/realms/useradmin/protocol/openid-connect/certs"},
		{"без пути", "https://keycloak.kryukov.lan", "/health"},
		{"некорректный URL", "://bad", "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, healthPath(tt.url))
		})
	}
}

func TestNewDephealthService(t *testing.T) {
	// sql.DB открывается лениво: подключения к базе при создании нет
	db, err := sql.Open("pgx", "postgres://useradmin@127.0.0.1:1/useradmin?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ds, err := NewDephealthService(DephealthConfig{
		ServiceID:     "user-admin",
		Group:         "useradmin",
		DB:            db,
		PostgresURL:   "postgres://useradmin@127.0.0.1:5432/useradmin?sslmode=disable",
		JWKSURL:       "https://keycloak.kryukov.lan/realms/useradmin/protocol/openid-connect/certs",
		CheckInterval: 15 * time.Second,
		TLSSkipVerify: true,
		Registerer:    prometheus.NewRegistry(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NotNil(t, ds)
}
