// Пакет repository — хранилище документов поверх PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — документ не найден.
	ErrNotFound = errors.New("документ не найден")
	// ErrInvalidPath — путь документа не в формате collection/id.
	ErrInvalidPath = errors.New("некорректный путь документа")
)

// PermissionError — отказ PostgreSQL в доступе (insufficient_privilege).
// Код провайдера permission-denied распознаётся трансляцией ошибок.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return "permission-denied: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// ProviderCode возвращает код провайдера для трансляции ошибок.
func (e *PermissionError) ProviderCode() string {
	return "permission-denied"
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// splitPath разбирает путь документа collection/id.
func splitPath(path string) (collection, id string, err error) {
	collection, id, ok := strings.Cut(path, "/")
	if !ok || collection == "" || id == "" || strings.Contains(id, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return collection, id, nil
}

// wrapPgError оборачивает ошибки PostgreSQL, значимые для клиентов.
func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InsufficientPrivilege {
		return &PermissionError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
