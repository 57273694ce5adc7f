package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DocumentRepository — документы с доступом по пути collection/id.
type DocumentRepository interface {
	// Get возвращает поля документа. Если документа нет — ErrNotFound.
	Get(ctx context.Context, path string) (map[string]any, error)
	// MergeWrite создаёт документ или обновляет только переданные поля.
	MergeWrite(ctx context.Context, path string, fields map[string]any) error
}

// documentRepo — реализация DocumentRepository над таблицей documents.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Get(ctx context.Context, path string) (map[string]any, error) {
	collection, id, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = r.db.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapPgError("ошибка получения документа", err)
	}

	data := make(map[string]any)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("ошибка декодирования документа %s: %w", path, err)
	}
	return data, nil
}

// MergeWrite — upsert с объединением JSONB: поля из fields перезаписываются,
// остальные поля существующего документа не меняются.
func (r *documentRepo) MergeWrite(ctx context.Context, path string, fields map[string]any) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("ошибка сериализации документа %s: %w", path, err)
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = documents.data || EXCLUDED.data,
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, collection, id, raw); err != nil {
		return wrapPgError("ошибка merge-записи документа", err)
	}
	return nil
}
