package repository

import (
	"context"

	"github.com/bigkaa/goartstore/user-admin/internal/domain/model"
)

// ProfileRepository — профили пользователей (документы users/{uid}).
type ProfileRepository interface {
	// Get возвращает профиль. Если профиля нет — ErrNotFound.
	Get(ctx context.Context, uid string) (*model.UserProfile, error)
	// Merge выполняет merge-запись переданных полей профиля.
	Merge(ctx context.Context, uid string, fields map[string]any) error
}

// profileRepo — профили поверх DocumentRepository.
type profileRepo struct {
	docs DocumentRepository
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(docs DocumentRepository) ProfileRepository {
	return &profileRepo{docs: docs}
}

func (r *profileRepo) Get(ctx context.Context, uid string) (*model.UserProfile, error) {
	data, err := r.docs.Get(ctx, model.ProfilePath(uid))
	if err != nil {
		return nil, err
	}
	return model.ProfileFromDocument(uid, data), nil
}

func (r *profileRepo) Merge(ctx context.Context, uid string, fields map[string]any) error {
	return r.docs.MergeWrite(ctx, model.ProfilePath(uid), fields)
}
