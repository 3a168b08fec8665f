package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
)

// crud is the shared get/create/update base for the concrete stores.
// Every call runs as its own statement unless the handle belongs to a transaction.
type crud[T any] struct {
	db *gorm.DB
}

func (c crud[T]) get(ctx context.Context, id uint) (*T, error) {
	var entity T
	if err := c.db.WithContext(ctx).Take(&entity, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &entity, nil
}

// create inserts the entity and re-reads it so database-assigned columns are populated.
func (c crud[T]) create(ctx context.Context, entity *T) (*T, error) {
	db := c.db.WithContext(ctx)
	if err := db.Create(entity).Error; err != nil {
		return nil, translateError(err)
	}
	return c.reload(ctx, entity)
}

// update writes only the supplied columns. An empty column set is a no-op that still returns a fresh copy.
func (c crud[T]) update(ctx context.Context, entity *T, columns map[string]any) (*T, error) {
	if len(columns) > 0 {
		if err := c.db.WithContext(ctx).Model(entity).Updates(columns).Error; err != nil {
			return nil, translateError(err)
		}
	}
	return c.reload(ctx, entity)
}

// reload relies on gorm using the populated primary key of entity as the lookup condition.
func (c crud[T]) reload(ctx context.Context, entity *T) (*T, error) {
	fresh := *entity
	if err := c.db.WithContext(ctx).Take(&fresh).Error; err != nil {
		return nil, translateError(err)
	}
	return &fresh, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
