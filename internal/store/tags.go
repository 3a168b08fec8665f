package store

import "context"

// TagUpdate is a partial update for a tag.
type TagUpdate struct {
	Name *string
}

// TagStore persists tags. Tags are never deleted.
type TagStore struct {
	crud crud[Tag]
}

// Get returns the tag with the given id or ErrNotFound.
func (s *TagStore) Get(ctx context.Context, id uint) (*Tag, error) {
	return s.crud.get(ctx, id)
}

// Create inserts a tag with the exact name supplied.
func (s *TagStore) Create(ctx context.Context, name string) (*Tag, error) {
	return s.crud.create(ctx, &Tag{Name: name})
}

// Update renames a tag when update.Name is set.
func (s *TagStore) Update(ctx context.Context, existing *Tag, update TagUpdate) (*Tag, error) {
	columns := map[string]any{}
	if update.Name != nil {
		columns["name"] = *update.Name
	}
	return s.crud.update(ctx, existing, columns)
}

// FindByName matches the name exactly, case included.
func (s *TagStore) FindByName(ctx context.Context, name string) (*Tag, error) {
	var tag Tag
	err := s.crud.db.WithContext(ctx).
		Where("name = ?", name).
		Take(&tag).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &tag, nil
}

// ListByOwner returns the tags attached to at least one of the owner's repositories, with usage counts.
func (s *TagStore) ListByOwner(ctx context.Context, ownerID uint) ([]TagUsage, error) {
	usages := []TagUsage{}
	err := s.crud.db.WithContext(ctx).
		Table("tags").
		Select("tags.id, tags.name, COUNT(repository_tags.repository_id) AS repository_count").
		Joins("JOIN repository_tags ON repository_tags.tag_id = tags.id").
		Joins("JOIN repositories ON repositories.id = repository_tags.repository_id").
		Where("repositories.owner_id = ?", ownerID).
		Group("tags.id, tags.name").
		Order("tags.name ASC").
		Scan(&usages).Error
	if err != nil {
		return nil, translateError(err)
	}
	return usages, nil
}
