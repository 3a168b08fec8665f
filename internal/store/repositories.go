package store

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// RepositoryCreate carries the columns required to insert a repository.
type RepositoryCreate struct {
	GitHubID    int64
	Name        string
	FullName    string
	Description *string
	URL         string
	Language    *string
	Stars       int
	OwnerID     uint
}

// RepositoryUpdate is a partial update over the mutable snapshot columns. Nil fields are left untouched;
// ClearDescription and ClearLanguage are the only way to write NULL.
type RepositoryUpdate struct {
	Name             *string
	FullName         *string
	Description      *string
	URL              *string
	Language         *string
	Stars            *int
	ClearDescription bool
	ClearLanguage    bool
}

// Empty reports whether the update would not touch any column.
func (u RepositoryUpdate) Empty() bool {
	return len(u.columns()) == 0
}

func (u RepositoryUpdate) columns() map[string]any {
	columns := map[string]any{}
	if u.Name != nil {
		columns["name"] = *u.Name
	}
	if u.FullName != nil {
		columns["full_name"] = *u.FullName
	}
	if u.Description != nil {
		columns["description"] = *u.Description
	} else if u.ClearDescription {
		columns["description"] = nil
	}
	if u.URL != nil {
		columns["url"] = *u.URL
	}
	if u.Language != nil {
		columns["language"] = *u.Language
	} else if u.ClearLanguage {
		columns["language"] = nil
	}
	if u.Stars != nil {
		columns["stars"] = *u.Stars
	}
	return columns
}

// RepositorySort selects the listing order.
type RepositorySort string

const (
	// SortByID lists repositories in the order they were first synced.
	SortByID RepositorySort = ""
	// SortByNameAsc lists repositories alphabetically by full name.
	SortByNameAsc RepositorySort = "name-asc"
	// SortByStarsDesc lists the most starred repositories first.
	SortByStarsDesc RepositorySort = "stars-desc"
)

// RepositoryQuery filters one owner's repositories. A zero Limit returns every match.
type RepositoryQuery struct {
	OwnerID  uint
	Search   string
	Language string
	Sort     RepositorySort
	Offset   int
	Limit    int
}

// RepositoryStore persists repositories and their tag associations.
type RepositoryStore struct {
	crud crud[Repository]
}

// Get returns the repository with its tags or ErrNotFound.
func (s *RepositoryStore) Get(ctx context.Context, id uint) (*Repository, error) {
	repository, err := s.crud.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if repository.Tags, err = s.TagsOf(ctx, repository.ID); err != nil {
		return nil, err
	}
	return repository, nil
}

// Create inserts a repository with no tags.
func (s *RepositoryStore) Create(ctx context.Context, fields RepositoryCreate) (*Repository, error) {
	created, err := s.crud.create(ctx, &Repository{
		GitHubID:    fields.GitHubID,
		Name:        fields.Name,
		FullName:    fields.FullName,
		Description: fields.Description,
		URL:         fields.URL,
		Language:    fields.Language,
		Stars:       fields.Stars,
		OwnerID:     fields.OwnerID,
	})
	if err != nil {
		return nil, err
	}
	created.Tags = []Tag{}
	return created, nil
}

// Update applies the partial update to existing. Tag associations are not touched.
func (s *RepositoryStore) Update(ctx context.Context, existing *Repository, update RepositoryUpdate) (*Repository, error) {
	updated, err := s.crud.update(ctx, existing, update.columns())
	if err != nil {
		return nil, err
	}
	updated.Tags = nil
	return updated, nil
}

// Delete removes the repository and its tag associations. Tag rows are kept.
func (s *RepositoryStore) Delete(ctx context.Context, repository *Repository) error {
	db := s.crud.db.WithContext(ctx)
	if err := db.Where("repository_id = ?", repository.ID).Delete(&RepositoryTag{}).Error; err != nil {
		return translateError(err)
	}
	return translateError(db.Delete(&Repository{}, repository.ID).Error)
}

// FindByGitHubID looks a repository up by provider id, across all owners.
func (s *RepositoryStore) FindByGitHubID(ctx context.Context, githubID int64) (*Repository, error) {
	var repository Repository
	err := s.crud.db.WithContext(ctx).
		Where("github_id = ?", githubID).
		Take(&repository).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &repository, nil
}

// ListByOwner returns every repository owned by ownerID without loading tags.
func (s *RepositoryStore) ListByOwner(ctx context.Context, ownerID uint) ([]Repository, error) {
	var repositories []Repository
	err := s.crud.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&repositories).Error
	if err != nil {
		return nil, translateError(err)
	}
	return repositories, nil
}

// Query returns one page of matching repositories with tags attached, plus the total match count.
func (s *RepositoryStore) Query(ctx context.Context, query RepositoryQuery) ([]Repository, int64, error) {
	base := s.crud.db.WithContext(ctx).
		Model(&Repository{}).
		Where("owner_id = ?", query.OwnerID)
	if language := strings.TrimSpace(query.Language); language != "" {
		base = base.Where("language = ?", language)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := likePattern(search)
		base = base.Where(
			`(LOWER(full_name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\' OR EXISTS (
				SELECT 1 FROM repository_tags rt JOIN tags t ON t.id = rt.tag_id
				WHERE rt.repository_id = repositories.id AND LOWER(t.name) LIKE ? ESCAPE '\'))`,
			pattern, pattern, pattern,
		)
	}
	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	page := base.Order(orderClause(query.Sort))
	if query.Limit > 0 {
		page = page.Limit(query.Limit).Offset(query.Offset)
	}
	var repositories []Repository
	if err := page.Find(&repositories).Error; err != nil {
		return nil, 0, translateError(err)
	}
	if err := s.attachTags(ctx, repositories); err != nil {
		return nil, 0, err
	}
	return repositories, total, nil
}

// Languages returns the sorted distinct non-empty languages across an owner's repositories.
func (s *RepositoryStore) Languages(ctx context.Context, ownerID uint) ([]string, error) {
	languages := []string{}
	err := s.crud.db.WithContext(ctx).
		Model(&Repository{}).
		Where("owner_id = ? AND language IS NOT NULL AND language <> ''", ownerID).
		Distinct().
		Order("language ASC").
		Pluck("language", &languages).Error
	if err != nil {
		return nil, translateError(err)
	}
	return languages, nil
}

// TagsOf returns the tags of one repository in stored order.
func (s *RepositoryStore) TagsOf(ctx context.Context, repositoryID uint) ([]Tag, error) {
	tags := []Tag{}
	err := s.crud.db.WithContext(ctx).
		Table("tags").
		Select("tags.id, tags.name").
		Joins("JOIN repository_tags ON repository_tags.tag_id = tags.id").
		Where("repository_tags.repository_id = ?", repositoryID).
		Order("repository_tags.position ASC").
		Scan(&tags).Error
	if err != nil {
		return nil, translateError(err)
	}
	return tags, nil
}

// ReplaceTags swaps the full association set of a repository for tagIDs, keeping their order.
// Callers are expected to pass distinct ids.
func (s *RepositoryStore) ReplaceTags(ctx context.Context, repositoryID uint, tagIDs []uint) error {
	db := s.crud.db.WithContext(ctx)
	if err := db.Where("repository_id = ?", repositoryID).Delete(&RepositoryTag{}).Error; err != nil {
		return translateError(err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	rows := make([]RepositoryTag, 0, len(tagIDs))
	for position, tagID := range tagIDs {
		rows = append(rows, RepositoryTag{RepositoryID: repositoryID, TagID: tagID, Position: position})
	}
	return translateError(db.Create(&rows).Error)
}

type repositoryTagRow struct {
	RepositoryID uint   `gorm:"column:repository_id"`
	TagID        uint   `gorm:"column:tag_id"`
	TagName      string `gorm:"column:tag_name"`
}

func (s *RepositoryStore) attachTags(ctx context.Context, repositories []Repository) error {
	if len(repositories) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(repositories))
	for _, repository := range repositories {
		ids = append(ids, repository.ID)
	}

	var rows []repositoryTagRow
	err := s.crud.db.WithContext(ctx).
		Table("repository_tags").
		Select("repository_tags.repository_id, tags.id AS tag_id, tags.name AS tag_name").
		Joins("JOIN tags ON tags.id = repository_tags.tag_id").
		Where("repository_tags.repository_id IN ?", ids).
		Order("repository_tags.repository_id ASC, repository_tags.position ASC").
		Scan(&rows).Error
	if err != nil {
		return translateError(err)
	}

	byRepository := make(map[uint][]Tag, len(repositories))
	for _, row := range rows {
		byRepository[row.RepositoryID] = append(byRepository[row.RepositoryID], Tag{ID: row.TagID, Name: row.TagName})
	}
	for index := range repositories {
		tags := byRepository[repositories[index].ID]
		if tags == nil {
			tags = []Tag{}
		}
		repositories[index].Tags = tags
	}
	return nil
}

func orderClause(sort RepositorySort) string {
	switch sort {
	case SortByNameAsc:
		return "LOWER(full_name) ASC, id ASC"
	case SortByStarsDesc:
		return "stars DESC, id ASC"
	default:
		return "id ASC"
	}
}

func likePattern(search string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(strings.ToLower(search)) + "%"
}
