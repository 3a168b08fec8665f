package repos

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"go.uber.org/zap"
)

// MaxPageSize caps the number of repositories returned by one List call.
const MaxPageSize = 100

// ServiceConfig wires the repository service.
type ServiceConfig struct {
	Store  *store.Store
	Logger *zap.Logger
}

// Service reconciles starred repositories and manages their tags.
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

// NewService validates the configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, logger: logger}, nil
}

// Sync makes the owner's stored repositories match records in one transaction.
// Rows whose external id is missing from records are deleted along with their tag associations;
// surviving rows are updated in place and keep their tags; unseen ids are created untagged.
// A repeated external id in records is applied once, first occurrence wins.
func (s *Service) Sync(ctx context.Context, ownerID uint, records []RemoteRepository) (SyncResult, error) {
	return s.sync(ctx, opSync, ownerID, records, true)
}

// SyncPartial applies records the way Sync does but never deletes. It is meant for an incomplete
// fetch, where a stored row missing from records may still be starred upstream.
func (s *Service) SyncPartial(ctx context.Context, ownerID uint, records []RemoteRepository) (SyncResult, error) {
	return s.sync(ctx, opSyncPartial, ownerID, records, false)
}

func (s *Service) sync(ctx context.Context, operation string, ownerID uint, records []RemoteRepository, removeStale bool) (SyncResult, error) {
	if ownerID == 0 {
		return SyncResult{}, newServiceError(operation, "missing_owner", errMissingOwner)
	}

	incoming := make([]RemoteRepository, 0, len(records))
	seen := make(map[int64]struct{}, len(records))
	for _, record := range records {
		if record.GitHubID == 0 {
			s.logError(operation, "invalid_record", errInvalidRecord, zap.Uint("owner_id", ownerID), zap.String("full_name", record.FullName))
			return SyncResult{}, newServiceError(operation, "invalid_record", errInvalidRecord)
		}
		if _, duplicate := seen[record.GitHubID]; duplicate {
			continue
		}
		seen[record.GitHubID] = struct{}{}
		incoming = append(incoming, record)
	}

	var result SyncResult
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		repositories := tx.Repositories()
		owned, err := repositories.ListByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		existing := make(map[int64]*store.Repository, len(owned))
		for index := range owned {
			existing[owned[index].GitHubID] = &owned[index]
		}

		for _, repository := range owned {
			if _, keep := seen[repository.GitHubID]; keep || !removeStale {
				continue
			}
			if err := repositories.Delete(ctx, &repository); err != nil {
				return err
			}
			result.Deleted++
		}

		for _, record := range incoming {
			current, found := existing[record.GitHubID]
			if !found {
				if _, err := repositories.Create(ctx, store.RepositoryCreate{
					GitHubID:    record.GitHubID,
					Name:        record.Name,
					FullName:    record.FullName,
					Description: record.Description,
					URL:         record.URL,
					Language:    record.Language,
					Stars:       record.Stars,
					OwnerID:     ownerID,
				}); err != nil {
					return err
				}
				result.Created++
				continue
			}
			update := diff(current, record)
			if update.Empty() {
				result.Unchanged++
				continue
			}
			if _, err := repositories.Update(ctx, current, update); err != nil {
				return err
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		reason := "store_failure"
		if errors.Is(err, store.ErrConflict) {
			reason = "conflict"
		}
		s.logError(operation, reason, err, zap.Uint("owner_id", ownerID), zap.Int("records", len(incoming)))
		return SyncResult{}, newServiceError(operation, reason, err)
	}

	s.logger.Info("starred repositories synced",
		zap.Uint("owner_id", ownerID),
		zap.Bool("partial", !removeStale),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
		zap.Int("unchanged", result.Unchanged),
	)
	return result, nil
}

// SetTags replaces the tag set of one of the owner's repositories with names, in order.
// Names are trimmed and empty ones dropped; duplicates collapse to their first position.
// A repository that is missing or owned by someone else is reported as store.ErrNotFound.
func (s *Service) SetTags(ctx context.Context, repositoryID, ownerID uint, names []string) (*store.Repository, error) {
	cleaned := normalizeTagNames(names)

	var updated *store.Repository
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		repositories := tx.Repositories()
		repository, err := ownedRepository(ctx, repositories, repositoryID, ownerID)
		if err != nil {
			return err
		}

		tags := tx.Tags()
		tagIDs := make([]uint, 0, len(cleaned))
		for _, name := range cleaned {
			tag, err := tags.FindByName(ctx, name)
			if errors.Is(err, store.ErrNotFound) {
				tag, err = tags.Create(ctx, name)
			}
			if err != nil {
				return err
			}
			tagIDs = append(tagIDs, tag.ID)
		}
		if err := repositories.ReplaceTags(ctx, repository.ID, tagIDs); err != nil {
			return err
		}

		updated, err = repositories.Get(ctx, repository.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newServiceError(opSetTags, "not_found", err)
		}
		reason := "store_failure"
		if errors.Is(err, store.ErrConflict) {
			reason = "conflict"
		}
		s.logError(opSetTags, reason, err, zap.Uint("repository_id", repositoryID), zap.Uint("owner_id", ownerID))
		return nil, newServiceError(opSetTags, reason, err)
	}
	return updated, nil
}

// Get returns one of the owner's repositories with its tags.
func (s *Service) Get(ctx context.Context, repositoryID, ownerID uint) (*store.Repository, error) {
	repository, err := ownedRepository(ctx, s.store.Repositories(), repositoryID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newServiceError(opGet, "not_found", err)
		}
		s.logError(opGet, "store_failure", err, zap.Uint("repository_id", repositoryID))
		return nil, newServiceError(opGet, "store_failure", err)
	}
	return repository, nil
}

// ListQuery narrows a listing of the caller's repositories. A zero Limit lists everything.
type ListQuery struct {
	Search   string
	Language string
	Sort     store.RepositorySort
	Offset   int
	Limit    int
}

// List returns the owner's repositories matching query, with tags, and the total match count.
func (s *Service) List(ctx context.Context, ownerID uint, query ListQuery) ([]store.Repository, int64, error) {
	if query.Offset < 0 {
		return nil, 0, newServiceError(opList, "invalid_offset", errNegativeOffset)
	}
	limit := query.Limit
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if limit < 0 {
		limit = 0
	}
	repositories, total, err := s.store.Repositories().Query(ctx, store.RepositoryQuery{
		OwnerID:  ownerID,
		Search:   query.Search,
		Language: query.Language,
		Sort:     query.Sort,
		Offset:   query.Offset,
		Limit:    limit,
	})
	if err != nil {
		s.logError(opList, "store_failure", err, zap.Uint("owner_id", ownerID))
		return nil, 0, newServiceError(opList, "store_failure", err)
	}
	return repositories, total, nil
}

// Languages returns the distinct languages across the owner's repositories.
func (s *Service) Languages(ctx context.Context, ownerID uint) ([]string, error) {
	languages, err := s.store.Repositories().Languages(ctx, ownerID)
	if err != nil {
		s.logError(opLanguages, "store_failure", err, zap.Uint("owner_id", ownerID))
		return nil, newServiceError(opLanguages, "store_failure", err)
	}
	return languages, nil
}

// Tags returns the tags in use on the owner's repositories with usage counts.
func (s *Service) Tags(ctx context.Context, ownerID uint) ([]store.TagUsage, error) {
	usages, err := s.store.Tags().ListByOwner(ctx, ownerID)
	if err != nil {
		s.logError(opTags, "store_failure", err, zap.Uint("owner_id", ownerID))
		return nil, newServiceError(opTags, "store_failure", err)
	}
	return usages, nil
}

func ownedRepository(ctx context.Context, repositories *store.RepositoryStore, repositoryID, ownerID uint) (*store.Repository, error) {
	if repositoryID == 0 || ownerID == 0 {
		return nil, store.ErrNotFound
	}
	repository, err := repositories.Get(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if repository.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return repository, nil
}

func diff(current *store.Repository, record RemoteRepository) store.RepositoryUpdate {
	var update store.RepositoryUpdate
	if current.Name != record.Name {
		update.Name = &record.Name
	}
	if current.FullName != record.FullName {
		update.FullName = &record.FullName
	}
	if !sameOptional(current.Description, record.Description) {
		update.Description = record.Description
		update.ClearDescription = record.Description == nil
	}
	if current.URL != record.URL {
		update.URL = &record.URL
	}
	if !sameOptional(current.Language, record.Language) {
		update.Language = record.Language
		update.ClearLanguage = record.Language == nil
	}
	if current.Stars != record.Stars {
		update.Stars = &record.Stars
	}
	return update
}

func sameOptional(left, right *string) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return *left == *right
}

func normalizeTagNames(names []string) []string {
	cleaned := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, duplicate := seen[trimmed]; duplicate {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("repos service error", attrs...)
}
