package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Models()...))

	s, err := New(db)
	require.NoError(t, err)
	return s
}

func stringPointer(value string) *string {
	return &value
}

func createOwner(t *testing.T, s *Store, githubID int64, username string) *User {
	t.Helper()
	user, err := s.Users().Create(context.Background(), UserCreate{
		GitHubID:    githubID,
		Username:    username,
		AccessToken: "token-" + username,
	})
	require.NoError(t, err)
	return user
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestUserStoreCreateReturnsDatabaseAssignedFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	user, err := s.Users().Create(ctx, UserCreate{
		GitHubID:    42,
		Username:    "octocat",
		AvatarURL:   stringPointer("https://avatars.example.com/42"),
		AccessToken: "gho_first",
	})
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.False(t, user.CreatedAt.IsZero())

	found, err := s.Users().FindByGitHubID(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)
	require.Equal(t, "gho_first", found.AccessToken)
}

func TestUserStoreUpdateAppliesOnlyPresentFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, err := s.Users().Create(ctx, UserCreate{
		GitHubID:    7,
		Username:    "mona",
		AvatarURL:   stringPointer("https://avatars.example.com/7"),
		AccessToken: "gho_old",
	})
	require.NoError(t, err)

	updated, err := s.Users().Update(ctx, user, UserUpdate{AccessToken: stringPointer("gho_new")})
	require.NoError(t, err)
	require.Equal(t, "gho_new", updated.AccessToken)
	require.Equal(t, "mona", updated.Username)
	require.NotNil(t, updated.AvatarURL)
	require.Equal(t, "https://avatars.example.com/7", *updated.AvatarURL)

	reloaded, err := s.Users().Get(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "gho_new", reloaded.AccessToken)
}

func TestUserStoreGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Users().Get(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Users().FindByGitHubID(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserStoreDuplicateGitHubIDIsConflict(t *testing.T) {
	s := openTestStore(t)
	createOwner(t, s, 1, "first")

	_, err := s.Users().Create(context.Background(), UserCreate{GitHubID: 1, Username: "second", AccessToken: "x"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRepositoryStoreExternalIDIsGloballyUnique(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	first := createOwner(t, s, 1, "first")
	second := createOwner(t, s, 2, "second")

	_, err := s.Repositories().Create(ctx, RepositoryCreate{GitHubID: 100, Name: "a", FullName: "x/a", URL: "https://github.com/x/a", OwnerID: first.ID})
	require.NoError(t, err)

	_, err = s.Repositories().Create(ctx, RepositoryCreate{GitHubID: 100, Name: "a", FullName: "x/a", URL: "https://github.com/x/a", OwnerID: second.ID})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRepositoryStoreUpdateClearsNullableColumnsOnlyOnRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := createOwner(t, s, 1, "owner")
	repository, err := s.Repositories().Create(ctx, RepositoryCreate{
		GitHubID:    5,
		Name:        "gin",
		FullName:    "gin-gonic/gin",
		Description: stringPointer("web framework"),
		URL:         "https://github.com/gin-gonic/gin",
		Language:    stringPointer("Go"),
		Stars:       1,
		OwnerID:     owner.ID,
	})
	require.NoError(t, err)

	stars := 10
	updated, err := s.Repositories().Update(ctx, repository, RepositoryUpdate{Stars: &stars})
	require.NoError(t, err)
	require.Equal(t, 10, updated.Stars)
	require.NotNil(t, updated.Description)
	require.NotNil(t, updated.Language)

	updated, err = s.Repositories().Update(ctx, updated, RepositoryUpdate{ClearDescription: true})
	require.NoError(t, err)
	require.Nil(t, updated.Description)
	require.NotNil(t, updated.Language)
}

func TestRepositoryStoreReplaceTagsKeepsOrderAndDeleteKeepsTagRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := createOwner(t, s, 1, "owner")
	repository, err := s.Repositories().Create(ctx, RepositoryCreate{GitHubID: 9, Name: "r", FullName: "o/r", URL: "https://github.com/o/r", OwnerID: owner.ID})
	require.NoError(t, err)

	zeta, err := s.Tags().Create(ctx, "zeta")
	require.NoError(t, err)
	alpha, err := s.Tags().Create(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, s.Repositories().ReplaceTags(ctx, repository.ID, []uint{zeta.ID, alpha.ID}))
	loaded, err := s.Repositories().Get(ctx, repository.ID)
	require.NoError(t, err)
	require.Equal(t, []Tag{*zeta, *alpha}, loaded.Tags)

	require.NoError(t, s.Repositories().Delete(ctx, loaded))
	_, err = s.Repositories().Get(ctx, repository.ID)
	require.ErrorIs(t, err, ErrNotFound)

	var associations int64
	require.NoError(t, s.db.Model(&RepositoryTag{}).Count(&associations).Error)
	require.Zero(t, associations)

	_, err = s.Tags().FindByName(ctx, "zeta")
	require.NoError(t, err)
}

func TestRepositoryStoreQueryFiltersSortsAndPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := createOwner(t, s, 1, "owner")
	other := createOwner(t, s, 2, "other")

	fixtures := []RepositoryCreate{
		{GitHubID: 1, Name: "gin", FullName: "gin-gonic/gin", Description: stringPointer("HTTP web framework"), URL: "u1", Language: stringPointer("Go"), Stars: 70, OwnerID: owner.ID},
		{GitHubID: 2, Name: "react", FullName: "facebook/react", Description: stringPointer("UI library"), URL: "u2", Language: stringPointer("JavaScript"), Stars: 200, OwnerID: owner.ID},
		{GitHubID: 3, Name: "zap", FullName: "uber-go/zap", URL: "u3", Language: stringPointer("Go"), Stars: 20, OwnerID: owner.ID},
		{GitHubID: 4, Name: "secret", FullName: "other/secret", URL: "u4", Language: stringPointer("Rust"), Stars: 1, OwnerID: other.ID},
	}
	created := make([]*Repository, 0, len(fixtures))
	for _, fixture := range fixtures {
		repository, err := s.Repositories().Create(ctx, fixture)
		require.NoError(t, err)
		created = append(created, repository)
	}
	logging, err := s.Tags().Create(ctx, "logging")
	require.NoError(t, err)
	require.NoError(t, s.Repositories().ReplaceTags(ctx, created[2].ID, []uint{logging.ID}))

	all, total, err := s.Repositories().Query(ctx, RepositoryQuery{OwnerID: owner.ID})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, all, 3)
	require.Equal(t, "gin-gonic/gin", all[0].FullName)
	require.NotNil(t, all[0].Tags)

	goOnly, total, err := s.Repositories().Query(ctx, RepositoryQuery{OwnerID: owner.ID, Language: "Go", Sort: SortByStarsDesc})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, []string{"gin-gonic/gin", "uber-go/zap"}, fullNames(goOnly))

	byTag, _, err := s.Repositories().Query(ctx, RepositoryQuery{OwnerID: owner.ID, Search: "LOGG"})
	require.NoError(t, err)
	require.Equal(t, []string{"uber-go/zap"}, fullNames(byTag))
	require.Equal(t, "logging", byTag[0].Tags[0].Name)

	byDescription, _, err := s.Repositories().Query(ctx, RepositoryQuery{OwnerID: owner.ID, Search: "ui lib"})
	require.NoError(t, err)
	require.Equal(t, []string{"facebook/react"}, fullNames(byDescription))

	wildcard, _, err := s.Repositories().Query(ctx, RepositoryQuery{OwnerID: owner.ID, Search: "%"})
	require.NoError(t, err)
	require.Empty(t, wildcard)

	page, total, err := s.Repositories().Query(ctx, RepositoryQuery{OwnerID: owner.ID, Sort: SortByNameAsc, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Equal(t, []string{"uber-go/zap"}, fullNames(page))

	languages, err := s.Repositories().Languages(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Go", "JavaScript"}, languages)
}

func TestTagStoreListByOwnerCountsOnlyOwnRepositories(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := createOwner(t, s, 1, "owner")
	other := createOwner(t, s, 2, "other")

	mine, err := s.Repositories().Create(ctx, RepositoryCreate{GitHubID: 1, Name: "a", FullName: "o/a", URL: "u1", OwnerID: owner.ID})
	require.NoError(t, err)
	theirs, err := s.Repositories().Create(ctx, RepositoryCreate{GitHubID: 2, Name: "b", FullName: "o/b", URL: "u2", OwnerID: other.ID})
	require.NoError(t, err)

	shared, err := s.Tags().Create(ctx, "shared")
	require.NoError(t, err)
	orphan, err := s.Tags().Create(ctx, "orphan")
	require.NoError(t, err)
	require.NoError(t, s.Repositories().ReplaceTags(ctx, mine.ID, []uint{shared.ID}))
	require.NoError(t, s.Repositories().ReplaceTags(ctx, theirs.ID, []uint{shared.ID}))

	usages, err := s.Tags().ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	require.Equal(t, "shared", usages[0].Name)
	require.EqualValues(t, 1, usages[0].RepositoryCount)

	_, err = s.Tags().Get(ctx, orphan.ID)
	require.NoError(t, err)
}

func TestTagStoreFindByNameIsCaseSensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Tags().Create(ctx, "Go")
	require.NoError(t, err)

	_, err = s.Tags().FindByName(ctx, "go")
	require.ErrorIs(t, err, ErrNotFound)

	renamed, err := s.Tags().FindByName(ctx, "Go")
	require.NoError(t, err)
	renamed, err = s.Tags().Update(ctx, renamed, TagUpdate{Name: stringPointer("golang")})
	require.NoError(t, err)
	require.Equal(t, "golang", renamed.Name)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	failure := errors.New("boom")

	err := s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.Tags().Create(ctx, "transient"); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	_, err = s.Tags().FindByName(ctx, "transient")
	require.ErrorIs(t, err, ErrNotFound)
}

func fullNames(repositories []Repository) []string {
	names := make([]string, 0, len(repositories))
	for _, repository := range repositories {
		names = append(names, repository.FullName)
	}
	return names
}
