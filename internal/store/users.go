package store

import "context"

// UserCreate carries the columns required to insert a user.
type UserCreate struct {
	GitHubID    int64
	Username    string
	AvatarURL   *string
	AccessToken string
}

// UserUpdate is a partial update: nil fields are left untouched.
type UserUpdate struct {
	Username    *string
	AvatarURL   *string
	AccessToken *string
}

func (u UserUpdate) columns() map[string]any {
	columns := map[string]any{}
	if u.Username != nil {
		columns["username"] = *u.Username
	}
	if u.AvatarURL != nil {
		columns["avatar_url"] = *u.AvatarURL
	}
	if u.AccessToken != nil {
		columns["access_token"] = *u.AccessToken
	}
	return columns
}

// UserStore persists users.
type UserStore struct {
	crud crud[User]
}

// Get returns the user with the given internal id or ErrNotFound.
func (s *UserStore) Get(ctx context.Context, id uint) (*User, error) {
	return s.crud.get(ctx, id)
}

// Create inserts a user.
func (s *UserStore) Create(ctx context.Context, fields UserCreate) (*User, error) {
	return s.crud.create(ctx, &User{
		GitHubID:    fields.GitHubID,
		Username:    fields.Username,
		AvatarURL:   fields.AvatarURL,
		AccessToken: fields.AccessToken,
	})
}

// Update applies the non-nil fields of update to existing and returns the stored row.
func (s *UserStore) Update(ctx context.Context, existing *User, update UserUpdate) (*User, error) {
	return s.crud.update(ctx, existing, update.columns())
}

// FindByGitHubID looks a user up by provider id.
func (s *UserStore) FindByGitHubID(ctx context.Context, githubID int64) (*User, error) {
	var user User
	err := s.crud.db.WithContext(ctx).
		Where("github_id = ?", githubID).
		Take(&user).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}
