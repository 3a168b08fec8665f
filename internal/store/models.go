package store

import "time"

// User is a GitHub account that has signed in at least once.
type User struct {
	ID          uint      `gorm:"column:id;primaryKey"`
	GitHubID    int64     `gorm:"column:github_id;not null;uniqueIndex"`
	Username    string    `gorm:"column:username;size:190;not null;uniqueIndex"`
	AvatarURL   *string   `gorm:"column:avatar_url;size:512"`
	AccessToken string    `gorm:"column:access_token;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName binds User to its table.
func (User) TableName() string {
	return "users"
}

// Repository is a snapshot of a starred GitHub repository owned by one user.
// GitHubID is unique across the whole store and is the reconciliation key used by sync.
type Repository struct {
	ID          uint    `gorm:"column:id;primaryKey"`
	GitHubID    int64   `gorm:"column:github_id;not null;uniqueIndex"`
	Name        string  `gorm:"column:name;size:190;not null"`
	FullName    string  `gorm:"column:full_name;size:380;not null"`
	Description *string `gorm:"column:description;type:text"`
	URL         string  `gorm:"column:url;size:512;not null"`
	Language    *string `gorm:"column:language;size:64"`
	Stars       int     `gorm:"column:stars;not null;default:0"`
	OwnerID     uint    `gorm:"column:owner_id;not null;index"`

	// Tags is populated by the store loaders; it is never written through gorm associations.
	Tags []Tag `gorm:"-"`
}

// TableName binds Repository to its table.
func (Repository) TableName() string {
	return "repositories"
}

// Tag is a label shared by every user and repository.
type Tag struct {
	ID   uint   `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name;size:190;not null;uniqueIndex"`
}

// TableName binds Tag to its table.
func (Tag) TableName() string {
	return "tags"
}

// RepositoryTag joins repositories and tags. Position keeps the order the tags were supplied in.
type RepositoryTag struct {
	RepositoryID uint `gorm:"column:repository_id;primaryKey;autoIncrement:false"`
	TagID        uint `gorm:"column:tag_id;primaryKey;autoIncrement:false;index"`
	Position     int  `gorm:"column:position;not null;default:0"`
}

// TableName binds RepositoryTag to its table.
func (RepositoryTag) TableName() string {
	return "repository_tags"
}

// TagUsage reports how many of one owner's repositories carry a tag.
type TagUsage struct {
	Tag
	RepositoryCount int64 `gorm:"column:repository_count"`
}

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{&User{}, &Repository{}, &Tag{}, &RepositoryTag{}}
}
