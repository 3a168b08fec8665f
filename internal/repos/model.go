package repos

// RemoteRepository is one starred repository as reported by the provider.
type RemoteRepository struct {
	GitHubID    int64
	Name        string
	FullName    string
	Description *string
	URL         string
	Language    *string
	Stars       int
}

// SyncResult counts what one reconciliation pass did.
type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Changed reports whether the pass wrote anything.
func (r SyncResult) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}
