package repos

import (
	"errors"
	"fmt"
)

// ServiceError carries a stable machine-readable code and wraps the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "repos.service.new"
	opSync        = "repos.sync"
	opSyncPartial = "repos.sync_partial"
	opSetTags     = "repos.set_tags"
	opGet         = "repos.get"
	opList        = "repos.list"
	opLanguages   = "repos.languages"
	opTags        = "repos.tags"
)

var (
	errMissingStore   = errors.New("repos: store is required")
	errMissingOwner   = errors.New("repos: owner id is required")
	errInvalidRecord  = errors.New("repos: remote record is invalid")
	errNegativeOffset = errors.New("repos: offset must not be negative")
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
