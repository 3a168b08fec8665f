package auth

import "github.com/google/uuid"

// StateGenerator produces the OAuth state nonce bound to a login attempt.
type StateGenerator interface {
	NewState() (string, error)
}

type uuidStateGenerator struct{}

// NewUUIDStateGenerator returns a StateGenerator issuing random UUIDv4 values.
func NewUUIDStateGenerator() StateGenerator {
	return uuidStateGenerator{}
}

func (uuidStateGenerator) NewState() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
