package user

import "errors"

var (
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrInvalidExternalID is returned for empty or oversized identities.
	ErrInvalidExternalID = errors.New("invalid external identity")
)

const maxExternalIDLength = 64

func validExternalID(id string) bool {
	return id != "" && len(id) <= maxExternalIDLength
}
