package flows

import "errors"

// isError is errors.Is tolerant of unset host sentinels.
func isError(err, target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(err, target)
}
