package auth

import "fmt"

// CheckNonce accepts only an exact match between the submitted nonce and the
// account's current nonce.
func CheckNonce(expected, actual uint64) error {
	if expected != actual {
		return fmt.Errorf("%w: submitted %d, current %d", ErrBadNonce, expected, actual)
	}
	return nil
}

// CheckDeadline accepts deadline only while it is strictly after now (unix
// seconds). A deadline equal to now has already elapsed.
func CheckDeadline(deadline, now uint64) error {
	if deadline > now {
		return nil
	}
	return fmt.Errorf("%w: deadline %d, now %d", ErrExpired, deadline, now)
}
