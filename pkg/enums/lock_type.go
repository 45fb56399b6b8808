package enums

import "fmt"

// LockType distinguishes cart soft locks from checkout locks.
type LockType string

const (
	// LockTypeLocking is taken on cart-add and has no TTL.
	LockTypeLocking LockType = "locking"
	// LockTypeOrdering is taken on checkout entry and is swept after a TTL.
	LockTypeOrdering LockType = "ordering"
)

var validLockTypes = []LockType{LockTypeLocking, LockTypeOrdering}

// String implements fmt.Stringer.
func (l LockType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LockType.
func (l LockType) IsValid() bool {
	for _, candidate := range validLockTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLockType converts raw input into a LockType.
func ParseLockType(value string) (LockType, error) {
	for _, candidate := range validLockTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lock type %q", value)
}
