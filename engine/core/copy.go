package core

import (
	"fmt"

	"github.com/mohae/deepcopy"
)

// DeepCopy returns a deep copy of v. It is the only sanctioned way to take
// mutation snapshots: rollback must restore the exact pre-mutation value, so
// aliasing the original is never acceptable.
func DeepCopy[T any](v T) (T, error) {
	var zero T
	copied := deepcopy.Copy(v)
	result, ok := copied.(T)
	if !ok {
		return zero, fmt.Errorf("failed to cast copied value to type %T", zero)
	}
	return result, nil
}

// MustDeepCopy is DeepCopy for values whose copyability is guaranteed by
// construction (plain structs without interface fields).
func MustDeepCopy[T any](v T) T {
	result, err := DeepCopy(v)
	if err != nil {
		panic(err)
	}
	return result
}
