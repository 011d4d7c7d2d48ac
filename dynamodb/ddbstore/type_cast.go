package ddbstore

import "fmt"

// mustCast is used on values this package serialized itself; a mismatch means corrupt data.
func mustCast[T any](v any) T {
	out, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("type assertion failed, got %T want %T", v, out))
	}
	return out
}
