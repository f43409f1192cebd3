// Package hash implements the deterministic string-to-uint32 hash oxenqueue
// uses to fit a caller-supplied dedup key into the unique_key column's
// 32-bit unsigned integer domain.
package hash

import "github.com/cespare/xxhash/v2"

// UniqueKey hashes key down to the uint32 domain of the unique_key column.
// Truncation keeps the function deterministic and collision rate acceptable
// for a dedup window bounded by a job's live lifetime, not a cryptographic
// guarantee.
func UniqueKey(key string) uint32 {
	return uint32(xxhash.Sum64String(key))
}
