package cache

import "strconv"

// KeyPrefix namespaces every key written by the cache.
const KeyPrefix = "xmly:resolve"

// Key returns the Redis key for an item identifier.
//
// Example:
//
//	xmly:resolve:112233
func Key(id int64) string {
	return KeyPrefix + ":" + strconv.FormatInt(id, 10)
}
