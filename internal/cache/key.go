package cache

import "fmt"

// Key builders for the transit read cache. Every component that reads
// or invalidates an entry goes through these so a rename cannot leave
// one side writing keys the other never deletes.

// EntityKey returns the cache key for a single entity.
func EntityKey(kind, id string) string {
	return fmt.Sprintf("entity:%s:%s", kind, id)
}

// OwnerListKey returns the cache key for the list of entities
// attributed to one owner scope.
func OwnerListKey(kind, ownerScope string) string {
	return fmt.Sprintf("list:%s:owner:%s", kind, ownerScope)
}

// AggregateKey returns the cache key for a derived view embedding many
// entities, such as "all" or "live".
func AggregateKey(kind, view string) string {
	return fmt.Sprintf("agg:%s:%s", kind, view)
}
