// Package pathcache implements the PathId Cache: a process-local set of
// catalog path IDs already known to have an ancestor chain recorded in
// PathHierarchy for the job currently being built. The Hierarchy Builder
// consults it before issuing a PathHierarchy lookup for a given PathId,
// so a deep tree with repeated parents does not re-query the catalog for
// every file under it.
package pathcache

import "github.com/RoaringBitmap/roaring/roaring64"

// Cache is a compact set of path IDs, backed by a Roaring bitmap rather
// than a Go map: a single build pass over a large job can touch millions
// of path IDs, almost all small and densely clustered, which is exactly
// the shape Roaring compresses well. One Cache is scoped to a single
// hierarchy-build call and discarded afterward; it is not a
// cross-request cache.
type Cache struct {
	seen *roaring64.Bitmap
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{seen: roaring64.New()}
}

// Lookup reports whether pathID has already been inserted.
func (c *Cache) Lookup(pathID uint64) bool {
	return c.seen.Contains(pathID)
}

// Insert records pathID as seen. Idempotent.
func (c *Cache) Insert(pathID uint64) {
	c.seen.Add(pathID)
}

// Len returns the number of distinct path IDs recorded.
func (c *Cache) Len() int {
	return int(c.seen.GetCardinality())
}

// Reset clears the cache back to empty. A bulk update does not call it:
// it keeps one Cache across its whole per-job loop (spec §4.3.4).
func (c *Cache) Reset() {
	c.seen.Clear()
}
