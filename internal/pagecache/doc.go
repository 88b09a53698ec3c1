// Package pagecache holds composed pages keyed by surface path.
//
// Reads compute on miss, with concurrent misses for one path sharing a
// single computation. Entries carry cache tags so a single invalidation can
// evict every page built from a family of documents. The cache is local to
// the process and has no eviction policy beyond TTL and invalidation.
package pagecache
