// Package cryptoutil holds the hashing helpers shared by the content store,
// the registry, the page cache and the revalidation webhook: hex digests,
// short fingerprints and constant-time comparison.
package cryptoutil
