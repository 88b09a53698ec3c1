// Package revalidate is the inbound boundary for content change
// notifications. A notification is authenticated against a shared secret,
// resolved through the registry and turned into path and tag invalidations
// against the page cache.
//
// The same Revalidate core serves the HTTP webhook and the local file
// store watcher.
package revalidate
