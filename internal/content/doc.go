// Package content is the typed query layer over the content store.
//
// Every query is declared once in a catalogue keyed by [QueryID]. A [Client]
// executes catalogue queries through a [Transport] with a per-fetch timeout
// and reports failures as [*FetchError]; it never retries and never caches.
// [FetchOne] and [FetchList] decode results into the closed document types of
// package cms and validate them before returning.
//
// Transports:
//   - [SanityTransport]: GROQ over the store's HTTP query API
//   - [S3Transport]: a published JSON export, one object per content type
//   - [Store]: an fs tree of JSON, YAML and markdown documents held in an
//     atomically swapped [Snapshot], reloaded by a [Watcher] on change
package content
