// Package compose builds one view-model per page surface from content store
// documents.
//
// Each surface declares the queries it depends on (see [Deps]) and whether
// each is optional, required or a lookup. [Composer.Compose] fetches every
// dependency concurrently, lets all fetches settle, then either fails with a
// [*CompositionError] naming the required documents it could not obtain or
// builds the view-model with every asset reference resolved. [AssetPaths]
// lists every asset-bearing field per surface.
//
// [VerifyRegistry] checks the surfaces and their dependencies against the
// invalidation table and is run at startup.
package compose
