// Package ratelimit throttles clients by IP with a token bucket each.
//
// The public listener and the revalidation webhook get separate limiters;
// the webhook's is much tighter since every request is a secret guess.
// State is in memory and per instance. Idle clients are swept after a TTL.
package ratelimit
