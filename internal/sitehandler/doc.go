// Package sitehandler is the render boundary: it maps a request path to a
// registry surface, serves the surface's view-model as JSON out of the page
// cache, and degrades to the last good copy or an embedded maintenance
// document when composition fails.
package sitehandler
