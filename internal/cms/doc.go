// Package cms declares the closed set of content types the site consumes and
// one named Go type per content type.
//
// Documents coming from the content store are decoded into these types and
// validated at the fetch boundary (see package content); nothing downstream
// handles an untyped document.
package cms
