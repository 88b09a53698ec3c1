package sitehandler

import "strings"

// pagePath maps a request path under prefix to a surface path.
//
// A trailing slash yields redirect, the canonical URL to send the client
// to. Paths with empty, "." or ".." segments, backslashes or NULs are
// rejected rather than cleaned.
func pagePath(urlPath, prefix string) (surface, redirect string, ok bool) {
	rest, found := strings.CutPrefix(urlPath, prefix)
	switch {
	case !found:
		return "", "", false
	case rest == "" || rest == "/":
		return "/", "", true
	case rest[0] != '/' || strings.ContainsAny(rest, "\x00\\"):
		return "", "", false
	}

	trimmed, trailing := strings.CutSuffix(rest, "/")
	for seg := range strings.SplitSeq(trimmed[1:], "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", "", false
		}
	}
	if trailing {
		return "", prefix + trimmed, true
	}
	return rest, "", true
}
