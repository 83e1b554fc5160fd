// Package pathutil holds the path checks shared by the site handler and the
// ops purge endpoint.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// IsSitePath reports whether p can be forwarded to the renderer or used as a
// cache key: rooted, no NUL or backslash, no dot segments.
func IsSitePath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	if strings.ContainsAny(p, "\x00\\") {
		return false
	}
	return !HasDotSegments(p)
}
