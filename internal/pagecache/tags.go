package pagecache

import (
	"sort"
	"strings"
)

// TagHeader is the response header the renderer lists a page's tags in.
const TagHeader = "X-Cache-Tags"

// routeTags covers pages whose renderer does not send TagHeader. Longest
// prefix wins; "/" only matches the home page itself.
var routeTags = []struct {
	prefix string
	tags   []string
}{
	{"/gallery/photos", []string{"photos"}},
	{"/gallery/videos", []string{"videos"}},
	{"/gallery", []string{"photos", "videos"}},
	{"/blog/category", []string{"categories", "articles"}},
	{"/blog", []string{"articles", "categories"}},
	{"/about", []string{"testimonials"}},
	{"/recommendations", []string{"testimonials"}},
}

var homeTags = []string{"articles", "testimonials", "site-settings"}

// TagsForPath returns the static tags for path.
func TagsForPath(path string) []string {
	if path == "/" || path == "" {
		return append([]string(nil), homeTags...)
	}
	for _, rt := range routeTags {
		if path == rt.prefix || strings.HasPrefix(path, rt.prefix+"/") {
			return append(append([]string(nil), rt.tags...), "site-settings")
		}
	}
	return []string{"site-settings"}
}

// ParseTagHeader splits a comma separated tag list, dropping blanks.
func ParseTagHeader(v string) []string {
	var out []string
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// TagsFor is the full tag set of a page: its route tags plus whatever the
// renderer listed in TagHeader.
func TagsFor(path, header string) []string {
	return mergeTags(TagsForPath(path), ParseTagHeader(header))
}

// mergeTags returns the sorted union of a and b.
func mergeTags(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
