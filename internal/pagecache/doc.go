// Package pagecache is the in-process cache of rendered pages.
//
// Entries are keyed by request path and carry the cache tags of the content
// they were rendered from. A CMS change invalidates either an exact path or
// every page carrying a tag, so the cache implements revalidate.Invalidator.
package pagecache
