package sitehandler

import (
	"path"
	"strings"
)

// Renderer build output lives here under content-hashed names.
const buildAssetPrefix = "/_next/static/"

// Files the renderer regenerates from CMS content. They change on publish
// like pages do.
var contentFiles = map[string]bool{
	"/sitemap.xml": true,
	"/robots.txt":  true,
	"/rss.xml":     true,
	"/feed.xml":    true,
}

// cachePolicy picks the Cache-Control sent with a 200 for urlPath. Only
// hashed build output is immutable. Files under public/ keep their names
// across deploys and get OtherCacheControl.
func cachePolicy(urlPath string, o *Options) string {
	if strings.HasPrefix(urlPath, buildAssetPrefix) {
		return o.AssetCacheControl
	}
	if contentFiles[urlPath] {
		return o.HTMLCacheControl
	}
	switch strings.ToLower(path.Ext(urlPath)) {
	case "", ".html", ".htm":
		return o.HTMLCacheControl
	default:
		return o.OtherCacheControl
	}
}
