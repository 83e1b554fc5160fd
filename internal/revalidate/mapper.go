package revalidate

// PathsFor lists the page paths made stale by a change to p, in the order
// they should be invalidated. Unknown types only invalidate the home page.
func PathsFor(p Payload) []string {
	slug := p.SlugValue()
	switch p.DocumentType() {
	case DocArticle:
		paths := []string{"/", "/blog"}
		if slug != "" {
			paths = append(paths, "/blog/"+slug)
		}
		return paths
	case DocCategory:
		paths := []string{"/blog"}
		if slug != "" {
			paths = append(paths, "/blog/category/"+slug)
		}
		return paths
	case DocPhoto:
		return []string{"/gallery", "/gallery/photos"}
	case DocVideo:
		return []string{"/gallery", "/gallery/videos"}
	case DocTestimonial:
		return []string{"/", "/about"}
	case DocSiteSettings:
		return []string{"/"}
	default:
		return []string{"/"}
	}
}

// TagsFor lists the cache tags made stale by a change to p. Unknown types
// have none.
func TagsFor(p Payload) []string {
	switch p.DocumentType() {
	case DocArticle:
		return withID([]string{"articles"}, "article-", p.ID)
	case DocCategory:
		return withID([]string{"categories"}, "category-", p.ID)
	case DocPhoto:
		return []string{"photos"}
	case DocVideo:
		return []string{"videos"}
	case DocTestimonial:
		return []string{"testimonials"}
	case DocSiteSettings:
		return []string{"site-settings"}
	default:
		return []string{}
	}
}

func withID(tags []string, prefix, id string) []string {
	if id == "" {
		return tags
	}
	return append(tags, prefix+id)
}
