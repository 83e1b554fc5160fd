package revalidate

// DocumentType is the closed set of CMS document kinds the site knows how to
// invalidate. Anything else parses to DocUnknown.
type DocumentType int

const (
	DocUnknown DocumentType = iota
	DocArticle
	DocCategory
	DocPhoto
	DocVideo
	DocTestimonial
	DocSiteSettings
)

var docTypeNames = map[DocumentType]string{
	DocArticle:      "article",
	DocCategory:     "category",
	DocPhoto:        "photo",
	DocVideo:        "video",
	DocTestimonial:  "testimonial",
	DocSiteSettings: "siteSettings",
}

// ParseDocumentType maps a CMS _type value. Matching is exact.
func ParseDocumentType(s string) DocumentType {
	for t, name := range docTypeNames {
		if name == s {
			return t
		}
	}
	return DocUnknown
}

func (t DocumentType) String() string {
	if name, ok := docTypeNames[t]; ok {
		return name
	}
	return "unknown"
}
