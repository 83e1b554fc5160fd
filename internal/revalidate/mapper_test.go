package revalidate

import (
	"reflect"
	"testing"
)

func TestMapping_Table(t *testing.T) {
	tests := []struct {
		name      string
		payload   Payload
		wantPaths []string
		wantTags  []string
	}{
		{
			name:      "article with slug",
			payload:   Payload{ID: "a1", Type: "article", Slug: &Slug{Current: "deal"}},
			wantPaths: []string{"/", "/blog", "/blog/deal"},
			wantTags:  []string{"articles", "article-a1"},
		},
		{
			name:      "article without slug",
			payload:   Payload{ID: "a1", Type: "article"},
			wantPaths: []string{"/", "/blog"},
			wantTags:  []string{"articles", "article-a1"},
		},
		{
			name:      "article with blank slug",
			payload:   Payload{ID: "a1", Type: "article", Slug: &Slug{Current: "  "}},
			wantPaths: []string{"/", "/blog"},
			wantTags:  []string{"articles", "article-a1"},
		},
		{
			name:      "category with slug",
			payload:   Payload{ID: "c9", Type: "category", Slug: &Slug{Current: "food"}},
			wantPaths: []string{"/blog", "/blog/category/food"},
			wantTags:  []string{"categories", "category-c9"},
		},
		{
			name:      "category without slug",
			payload:   Payload{ID: "c9", Type: "category"},
			wantPaths: []string{"/blog"},
			wantTags:  []string{"categories", "category-c9"},
		},
		{
			name:      "photo",
			payload:   Payload{ID: "p", Type: "photo", Slug: &Slug{Current: "ignored"}},
			wantPaths: []string{"/gallery", "/gallery/photos"},
			wantTags:  []string{"photos"},
		},
		{
			name:      "video",
			payload:   Payload{ID: "v", Type: "video"},
			wantPaths: []string{"/gallery", "/gallery/videos"},
			wantTags:  []string{"videos"},
		},
		{
			name:      "testimonial",
			payload:   Payload{ID: "t", Type: "testimonial"},
			wantPaths: []string{"/", "/about"},
			wantTags:  []string{"testimonials"},
		},
		{
			name:      "site settings",
			payload:   Payload{ID: "s", Type: "siteSettings"},
			wantPaths: []string{"/"},
			wantTags:  []string{"site-settings"},
		},
		{
			name:      "unknown type",
			payload:   Payload{ID: "x", Type: "author", Slug: &Slug{Current: "dana"}},
			wantPaths: []string{"/"},
			wantTags:  []string{},
		},
		{
			name:      "type match is case sensitive",
			payload:   Payload{ID: "x", Type: "Article"},
			wantPaths: []string{"/"},
			wantTags:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PathsFor(tt.payload); !reflect.DeepEqual(got, tt.wantPaths) {
				t.Errorf("PathsFor = %v, want %v", got, tt.wantPaths)
			}
			if got := TagsFor(tt.payload); !reflect.DeepEqual(got, tt.wantTags) {
				t.Errorf("TagsFor = %v, want %v", got, tt.wantTags)
			}
		})
	}
}

func TestDocumentType_RoundTrip(t *testing.T) {
	for _, name := range []string{"article", "category", "photo", "video", "testimonial", "siteSettings"} {
		dt := ParseDocumentType(name)
		if dt == DocUnknown {
			t.Fatalf("ParseDocumentType(%q) = unknown", name)
		}
		if dt.String() != name {
			t.Fatalf("String() = %q, want %q", dt.String(), name)
		}
	}
	if ParseDocumentType("") != DocUnknown || DocUnknown.String() != "unknown" {
		t.Fatal("empty type should be unknown")
	}
}
