// Package webassets embeds the pages served when the renderer cannot answer.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

const (
	MaintenanceFile = "maintenance.html"
	NotFoundFile    = "404.html"
)

//go:embed fallback
var embedded embed.FS

// FallbackFS holds maintenance.html and 404.html.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}
