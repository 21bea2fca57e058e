// Package htdocs holds the chat and search pages.
package htdocs

import (
	"embed"
	"io/fs"
)

//go:embed *.html *.js *.css
var static embed.FS

// FS returns the embedded pages
func FS() fs.FS {
	return &static
}
