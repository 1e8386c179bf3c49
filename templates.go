package tplc

import (
	"embed"
	"io/fs"
)

//go:embed templates/starter
var starterTemplates embed.FS

// StarterTemplates exposes the templates `tplc init` scaffolds into a new
// project: an index page, a header partial and sample render data.
func StarterTemplates() fs.FS {
	sub, err := fs.Sub(starterTemplates, "templates/starter")
	if err != nil {
		return starterTemplates
	}
	return sub
}
