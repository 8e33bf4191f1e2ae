package web

import "embed"

// Templates embeds HTML templates used for document rendering.
//
//go:embed templates/reports/*.html
var Templates embed.FS
