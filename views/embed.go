// Package views holds the server-rendered templates.
package views

import "embed"

//go:embed layouts/*.html posts/*.html *.html
var FS embed.FS
