// Package ui holds the server rendered page templates.
package ui

import "embed"

// Templates contains base.gohtml and one directory per page under pages/.
//
//go:embed templates
var Templates embed.FS
