// Package web holds the dashboard's templates and static assets.
package web

import "embed"

// TemplatesFS holds the page and partial templates (index, editor, kpis).
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds app.css and app.js, served under /static/.
//
//go:embed static
var StaticFS embed.FS
