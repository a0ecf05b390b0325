// Package web holds the server-rendered UI assets.
package web

import "embed"

// TemplatesFS holds the page and fragment templates, keyed by file name.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the htmx glue script served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
