// Package catsentry carries the assets compiled into the daemon binary.
package catsentry

import "embed"

// StaticFiles holds the web UI. Paths are prefixed "static/"; use fs.Sub
// to serve them from the filesystem root.
//
//go:embed static
var StaticFiles embed.FS
