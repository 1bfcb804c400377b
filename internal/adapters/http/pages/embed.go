package pages

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// StaticFS returns an http.FileSystem for the embedded assets.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// Should never happen: the directory is embedded above.
		return http.FS(staticFS)
	}
	return http.FS(sub)
}
