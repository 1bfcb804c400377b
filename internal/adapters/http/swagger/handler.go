package swagger

import (
	"context"
	"html/template"
	"net/http"
)

// Register attaches the API docs page and the OpenAPI spec to mux under
// prefix. Routes:
//
//	GET <prefix>/openapi.yaml -> embedded OpenAPI spec
//	GET <prefix>/docs         -> ReDoc HTML
func Register(_ context.Context, mux *http.ServeMux, prefix string) {
	if mux == nil {
		panic("mux is nil")
	}

	specURL := prefix + "/openapi.yaml"
	mux.HandleFunc("GET "+specURL, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})

	mux.HandleFunc("GET "+prefix+"/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = indexTemplate.Execute(w, specURL)
	})
}

var indexTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Dashboard API</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="https://cdn.redoc.ly/redoc/v2.1.5/bundles/redoc.standalone.js"></script>
    <script>Redoc.init({{.}}, { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`))
