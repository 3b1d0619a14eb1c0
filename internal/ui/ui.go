// Package ui serves the single-page web front end.
package ui

import (
	"bytes"
	"embed"
	"net/http"
	"time"
)

//go:embed static/index.html
var static embed.FS

// Handler serves the embedded index page.
func Handler() http.Handler {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		// The file is compiled in; a miss means a broken build.
		panic(err)
	}
	modTime := time.Now()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeContent(w, r, "index.html", modTime, bytes.NewReader(page))
	})
}
