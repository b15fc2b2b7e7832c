// Package web serves the embedded landing page.
package web

import (
	_ "embed"
	"net/http"
	"strconv"
)

//go:embed index.html
var indexHTML []byte

// Index returns a handler serving the landing page.
func Index() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(indexHTML)))
		_, _ = w.Write(indexHTML)
	})
}
