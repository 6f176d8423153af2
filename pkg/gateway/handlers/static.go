package handlers

import (
	"io/fs"
	"net/http"
	"os"
)

// NewStaticHandler serves the browser client. A non-empty dir overrides the
// embedded assets, which lets the client be edited without a rebuild.
func NewStaticHandler(embedded fs.FS, dir string) http.Handler {
	var files fs.FS = embedded
	if dir != "" {
		files = os.DirFS(dir)
	}
	fileServer := http.FileServerFS(files)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeErrorJSON(w, r, http.StatusMethodNotAllowed, &httpError{Type: "invalid_request_error", Message: "method not allowed", Code: "method_not_allowed"})
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}
