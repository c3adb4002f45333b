package handlers

import (
	"fmt"
	"net/http"
)

// RootHandler serves a plain-text banner on GET /.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	versionMu.RLock()
	v := versionInfo.Version
	versionMu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "studiosync %s: POST /upload to copy a source folder into a Studio session\n", v)
}
