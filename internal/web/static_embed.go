package web

import (
	"embed"
	"net/http"
)

//go:embed static/*.html
var staticFS embed.FS

func servePage(w http.ResponseWriter, r *http.Request, name string) {
	data, err := staticFS.ReadFile(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
