// Package web serves task pages that run in the browser and report to the
// collector. The browser client (studylog.js) and a placeholder index are
// embedded and shadowed by files of the same name in the task directory.
package web

import (
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

//go:embed static
var staticFS embed.FS

// TasksHandler serves files from dir layered over the embedded assets.
// An empty dir serves the embedded assets alone. Paths that match no file
// fall back to index.html.
func TasksHandler(dir string) http.Handler {
	embedded, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	if dir == "" {
		return newHandler(embedded)
	}
	return newHandler(layeredFS{top: os.DirFS(dir), bottom: embedded})
}

// layeredFS opens names from top, then from bottom when top lacks them.
type layeredFS struct {
	top, bottom fs.FS
}

func (l layeredFS) Open(name string) (fs.File, error) {
	f, err := l.top.Open(name)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return l.bottom.Open(name)
}

func newHandler(root fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		if f, err := root.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close task file", "path", path, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
