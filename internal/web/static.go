package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

//go:embed static
var embeddedAssets embed.FS

// staticHandler serves the dashboard assets: from StaticDir when configured,
// otherwise from the embedded copies.
func (s *Server) staticHandler() (http.Handler, error) {
	if s.cfg.StaticDir == "" {
		sub, err := fs.Sub(embeddedAssets, "static")
		if err != nil {
			return nil, err
		}

		return http.FileServer(http.FS(sub)), nil
	}

	root, err := filepath.Abs(s.cfg.StaticDir)
	if err == nil {
		root, err = filepath.EvalSymlinks(root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve static dir: %w",
			err)
	}

	return &containedFileServer{root: root}, nil
}

// containedFileServer serves files strictly under root, which must already
// be in canonical absolute form. Every request path is resolved with
// symlinks followed and checked for containment, so neither traversal
// sequences nor links planted inside the directory can escape.
type containedFileServer struct {
	root string
}

func (c *containedFileServer) ServeHTTP(w http.ResponseWriter,
	r *http.Request) {

	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index.html"
	}

	path := filepath.Join(c.root, filepath.FromSlash(name))
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		// Missing targets and dangling links alike.
		http.NotFound(w, r)

		return
	}

	if resolved != c.root && !strings.HasPrefix(
		resolved, c.root+string(os.PathSeparator),
	) {

		http.Error(w, "forbidden", http.StatusForbidden)

		return
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)

		return
	}

	http.ServeFile(w, r, resolved)
}
