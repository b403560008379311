package web

import (
	"bytes"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown renders proposal bodies for the dashboard. GFM keeps tables and
// task lists from review templates intact.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// handlePreview renders a review's description as HTML for the dashboard's
// proposal pane.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	review, err := s.svc.GetProposal(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)

		return
	}

	var buf bytes.Buffer
	source := review.Description.UnwrapOr(review.Intent)
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
