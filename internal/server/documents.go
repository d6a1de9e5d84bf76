package server

import (
	"net/http"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/pkg/models"
)

type documentsRequest struct {
	Documents []models.Document `json:"documents"`
}

type rawDocumentsRequest struct {
	Documents []models.RawDocument `json:"documents"`
}

type documentsResponse struct {
	Documents []models.Document `json:"documents"`
}

func (s *Server) addDocuments(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Documents) == 0 {
		s.writeError(w, r, errdefs.Invalid("documents must not be empty"))
		return
	}
	docs, err := s.documents.AddDocuments(r.Context(), req.Documents...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentsResponse{Documents: docs})
}

// addRawDocuments derives summaries and key points with the language model
// before indexing, so it can take a while per document.
func (s *Server) addRawDocuments(w http.ResponseWriter, r *http.Request) {
	var req rawDocumentsRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Documents) == 0 {
		s.writeError(w, r, errdefs.Invalid("documents must not be empty"))
		return
	}
	docs, err := s.documents.AddRawDocuments(r.Context(), req.Documents...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentsResponse{Documents: docs})
}

// listDocuments lists documents, or searches them when q is set.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var res models.SearchResult[models.Document]
	if q := r.URL.Query().Get("q"); q != "" {
		res, err = s.documents.SearchDocuments(r.Context(), q, page, limit)
	} else {
		res, err = s.documents.ListDocuments(r.Context(), page, limit)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.documents.GetDocument(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.documents.DeleteDocuments(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idsResponse{Deleted: []string{id}})
}
