package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/haasonsaas/charlotte/pkg/models"
)

type executeResponse struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

func (s *Server) registerTool(w http.ResponseWriter, r *http.Request) {
	var def models.ToolDefinition
	if err := decode(w, r, &def); err != nil {
		s.writeError(w, r, err)
		return
	}
	if bytes.Equal(bytes.TrimSpace(def.Parameters), []byte("null")) {
		def.Parameters = nil
	}
	registered, err := s.tools.Register(r.Context(), def)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var res models.SearchResult[models.ToolDefinition]
	if q := r.URL.Query().Get("q"); q != "" {
		res, err = s.tools.Search(r.Context(), q, page, limit)
	} else {
		res, err = s.tools.List(r.Context(), page, limit)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getTool(w http.ResponseWriter, r *http.Request) {
	def, err := s.tools.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) unregisterTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.tools.Get(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.tools.Unregister(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idsResponse{Deleted: []string{name}})
}

// executeTool runs a tool directly. The body is the JSON arguments object.
func (s *Server) executeTool(w http.ResponseWriter, r *http.Request) {
	var args json.RawMessage
	if err := decode(w, r, &args); err != nil {
		s.writeError(w, r, err)
		return
	}
	name := r.PathValue("name")
	output, err := s.tools.Execute(r.Context(), name, string(args))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Name: name, Output: output})
}
