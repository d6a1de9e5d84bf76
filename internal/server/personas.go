package server

import (
	"net/http"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/pkg/models"
)

type personaInfoRequest struct {
	Contents []string `json:"contents"`
}

func (s *Server) createPersona(w http.ResponseWriter, r *http.Request) {
	var p models.Persona
	if err := decode(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.personas.CreatePersona(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listPersonas(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var res models.SearchResult[models.Persona]
	if q := r.URL.Query().Get("q"); q != "" {
		res, err = s.personas.SearchPersonas(r.Context(), q, page, limit)
	} else {
		res, err = s.personas.ListPersonas(r.Context(), page, limit)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getPersona(w http.ResponseWriter, r *http.Request) {
	p, err := s.personas.GetPersona(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePersona(w http.ResponseWriter, r *http.Request) {
	var p models.Persona
	if err := decode(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if p.ID != "" && p.ID != id {
		s.writeError(w, r, errdefs.Invalid("persona id %q does not match the path", p.ID))
		return
	}
	p.ID = id
	updated, err := s.personas.UpdatePersona(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deletePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.personas.DeletePersona(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addPersonaInfo(w http.ResponseWriter, r *http.Request) {
	var req personaInfoRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Contents) == 0 {
		s.writeError(w, r, errdefs.Invalid("contents must not be empty"))
		return
	}
	info, err := s.personas.AddPersonaInfo(r.Context(), r.PathValue("id"), req.Contents...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"info": info})
}

func (s *Server) listPersonaInfo(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.personas.ListPersonaInfo(r.Context(), r.PathValue("id"), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deletePersonaInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("infoID")
	if err := s.personas.DeletePersonaInfo(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idsResponse{Deleted: []string{id}})
}
