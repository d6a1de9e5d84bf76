package server

import (
	"net/http"

	"github.com/haasonsaas/charlotte/pkg/models"
)

type createSessionRequest struct {
	PersonaID string `json:"persona_id"`
}

type chatRequest struct {
	Content string `json:"content"`
}

type chatResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required("persona_id", req.PersonaID); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.chat.CreateSession(r.Context(), req.PersonaID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.SessionInfo
		err  error
	)
	if personaID := r.URL.Query().Get("persona_id"); personaID != "" {
		list, err = s.chat.ListPersonaSessions(r.Context(), personaID)
	} else {
		list, err = s.chat.ListAllSessions(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) getSessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.chat.GetSessionInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) removeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.RemoveSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) chatTurn(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.chat.Chat(r.Context(), r.PathValue("id"), models.NewUserMessage(req.Content))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Messages: out})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.chat.GetHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) getReferences(w http.ResponseWriter, r *http.Request) {
	ref, err := s.chat.GetSessionReference(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}
