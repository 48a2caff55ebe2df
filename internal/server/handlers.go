package server

import (
	"context"
	"fmt"
	"log"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aixgo-dev/pixelctx/internal/chat"
	"github.com/aixgo-dev/pixelctx/pkg/export"
	"github.com/aixgo-dev/pixelctx/pkg/observability"
	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

// treeRequest is the body of recompute and export calls.
type treeRequest struct {
	Tree tree.Tree `json:"tree"`
}

type healthResponse struct {
	Status    string `json:"status"`
	APIKeySet bool   `json:"api_key_set"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.SendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = req.Tree.SessionID
	}

	res, err := s.chat.Send(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.updateActiveSessions(r.Context())
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.chat.Summary(r.Context(), mux.Vars(r)["session_id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var req treeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.chat.Recompute(r.Context(), mux.Vars(r)["session_id"], req.Tree)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	if err := s.chat.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.updateActiveSessions(r.Context())
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Session %s deleted", id)})
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "json", "application/json", s.exporter.JSON)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "pdf", "application/pdf", s.exporter.PDF)
}

func (s *Server) handleExportHTML(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "html", "text/html; charset=utf-8", s.exporter.HTML)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, ext, contentType string, render func(tree.Tree) ([]byte, error)) {
	var req treeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Tree.Validate(); err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", chat.ErrInvalidRequest, err))
		return
	}

	data, err := render(req.Tree)
	if err != nil {
		writeError(w, r, err)
		return
	}

	name := export.Filename(req.Tree.SessionID, ext, s.now())
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[Server] write %s export: %v", ext, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", APIKeySet: s.apiKeySet()})
}

func (s *Server) updateActiveSessions(ctx context.Context) {
	ids, err := s.chat.Sessions().List(ctx)
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(ids))
}
