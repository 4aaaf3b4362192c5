// internal/handlers/lobby.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
)

// createLobbyHandler handles POST /lobby/create {name, options}.
func (s *Server) createLobbyHandler(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	lobby, host, err := s.coord.CreateLobbyWithHost(r.Context(), req.Name, req.Options)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.notify.LobbyCreated(r.Context(), lobby, host)
	writeJSON(w, http.StatusCreated, map[string]any{"lobby": lobby, "player": host})
}

// joinLobbyHandler handles POST /lobby/{code}/join {name}.
func (s *Server) joinLobbyHandler(w http.ResponseWriter, r *http.Request) {
	var req joinLobbyRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	player, lobby, players, err := s.coord.JoinLobby(r.Context(), chi.URLParam(r, "code"), req.Name)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.notify.PlayerJoined(r.Context(), player, lobby, players)
	writeJSON(w, http.StatusOK, map[string]any{"players": players, "lobby": lobby, "player": player})
}

// leaveLobbyHandler handles POST /lobby/{code}/leave {playerId}.
func (s *Server) leaveLobbyHandler(w http.ResponseWriter, r *http.Request) {
	var req leaveLobbyRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if _, err := s.leaveLobby(r.Context(), chi.URLParam(r, "code"), req.PlayerID); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) getLobbyHandler(w http.ResponseWriter, r *http.Request) {
	lobby, players, err := s.coord.GetLobby(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobby": lobby, "players": players})
}

// deleteLobbyHandler handles DELETE /lobby/delete/{id}.
func (s *Server) deleteLobbyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, apperr.Validation("invalid lobby id"))
		return
	}
	lobby, err := s.endLobby(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobby": lobby})
}
