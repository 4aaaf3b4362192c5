// internal/handlers/game.go
package handlers

import (
	"net/http"
)

// startGameHandler handles POST /game/start. Words and roles are delivered
// over the realtime channel only.
func (s *Server) startGameHandler(w http.ResponseWriter, r *http.Request) {
	var req startGameRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	res, err := s.startGame(r.Context(), req.LobbyID, req.PlayerID, req.Options)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lobby": res.Lobby})
}

// voteHandler handles POST /game/vote {lobbyId, voterId, targetId}.
func (s *Server) voteHandler(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	target, err := s.castVote(r.Context(), req.LobbyID, req.VoterID, req.TargetID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"votedPlayer": target})
}

// endGameHandler handles POST /game/end {lobbyId}.
func (s *Server) endGameHandler(w http.ResponseWriter, r *http.Request) {
	var req endGameRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	lobby, err := s.endLobby(r.Context(), req.LobbyID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobby": lobby})
}
