// internal/handlers/lobby_ws.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/middleware"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/realtime"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
	leaveTimeout = 5 * time.Second
)

var errNotInLobby = apperr.NotFound("player is not in this lobby")

type inboundEnvelope struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// lobbyWSHandler serves GET /ws. A connection may attach to an existing
// player right away with ?code=...&playerId=..., or later with joinLobby.
func (s *Server) lobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: originPatterns(s.opts.CORSOrigins),
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if r.Header.Get("Sec-WebSocket-Protocol") != "" && c.Subprotocol() != wsSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the imposter subprotocol")
		return
	}

	client := realtime.NewClient(realtime.DefaultBuffer)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if code, pid := r.URL.Query().Get("code"), r.URL.Query().Get("playerId"); code != "" && pid != "" {
		playerID, err := uuid.Parse(pid)
		if err != nil {
			c.Close(InvalidPlayerError, "invalid playerId")
			return
		}
		if err := s.attach(ctx, client, code, playerID); err != nil {
			status := websocket.StatusInternalError
			switch {
			case errors.Is(err, errNotInLobby):
				status = InvalidPlayerError
			case errors.Is(err, apperr.ErrNotFound):
				status = InvalidLobbyIDError
			}
			c.Close(status, apperr.PublicMessage(err))
			return
		}
	}

	middleware.LogWebSocketConnect(s.logger, remoteAddr, r.URL.Path)

	go func() {
		s.writePump(ctx, c, client)
		cancel()
	}()
	readErr := s.readPump(ctx, c, client)

	cancel()
	s.disconnect(client)
	middleware.LogWebSocketDisconnect(s.logger, remoteAddr, r.URL.Path, readErr)
}

// readPump reads and dispatches messages until the connection fails. It
// returns the read error unless the close was a normal one.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, client *realtime.Client) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			s.logger.WithField("client", client.ID).Debug("ignoring non-text message")
			continue
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			s.notify.Error(client, apperr.Validation("invalid JSON message"))
			continue
		}
		if err := s.handleMessage(ctx, client, env); err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				s.logger.WithError(err).WithFields(logrus.Fields{"client": client.ID, "type": env.Type}).Error("realtime message failed")
			}
			s.notify.Error(client, err)
		}
	}
}

// writePump drains the client's queue onto the socket and keeps the
// connection alive with pings. The client is closed when it returns, so
// broadcasts stop queueing for it.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer client.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case data := <-client.OutChan:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.WithError(err).WithField("client", client.ID).Warn("failed to write to websocket")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.logger.WithError(err).WithField("client", client.ID).Warn("ping failed, assuming disconnect")
				return
			}
		}
	}
}

// disconnect forgets the client and, when it was the player's last live
// connection, runs the same leave path as an explicit leave.
func (s *Server) disconnect(client *realtime.Client) {
	id, ok := s.hub.Disconnect(client)
	if !ok || s.hub.PlayerConnectionCount(id.LobbyID, id.PlayerID) > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if _, err := s.leaveLobby(ctx, id.Code, id.PlayerID); err != nil {
		entry := s.logger.WithError(err).WithFields(logrus.Fields{"lobby": id.LobbyID, "player": id.PlayerID})
		if apperr.KindOf(err) == apperr.KindInternal {
			entry.Error("leave on disconnect failed")
		} else {
			entry.Debug("leave on disconnect skipped")
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, client *realtime.Client, env inboundEnvelope) error {
	switch env.Type {
	case msgCreateLobby:
		var req createLobbyRequest
		if err := s.decodeMsg(env, &req); err != nil {
			return err
		}
		if err := s.requireUnbound(client); err != nil {
			return err
		}
		lobby, host, err := s.coord.CreateLobbyWithHost(ctx, req.Name, req.Options)
		if err != nil {
			return err
		}
		s.bind(client, lobby, host)
		s.notify.LobbyCreated(ctx, lobby, host)
		return nil

	case msgJoinLobby:
		var req wsJoinLobby
		if err := s.decodeMsg(env, &req); err != nil {
			return err
		}
		if err := s.requireUnbound(client); err != nil {
			return err
		}
		if req.PlayerID != uuid.Nil {
			return s.attach(ctx, client, req.Code, req.PlayerID)
		}
		player, lobby, players, err := s.coord.JoinLobby(ctx, req.Code, req.Name)
		if err != nil {
			return err
		}
		s.bind(client, lobby, player)
		s.notify.PlayerJoined(ctx, player, lobby, players)
		return nil

	case msgLeaveLobby:
		id, err := s.identity(client)
		if err != nil {
			return err
		}
		_, err = s.leaveLobby(ctx, id.Code, id.PlayerID)
		return err

	case msgVotePlayer:
		var req wsVotePlayer
		if err := s.decodeMsg(env, &req); err != nil {
			return err
		}
		id, err := s.identity(client)
		if err != nil {
			return err
		}
		_, err = s.castVote(ctx, id.LobbyID, id.PlayerID, req.TargetID)
		return err

	case msgStartGame:
		var req wsStartGame
		if err := s.decodeMsg(env, &req); err != nil {
			return err
		}
		id, err := s.identity(client)
		if err != nil {
			return err
		}
		_, err = s.startGame(ctx, id.LobbyID, id.PlayerID, req.Options)
		return err

	case msgVoteCount:
		id, err := s.identity(client)
		if err != nil {
			return err
		}
		round, tally, err := s.coord.TallyCurrentRound(ctx, id.LobbyID)
		if err != nil {
			return err
		}
		s.notify.VotesCounted(ctx, id.LobbyID, round, tally)
		return nil

	case msgResetGame:
		id, err := s.identity(client)
		if err != nil {
			return err
		}
		lobby, players, err := s.coord.ResetGame(ctx, id.LobbyID, id.PlayerID)
		if err != nil {
			return err
		}
		s.notify.GameReset(ctx, lobby, players)
		return nil

	default:
		return apperr.Validation("unknown message type %q", env.Type)
	}
}

// attach binds the connection to a player that is already in the lobby and
// sends it the current lobby state.
func (s *Server) attach(ctx context.Context, client *realtime.Client, code string, playerID uuid.UUID) error {
	lobby, players, err := s.coord.GetLobby(ctx, code)
	if err != nil {
		return err
	}
	var player *models.Player
	for i := range players {
		if players[i].ID == playerID {
			player = &players[i]
			break
		}
	}
	if player == nil {
		return errNotInLobby
	}
	s.bind(client, lobby, *player)
	return s.hub.Send(client, realtime.Envelope{
		Type: msgPlayerJoined,
		Msg:  lobbyPayload{Lobby: lobby, Players: players, Player: player},
	})
}

func (s *Server) bind(client *realtime.Client, lobby models.Lobby, player models.Player) {
	s.hub.Bind(client, realtime.Identity{
		LobbyID:  lobby.ID,
		Code:     lobby.Code,
		PlayerID: player.ID,
		Name:     player.Name,
	})
	s.hub.Register(lobby.ID, client)
}

func (s *Server) identity(client *realtime.Client) (realtime.Identity, error) {
	id, ok := s.hub.Identity(client)
	if !ok {
		return realtime.Identity{}, apperr.Validation("join a lobby first")
	}
	return id, nil
}

func (s *Server) requireUnbound(client *realtime.Client) error {
	if _, ok := s.hub.Identity(client); ok {
		return apperr.Validation("connection already belongs to a lobby")
	}
	return nil
}

// decodeMsg decodes and validates a realtime payload. A missing msg decodes
// as {}.
func (s *Server) decodeMsg(env inboundEnvelope, dst any) error {
	raw := bytes.TrimSpace(env.Msg)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, dst); err != nil {
			return apperr.Validation("malformed %s payload", env.Type)
		}
	}
	return s.check(dst)
}
