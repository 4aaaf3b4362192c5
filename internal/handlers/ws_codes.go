// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// wsSubprotocol is the optional subprotocol clients may request.
const wsSubprotocol = "imposter"

// Custom WebSocket close codes used by the lobby handler.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // Client offered subprotocols but not "imposter".
	InvalidLobbyIDError websocket.StatusCode = 3003 // Lobby code in the ws query does not exist.
	InvalidPlayerError  websocket.StatusCode = 3004 // Player in the ws query is not in that lobby.
)
