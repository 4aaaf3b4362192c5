// internal/realtime/registry.go
package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Envelope is the wire shape of every realtime message.
type Envelope struct {
	Type string `json:"type"`
	Msg  any    `json:"msg"`
}

// Identity is what a connection is known as once it joins a lobby. It only
// addresses players; the store owns them.
type Identity struct {
	LobbyID  uuid.UUID
	Code     string
	PlayerID uuid.UUID
	Name     string
}

// Registry maps lobbies to live connections and connections to identities.
// It is process-local and rebuilt from nothing on restart.
type Registry struct {
	mu         sync.RWMutex
	lobbies    map[uuid.UUID]map[uuid.UUID]*Client
	identities map[uuid.UUID]Identity
	logger     *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		lobbies:    make(map[uuid.UUID]map[uuid.UUID]*Client),
		identities: make(map[uuid.UUID]Identity),
		logger:     logger,
	}
}

// Register adds c to the lobby's set. Registering twice is a no-op.
func (r *Registry) Register(lobbyID uuid.UUID, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.lobbies[lobbyID]
	if !ok {
		set = make(map[uuid.UUID]*Client)
		r.lobbies[lobbyID] = set
	}
	set[c.ID] = c
	r.pruneLocked(lobbyID)
}

// Unregister removes c from the lobby's set and drops the set once empty.
// Unregistering an unknown client is a no-op.
func (r *Registry) Unregister(lobbyID uuid.UUID, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.lobbies[lobbyID]; ok {
		delete(set, c.ID)
	}
	r.pruneLocked(lobbyID)
}

// pruneLocked drops closed clients from the lobby's set, and the set itself
// when nothing is left.
func (r *Registry) pruneLocked(lobbyID uuid.UUID) {
	set, ok := r.lobbies[lobbyID]
	if !ok {
		return
	}
	for id, c := range set {
		if c.Closed() {
			delete(set, id)
		}
	}
	if len(set) == 0 {
		delete(r.lobbies, lobbyID)
	}
}

// Bind records who c is.
func (r *Registry) Bind(c *Client, id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[c.ID] = id
}

// Identity returns the binding for c, if any.
func (r *Registry) Identity(c *Client) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.identities[c.ID]
	return id, ok
}

// Unbind forgets c's identity and removes it from its lobby. The
// connection stays open. It returns the identity c had, if any.
func (r *Registry) Unbind(c *Client) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.identities[c.ID]
	if !ok {
		return Identity{}, false
	}
	delete(r.identities, c.ID)
	if set, found := r.lobbies[id.LobbyID]; found {
		delete(set, c.ID)
	}
	r.pruneLocked(id.LobbyID)
	return id, true
}

// Disconnect closes c and removes every trace of it. It returns the identity
// c had, so the caller can run the leave path.
func (r *Registry) Disconnect(c *Client) (Identity, bool) {
	c.Close()
	return r.Unbind(c)
}

// DetachPlayer unbinds every connection of a player that has left the
// lobby. The connections stay open and can join again.
func (r *Registry) DetachPlayer(lobbyID, playerID uuid.UUID) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Client
	for _, c := range r.lobbies[lobbyID] {
		if id, ok := r.identities[c.ID]; ok && id.PlayerID == playerID {
			delete(r.identities, c.ID)
			delete(r.lobbies[lobbyID], c.ID)
			out = append(out, c)
		}
	}
	r.pruneLocked(lobbyID)
	return out
}

// RemoveLobby forgets a lobby and unbinds its connections.
func (r *Registry) RemoveLobby(lobbyID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.lobbies[lobbyID] {
		delete(r.identities, id)
	}
	delete(r.lobbies, lobbyID)
}

// Broadcast serializes env once and queues it on every open connection in
// the lobby. Closed connections are skipped here and pruned on the next
// registry mutation. It returns the number of connections reached.
func (r *Registry) Broadcast(lobbyID uuid.UUID, env Envelope) (int, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for _, c := range r.lobbies[lobbyID] {
		if c.Closed() {
			continue
		}
		if c.Send(data) {
			sent++
		} else {
			r.logger.WithFields(logrus.Fields{"lobby": lobbyID, "client": c.ID, "type": env.Type}).Warn("outbound queue full, message dropped")
		}
	}
	return sent, nil
}

// SendToPlayer queues env on every open connection bound to playerID.
func (r *Registry) SendToPlayer(lobbyID, playerID uuid.UUID, env Envelope) (int, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for _, c := range r.lobbies[lobbyID] {
		if id, ok := r.identities[c.ID]; ok && id.PlayerID == playerID && c.Send(data) {
			sent++
		}
	}
	return sent, nil
}

// Send queues env on a single connection.
func (r *Registry) Send(c *Client, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	if !c.Send(data) {
		return fmt.Errorf("client %s unavailable", c.ID)
	}
	return nil
}

// PlayerConnectionCount counts open connections bound to playerID.
func (r *Registry) PlayerConnectionCount(lobbyID, playerID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.lobbies[lobbyID] {
		if c.Closed() {
			continue
		}
		if id, ok := r.identities[c.ID]; ok && id.PlayerID == playerID {
			n++
		}
	}
	return n
}

// ConnectionCount counts registered connections in a lobby, open or not.
func (r *Registry) ConnectionCount(lobbyID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lobbies[lobbyID])
}

// LobbyCount is the number of lobbies with at least one connection.
func (r *Registry) LobbyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lobbies)
}
