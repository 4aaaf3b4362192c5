package realtime

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewRegistry(l)
}

func drain(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data := <-c.OutChan:
		var env struct {
			Type string          `json:"type"`
			Msg  json.RawMessage `json:"msg"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		return Envelope{Type: env.Type, Msg: env.Msg}
	default:
		t.Fatalf("client %s has no queued message", c.ID)
		return Envelope{}
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	lobby := uuid.New()
	c := NewClient(4)

	r.Register(lobby, c)
	r.Register(lobby, c)
	assert.Equal(t, 1, r.ConnectionCount(lobby))

	r.Unregister(lobby, c)
	r.Unregister(lobby, c)
	assert.Equal(t, 0, r.ConnectionCount(lobby))
	assert.Equal(t, 0, r.LobbyCount(), "empty sets are dropped")
}

func TestBroadcastSkipsClosedAndPrunesLazily(t *testing.T) {
	r := newTestRegistry()
	lobby := uuid.New()
	a, b := NewClient(4), NewClient(4)
	r.Register(lobby, a)
	r.Register(lobby, b)

	b.Close()
	sent, err := r.Broadcast(lobby, Envelope{Type: "playerJoined", Msg: map[string]string{"name": "Bob"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "playerJoined", drain(t, a).Type)
	assert.Equal(t, 2, r.ConnectionCount(lobby), "broadcast does not mutate")

	r.Register(lobby, NewClient(4))
	assert.Equal(t, 2, r.ConnectionCount(lobby), "closed client pruned on next mutation")
}

func TestBroadcastIsolatedPerLobby(t *testing.T) {
	r := newTestRegistry()
	l1, l2 := uuid.New(), uuid.New()
	a, b := NewClient(4), NewClient(4)
	r.Register(l1, a)
	r.Register(l2, b)

	_, err := r.Broadcast(l1, Envelope{Type: "gameStarted"})
	require.NoError(t, err)
	assert.Len(t, a.OutChan, 1)
	assert.Len(t, b.OutChan, 0)
}

func TestBroadcastFullQueueDoesNotBlock(t *testing.T) {
	r := newTestRegistry()
	lobby := uuid.New()
	c := NewClient(1)
	r.Register(lobby, c)

	sent, _ := r.Broadcast(lobby, Envelope{Type: "a"})
	assert.Equal(t, 1, sent)
	sent, _ = r.Broadcast(lobby, Envelope{Type: "b"})
	assert.Equal(t, 0, sent)
}

func TestBroadcastMarshalError(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Broadcast(uuid.New(), Envelope{Type: "bad", Msg: make(chan int)})
	assert.Error(t, err)
}

func TestIdentityAndDisconnect(t *testing.T) {
	r := newTestRegistry()
	lobby, player := uuid.New(), uuid.New()
	c1, c2 := NewClient(4), NewClient(4)
	for _, c := range []*Client{c1, c2} {
		r.Register(lobby, c)
		r.Bind(c, Identity{LobbyID: lobby, Code: "ABCD23", PlayerID: player, Name: "Bob"})
	}
	assert.Equal(t, 2, r.PlayerConnectionCount(lobby, player))

	n, err := r.SendToPlayer(lobby, player, Envelope{Type: "startGameInfo"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	id, ok := r.Disconnect(c1)
	require.True(t, ok)
	assert.Equal(t, player, id.PlayerID)
	assert.True(t, c1.Closed())
	assert.Equal(t, 1, r.PlayerConnectionCount(lobby, player))

	_, ok = r.Identity(c1)
	assert.False(t, ok)
	_, ok = r.Disconnect(c1)
	assert.False(t, ok, "second disconnect is a no-op")
}

func TestUnbindKeepsConnectionOpen(t *testing.T) {
	r := newTestRegistry()
	lobby, player := uuid.New(), uuid.New()
	c := NewClient(4)
	r.Register(lobby, c)
	r.Bind(c, Identity{LobbyID: lobby, PlayerID: player, Name: "Carol"})

	id, ok := r.Unbind(c)
	require.True(t, ok)
	assert.Equal(t, "Carol", id.Name)
	assert.False(t, c.Closed())
	assert.Equal(t, 0, r.LobbyCount())

	_, ok = r.Unbind(c)
	assert.False(t, ok)
}

func TestDetachPlayerAndRemoveLobby(t *testing.T) {
	r := newTestRegistry()
	lobby := uuid.New()
	alice, bob := uuid.New(), uuid.New()
	ca, cb := NewClient(4), NewClient(4)
	r.Register(lobby, ca)
	r.Bind(ca, Identity{LobbyID: lobby, PlayerID: alice})
	r.Register(lobby, cb)
	r.Bind(cb, Identity{LobbyID: lobby, PlayerID: bob})

	detached := r.DetachPlayer(lobby, bob)
	require.Len(t, detached, 1)
	assert.Same(t, cb, detached[0])
	assert.False(t, cb.Closed())
	assert.Equal(t, 1, r.ConnectionCount(lobby))

	r.RemoveLobby(lobby)
	assert.Equal(t, 0, r.LobbyCount())
	_, ok := r.Identity(ca)
	assert.False(t, ok)
}

func TestClientSendAfterClose(t *testing.T) {
	c := NewClient(0)
	assert.Equal(t, DefaultBuffer, cap(c.OutChan))
	c.Close()
	c.Close()
	assert.False(t, c.Send([]byte("x")))
	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed")
	}
}
