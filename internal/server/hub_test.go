package server

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/history"
	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/protocol"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	store, err := history.NewStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	return NewHub(store)
}

func newTestClient(h *Hub) *Client {
	return NewClient(nil, h, "test:0")
}

// queuedEnvelopes drains and decodes everything currently in the client's
// send queue.
func queuedEnvelopes(t *testing.T, c *Client) []protocol.Envelope {
	t.Helper()
	var envs []protocol.Envelope
	for {
		select {
		case raw := <-c.send:
			env, err := protocol.Decode(raw)
			require.NoError(t, err)
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

func loggedIn(t *testing.T, h *Hub, name string) *Client {
	t.Helper()
	c := newTestClient(h)
	require.NoError(t, h.handleLogin(c, name))
	queuedEnvelopes(t, c) // discard the ack
	return c
}

func Test_Login_Claims_Name_And_Acks(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)
	c := newTestClient(h)

	req.NoError(h.handleLogin(c, "alice"))
	req.Equal("alice", c.Name())

	envs := queuedEnvelopes(t, c)
	req.Len(envs, 1)
	req.Equal(protocol.TypePresence, envs[0].Type)
	req.Equal("alice", envs[0].Name)
	req.Empty(envs[0].Room)
}

func Test_Login_Rejects_Invalid_And_Taken_Names(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	req.ErrorIs(h.handleLogin(newTestClient(h), ""), ErrInvalidName)
	req.ErrorIs(h.handleLogin(newTestClient(h), "   "), ErrInvalidName)
	req.ErrorIs(h.handleLogin(newTestClient(h), "bad\nname"), ErrInvalidName)

	req.NoError(h.handleLogin(newTestClient(h), "alice"))
	req.ErrorIs(h.handleLogin(newTestClient(h), "alice"), ErrNameTaken)
}

func Test_Login_Claims_The_Trimmed_Name(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	c := newTestClient(h)
	req.NoError(h.handleLogin(c, "  alice  "))
	req.Equal("alice", c.Name())

	// The trimmed spelling is what is taken.
	req.ErrorIs(h.handleLogin(newTestClient(h), "alice"), ErrNameTaken)
}

func Test_Second_Login_Is_Soft_Error(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)
	c := loggedIn(t, h, "alice")

	req.ErrorIs(h.handleLogin(c, "alice2"), ErrLoggedIn)
	req.Equal("alice", c.Name())
}

func Test_Join_Requires_Login(t *testing.T) {
	h := newTestHub(t)
	require.ErrorIs(t, h.handleJoin(newTestClient(h), "general"), ErrNotLoggedIn)
}

func Test_Join_Replays_History_And_Notifies_Members(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	req.NoError(h.handleJoin(alice, "general"))
	req.NoError(h.handlePublish(alice, "general", "hello"))
	queuedEnvelopes(t, alice)

	bob := loggedIn(t, h, "bob")
	req.NoError(h.handleJoin(bob, "general"))

	bobEnvs := queuedEnvelopes(t, bob)
	req.Len(bobEnvs, 1)
	req.Equal(protocol.TypeHistory, bobEnvs[0].Type)
	req.Equal("general", bobEnvs[0].Room)
	req.Equal([]string{"alice", "bob"}, bobEnvs[0].Members)
	req.Len(bobEnvs[0].Records, 1)
	req.Equal("hello", bobEnvs[0].Records[0].Body)

	aliceEnvs := queuedEnvelopes(t, alice)
	req.Len(aliceEnvs, 1)
	req.Equal(protocol.TypePresence, aliceEnvs[0].Type)
	req.Equal(protocol.EventJoined, aliceEnvs[0].Event)
	req.Equal("bob", aliceEnvs[0].Name)
	req.Equal("general", aliceEnvs[0].Room)
}

func Test_Membership_Is_Mutually_Consistent(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	req.NoError(h.handleJoin(alice, "general"))
	req.NoError(h.handleJoin(alice, "sports"))

	for _, roomName := range []string{"general", "sports"} {
		r, ok := alice.rooms[roomName]
		req.True(ok)
		_, member := r.members[alice]
		req.True(member)
	}

	req.NoError(h.handleLeave(alice, "sports"))
	_, stillJoined := alice.rooms["sports"]
	req.False(stillJoined)
	req.Nil(h.RoomMembers("sports"))
	req.Equal([]string{"alice"}, h.RoomMembers("general"))
}

func Test_Join_Rejects_Duplicate_Display_Name(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	req.NoError(h.handleJoin(alice, "general"))

	// A second session holding the same name can only arise across rooms,
	// but the join-time check still guards the room-level invariant.
	impostor := newTestClient(h)
	impostor.name = "alice"
	req.ErrorIs(h.handleJoin(impostor, "general"), ErrDuplicateName)
	req.Equal([]string{"alice"}, h.RoomMembers("general"))
}

func Test_Publish_Fans_Out_To_All_Members_And_Appends_Once(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	members := make([]*Client, 0, 3)
	for _, name := range []string{"alice", "bob", "carol"} {
		c := loggedIn(t, h, name)
		req.NoError(h.handleJoin(c, "general"))
		members = append(members, c)
	}
	for _, c := range members {
		queuedEnvelopes(t, c)
	}

	req.NoError(h.handlePublish(members[0], "general", "hello everyone"))

	var reference protocol.Envelope
	for i, c := range members {
		envs := queuedEnvelopes(t, c)
		req.Len(envs, 1, "member %d", i)
		req.Equal(protocol.TypeMessage, envs[0].Type)
		if i == 0 {
			reference = envs[0]
			req.Equal("alice", reference.Sender)
			req.Equal("hello everyone", reference.Body)
		} else {
			req.Equal(reference, envs[0])
		}
	}

	records := h.store.Tail("general", 50)
	req.Len(records, 1)
	req.Equal(protocol.Record{
		Sender:    reference.Sender,
		Body:      reference.Body,
		Timestamp: reference.Timestamp,
	}, records[0])
}

func Test_Publish_Trims_Body_And_Rejects_Blank(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	req.NoError(h.handleJoin(alice, "general"))
	queuedEnvelopes(t, alice)

	req.ErrorIs(h.handlePublish(alice, "general", "   "), ErrBlankBody)
	req.ErrorIs(h.handlePublish(alice, "general", " \t\n "), ErrBlankBody)
	req.Empty(queuedEnvelopes(t, alice))
	req.Empty(h.store.Tail("general", 50))

	req.NoError(h.handlePublish(alice, "general", "  hello  "))
	envs := queuedEnvelopes(t, alice)
	req.Len(envs, 1)
	req.Equal("hello", envs[0].Body)

	records := h.store.Tail("general", 50)
	req.Len(records, 1)
	req.Equal("hello", records[0].Body)
}

func Test_Publish_Append_Failure_Reaches_Only_The_Sender(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	bob := loggedIn(t, h, "bob")
	req.NoError(h.handleJoin(alice, "general"))
	req.NoError(h.handleJoin(bob, "general"))
	queuedEnvelopes(t, alice)
	queuedEnvelopes(t, bob)

	// Make the append fail: a directory sitting where the log file goes.
	req.NoError(os.Mkdir(h.store.Path("general"), 0o755))

	h.dispatch(alice, protocol.Publish("general", "doomed"))

	aliceEnvs := queuedEnvelopes(t, alice)
	req.Len(aliceEnvs, 1)
	req.Equal(protocol.TypeError, aliceEnvs[0].Type)
	req.Equal(protocol.CodeIOFailure, aliceEnvs[0].Code)

	// Nothing was broadcast and nothing was persisted.
	req.Empty(queuedEnvelopes(t, bob))
	req.Empty(h.store.Tail("general", 50))
}

func Test_Publish_Requires_Membership(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	req.ErrorIs(h.handlePublish(alice, "general", "hi"), ErrNotMember)
	req.Empty(h.store.Tail("general", 50))
}

func Test_Leave_Notifies_Remaining_Members(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	bob := loggedIn(t, h, "bob")
	req.NoError(h.handleJoin(alice, "general"))
	req.NoError(h.handleJoin(bob, "general"))
	queuedEnvelopes(t, alice)
	queuedEnvelopes(t, bob)

	req.NoError(h.handleLeave(bob, "general"))
	req.ErrorIs(h.handleLeave(bob, "general"), ErrNotMember)

	envs := queuedEnvelopes(t, alice)
	req.Len(envs, 1)
	req.Equal(protocol.TypePresence, envs[0].Type)
	req.Equal(protocol.EventLeft, envs[0].Event)
	req.Equal("bob", envs[0].Name)
}

func Test_Empty_Room_Is_Discarded_But_History_Survives(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	req.NoError(h.handleJoin(alice, "general"))
	req.NoError(h.handlePublish(alice, "general", "persisted"))
	req.NoError(h.handleLeave(alice, "general"))

	h.roomsMu.Lock()
	_, exists := h.rooms["general"]
	h.roomsMu.Unlock()
	req.False(exists)

	// Re-joining recreates the room and replays from the durable log.
	queuedEnvelopes(t, alice)
	req.NoError(h.handleJoin(alice, "general"))
	envs := queuedEnvelopes(t, alice)
	req.Len(envs, 1)
	req.Equal(protocol.TypeHistory, envs[0].Type)
	req.Len(envs[0].Records, 1)
	req.Equal("persisted", envs[0].Records[0].Body)
}

func Test_Teardown_Leaves_Every_Room_And_Releases_Name(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	bob := loggedIn(t, h, "bob")
	req.NoError(h.handleJoin(alice, "general"))
	req.NoError(h.handleJoin(alice, "sports"))
	req.NoError(h.handleJoin(bob, "general"))
	req.NoError(h.handleJoin(bob, "sports"))
	queuedEnvelopes(t, bob)

	h.teardown(alice)

	envs := queuedEnvelopes(t, bob)
	req.Len(envs, 2)
	rooms := map[string]bool{}
	for _, env := range envs {
		req.Equal(protocol.TypePresence, env.Type)
		req.Equal(protocol.EventLeft, env.Event)
		req.Equal("alice", env.Name)
		rooms[env.Room] = true
	}
	req.True(rooms["general"])
	req.True(rooms["sports"])

	req.Equal([]string{"bob"}, h.RoomMembers("general"))
	req.Equal([]string{"bob"}, h.RoomMembers("sports"))

	// The name is free again.
	req.NoError(h.handleLogin(newTestClient(h), "alice"))
}

func Test_Dispatch_Answers_Invalid_Type_With_Error_Envelope(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)
	c := loggedIn(t, h, "alice")

	h.dispatch(c, protocol.Envelope{Type: protocol.TypeHistory, Room: "general"})

	envs := queuedEnvelopes(t, c)
	req.Len(envs, 1)
	req.Equal(protocol.TypeError, envs[0].Type)
	req.Equal(protocol.CodeViolation, envs[0].Code)
}

func Test_Room_Timestamps_Never_Decrease(t *testing.T) {
	req := require.New(t)
	r := newRoom("general")

	req.Equal(int64(100), r.stampLocked(100))
	req.Equal(int64(100), r.stampLocked(99)) // clock went backwards
	req.Equal(int64(101), r.stampLocked(101))
}

func Test_Broadcast_Reports_Members_With_Full_Queues(t *testing.T) {
	req := require.New(t)
	h := newTestHub(t)

	alice := loggedIn(t, h, "alice")
	bob := loggedIn(t, h, "bob")
	req.NoError(h.handleJoin(alice, "general"))
	req.NoError(h.handleJoin(bob, "general"))
	queuedEnvelopes(t, bob)

	// Fill bob's queue so the next fan-out cannot reach him.
	for i := 0; i < sendQueueSize; i++ {
		req.True(bob.enqueue([]byte("x")))
	}

	r := alice.rooms["general"]
	r.mu.Lock()
	overflowed := r.broadcastLocked([]byte(`{"type":"presence","event":"joined","name":"x"}`), nil)
	r.mu.Unlock()

	req.Len(overflowed, 1)
	req.Same(bob, overflowed[0])
}
