package ws

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id        string
	sessionID string
	fail      bool

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeConn(id, sessionID string) *fakeConn {
	return &fakeConn{id: id, sessionID: sessionID}
}

func (c *fakeConn) ID() string        { return c.id }
func (c *fakeConn) SessionID() string { return c.sessionID }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return ErrConnectionClosed
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(sessionID string, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, sessionID)
	return p.err
}

func TestHubManager_BroadcastSkipsFailedConnection(t *testing.T) {
	m := NewHubManager(nil)
	good1 := newFakeConn("a", "s1")
	bad := newFakeConn("b", "s1")
	bad.fail = true
	good2 := newFakeConn("c", "s1")
	other := newFakeConn("d", "s2")

	for _, c := range []*fakeConn{good1, bad, good2, other} {
		m.Register(c)
	}
	require.Equal(t, 4, m.ConnectionCount())
	require.Equal(t, 2, m.SessionCount())

	require.NoError(t, m.Broadcast("s1", Frame{Type: FrameTypingStop}))

	require.Len(t, good1.received(), 1)
	require.Len(t, good2.received(), 1)
	require.Empty(t, other.received())
	require.JSONEq(t, `{"type":"typing_stop"}`, string(good1.received()[0]))

	require.True(t, bad.isClosed())
	require.Equal(t, 2, m.SessionConnectionCount("s1"))

	// Next broadcast no longer tries the dropped connection.
	require.NoError(t, m.Broadcast("s1", Frame{Type: FramePong}))
	require.Len(t, good1.received(), 2)
}

func TestHubManager_UnregisterDropsEmptyHub(t *testing.T) {
	m := NewHubManager(nil)
	c := newFakeConn("a", "s1")
	m.Register(c)
	require.NotNil(t, m.Get("s1"))

	m.Unregister(c)
	if m.Get("s1") != nil {
		t.Errorf("expected hub to be dropped once empty")
	}
	if c.isClosed() {
		t.Errorf("Unregister must not close the connection")
	}
}

func TestHubManager_BroadcastWithoutConnections(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewHubManager(pub)

	require.NoError(t, m.Broadcast("nobody", Frame{Type: FramePong}))
	require.Equal(t, []string{"nobody"}, pub.topics)
}

func TestHubManager_PublisherErrorDoesNotStopDelivery(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	m := NewHubManager(pub)
	c := newFakeConn("a", "s1")
	m.Register(c)

	require.NoError(t, m.Broadcast("s1", Frame{Type: FramePong}))
	require.Len(t, c.received(), 1)
	require.False(t, c.isClosed())
}

func TestHubManager_Remove(t *testing.T) {
	m := NewHubManager(nil)
	a := newFakeConn("a", "s1")
	b := newFakeConn("b", "s1")
	m.Register(a)
	m.Register(b)

	m.Remove("s1")

	require.True(t, a.isClosed())
	require.True(t, b.isClosed())
	require.Equal(t, 0, m.SessionConnectionCount("s1"))
}

func TestClient_SendAfterClose(t *testing.T) {
	c := NewClient("a", nil, "s1")
	require.NoError(t, c.Send([]byte("x")))

	c.Close()
	c.Close()

	require.ErrorIs(t, c.Send([]byte("y")), ErrConnectionClosed)
	require.True(t, c.IsClosed())
}

func TestClient_SendBufferFull(t *testing.T) {
	c := NewClient("a", nil, "s1")
	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}

	require.ErrorIs(t, c.Send([]byte("overflow")), ErrSendBufferFull)
	require.True(t, c.IsClosed())
}
