package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meetings-backend/internal/models"
)

func newTestServer(t *testing.T, h *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := &models.User{ID: r.URL.Query().Get("user"), Email: "jane@acme.vc"}
		_ = h.Serve(w, r, user)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHub_SessionThenEvents(t *testing.T) {
	h := NewHub(zap.NewNop())
	conn := dial(t, newTestServer(t, h)+"?user=u1")

	ev := readEvent(t, conn)
	assert.Equal(t, models.EventSession, ev.Type)
	require.NotNil(t, ev.User)
	assert.Equal(t, "u1", ev.User.ID)

	require.Eventually(t, func() bool { return h.Count("u1") == 1 }, time.Second, 10*time.Millisecond)

	h.Publish("u1", models.BalanceEvent(95))
	ev = readEvent(t, conn)
	assert.Equal(t, models.EventBalance, ev.Type)
	require.NotNil(t, ev.Balance)
	assert.Equal(t, 95, *ev.Balance)
}

func TestHub_IsolatesUsers(t *testing.T) {
	h := NewHub(zap.NewNop())
	url := newTestServer(t, h)
	a := dial(t, url+"?user=a")
	b := dial(t, url+"?user=b")
	readEvent(t, a)
	readEvent(t, b)
	require.Eventually(t, func() bool { return h.Count("a") == 1 && h.Count("b") == 1 }, time.Second, 10*time.Millisecond)

	h.Publish("b", models.BalanceEvent(10))
	h.Publish("a", models.BalanceEvent(20))

	assert.Equal(t, 20, *readEvent(t, a).Balance)
	assert.Equal(t, 10, *readEvent(t, b).Balance)
}

func TestHub_SignedOutClosesConnection(t *testing.T) {
	h := NewHub(zap.NewNop())
	conn := dial(t, newTestServer(t, h)+"?user=u1")
	readEvent(t, conn)
	require.Eventually(t, func() bool { return h.Count("u1") == 1 }, time.Second, 10*time.Millisecond)

	h.Publish("u1", models.Event{Type: models.EventSignedOut})
	assert.Equal(t, models.EventSignedOut, readEvent(t, conn).Type)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return h.Count("u1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	h := NewHub(zap.NewNop())
	conn := dial(t, newTestServer(t, h)+"?user=u1")
	readEvent(t, conn)
	require.Eventually(t, func() bool { return h.Count("u1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.Count("u1") == 0 }, time.Second, 10*time.Millisecond)

	h.Publish("u1", models.BalanceEvent(1))
}
