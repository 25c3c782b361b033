package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/digistore-backend/internal/utils"
)

func TestHubSendToUser(t *testing.T) {
	hub := NewHub()
	alice, bob := uuid.New(), uuid.New()

	a1, a2, b := NewClient(alice), NewClient(alice), NewClient(bob)
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)
	assert.Equal(t, 2, hub.ConnectionCount(alice))

	hub.SendToUser(alice, map[string]string{"type": "sale.completed"})

	for _, c := range []*Client{a1, a2} {
		select {
		case msg := <-c.Send:
			assert.JSONEq(t, `{"type":"sale.completed"}`, string(msg))
		default:
			t.Fatal("expected a message")
		}
	}
	assert.Empty(t, b.Send)

	a1.Close()
	a1.Close()
	assert.Equal(t, 1, hub.ConnectionCount(alice))

	// closed clients are skipped, not panicked on
	hub.SendToUser(alice, map[string]string{"type": "x"})
	assert.Len(t, a2.Send, 1)
}

func TestServeStreamsToAuthenticatedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("ws-secret")

	hub := NewHub()
	r := gin.New()
	r.GET("/ws", Serve(hub))
	srv := httptest.NewServer(r)
	defer srv.Close()

	userID := uuid.New()
	token, err := utils.GenerateJWT(userID, "ada", "seller", 1)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ConnectionCount(userID) == 1 }, time.Second, 10*time.Millisecond)

	hub.SendToUser(userID, map[string]string{"type": "purchase.completed"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "purchase.completed", got["type"])
}

func TestServeRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", Serve(NewHub()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
