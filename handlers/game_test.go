package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"pong-match-service/game"
	"pong-match-service/middleware"
	"pong-match-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "gateway-token"

type memStore struct{}

func (memStore) CreateMatch(_ context.Context, p1, p2 int64) (*models.Match, error) {
	return &models.Match{ID: uuid.NewString(), Status: models.MatchStatusOngoing, Player1ID: p1, Player2ID: p2}, nil
}

func (memStore) ClaimSlot(context.Context, models.SlotCoordinate, int64, int64) (*models.Match, error) {
	return nil, models.ErrSlotConflict
}

func (memStore) FinishMatch(context.Context, string, models.MatchResult) error { return nil }

func (memStore) CreateRematch(context.Context, string) (*models.Match, error) {
	return nil, models.ErrMatchNotFound
}

func newTestServer(t *testing.T) (*fiber.App, *game.Coordinator, string) {
	t.Helper()
	coordinator := game.NewCoordinator(game.Options{Store: memStore{}})
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(middleware.GatewayAuthMiddleware(testToken))
	SetupGameRoutes(app, coordinator)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = coordinator.Shutdown(ctx)
		_ = app.ShutdownWithContext(ctx)
	})
	return app, coordinator, "ws://" + ln.Addr().String() + "/ws/game"
}

func dial(t *testing.T, url string, userID int64) *gws.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	if userID != 0 {
		header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	conn, _, err := gws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil returns the first frame of the given type, skipping others.
func readUntil(t *testing.T, conn *gws.Conn, msgType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", msgType)
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame["type"] == msgType {
			return frame
		}
	}
}

func send(t *testing.T, conn *gws.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(frame)))
}

func TestGameSocket_PairsTwoPlayers(t *testing.T) {
	_, _, url := newTestServer(t)

	a := dial(t, url, 1)
	b := dial(t, url, 2)
	readUntil(t, a, "connected")
	readUntil(t, b, "connected")

	send(t, a, `{"type":"queue:join"}`)
	readUntil(t, a, "queue:joined")
	send(t, b, `{"type":"queue:join"}`)

	foundA := readUntil(t, a, "match:found")
	foundB := readUntil(t, b, "match:found")
	assert.Equal(t, foundA["matchId"], foundB["matchId"])
	assert.ElementsMatch(t, []any{"P1", "P2"}, []any{foundA["youAre"], foundB["youAre"]})

	state := readUntil(t, a, "game:state")
	assert.Equal(t, true, state["paused"])
	assert.Contains(t, state["reason"], "SERVES")
}

func TestGameSocket_MalformedFramesAreDropped(t *testing.T) {
	_, _, url := newTestServer(t)

	conn := dial(t, url, 7)
	readUntil(t, conn, "connected")

	send(t, conn, `not json`)
	send(t, conn, `{"type":"warp"}`)
	send(t, conn, `{"type":"ping"}`)
	readUntil(t, conn, "pong")
}

func TestGameSocket_AnonymousCannotPair(t *testing.T) {
	_, _, url := newTestServer(t)

	anon := dial(t, url, 0)
	other := dial(t, url, 3)
	readUntil(t, anon, "connected")
	readUntil(t, other, "connected")

	send(t, anon, `{"type":"queue:join"}`)
	send(t, other, `{"type":"queue:join"}`)

	denied := readUntil(t, anon, "match:reconnect_denied")
	assert.Equal(t, game.ReasonAuthMissing, denied["reason"])
}

func TestGameSocket_CloseUnregisters(t *testing.T) {
	_, coordinator, url := newTestServer(t)

	conn := dial(t, url, 4)
	readUntil(t, conn, "connected")
	assert.Equal(t, 1, coordinator.Stats().Connections)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return coordinator.Stats().Connections == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGameRoutes_HTTP(t *testing.T) {
	app, _, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
		auth bool
		want int
	}{
		{"health", "/health", true, fiber.StatusOK},
		{"health without gateway token", "/health", false, fiber.StatusUnauthorized},
		{"socket without upgrade", "/ws/game", true, fiber.StatusUpgradeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.auth {
				req.Header.Set("Authorization", "Bearer "+testToken)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
