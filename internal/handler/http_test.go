package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	gorilla "github.com/gorilla/websocket"
	"github.com/leaderboard-live/internal/auth"
	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
	redisstore "github.com/leaderboard-live/internal/redis"
	"github.com/leaderboard-live/internal/service"
	"github.com/leaderboard-live/internal/websocket"
	"github.com/leaderboard-live/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	srv   *httptest.Server
	svc   *service.LeaderboardService
	total *redisstore.RankingStore
	mr    *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := config.DefaultConfig()
	cfg.Auth.Secret = testSecret
	cfg.Session.PollInterval = 50 * time.Millisecond
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	total := redisstore.NewRankingStore(client, cfg.Redis.TotalKey)
	daily := redisstore.NewRankingStore(client, cfg.Redis.DailyKey)
	profiles := redisstore.NewProfileStore(client)

	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	svc := service.NewLeaderboardService(total, daily, profiles, &cfg.Ranking, logger)
	svc.SetNotifier(hub)

	scheduler := worker.NewScheduler(
		worker.NewSnapshotJob(total, daily, logger),
		worker.NewDistributionJob(total, daily, &cfg.Ranking, logger),
		&cfg.Schedule,
		logger,
	)

	h := NewHandler(
		svc,
		scheduler,
		hub,
		auth.NewTokenIdentifier(&cfg.Auth),
		&cfg.Session,
		func(ctx context.Context) error { return client.Ping(ctx).Err() },
		logger,
	)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, svc: svc, total: total, mr: mr}
}

func (ts *testServer) register(t *testing.T, id, name string, score int64) {
	t.Helper()
	ctx := context.Background()
	_, _, err := ts.svc.Register(ctx, domain.Identity{ID: id, Name: name, Country: "TR"})
	require.NoError(t, err)
	if score > 0 {
		_, err = ts.total.Increment(ctx, id, score)
		require.NoError(t, err)
	}
}

type viewResponse struct {
	Success bool        `json:"success"`
	Data    domain.View `json:"data"`
	Error   string      `json:"error"`
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	var health APIResponse
	decode(t, resp, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, health.Success)

	resp, err = http.Get(ts.srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ts.mr.Close()
	resp, err = http.Get(ts.srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTopAndView(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "p1", "Ada", 300)
	ts.register(t, "p2", "Bob", 200)
	ts.register(t, "p3", "Cem", 100)

	resp, err := http.Get(ts.srv.URL + "/api/v1/leaderboard/top")
	require.NoError(t, err)
	var top viewResponse
	decode(t, resp, &top)
	require.Len(t, top.Data, 3)
	assert.Equal(t, []string{"p1", "p2", "p3"}, top.Data.IDs())
	assert.Equal(t, "Ada", top.Data[0].Name)
	assert.Equal(t, int64(300), top.Data[0].Money)

	resp, err = http.Get(ts.srv.URL + "/api/v1/players/p3/view")
	require.NoError(t, err)
	var view viewResponse
	decode(t, resp, &view)
	assert.Equal(t, top.Data.IDs(), view.Data.IDs())
}

func TestSubmitAward(t *testing.T) {
	ts := newTestServer(t)

	resp := post(t, ts.srv.URL+"/api/v1/players/p9/awards", `{"amount":42,"name":"Zoe","country":"NZ"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(ts.srv.URL + "/api/v1/players/p9/view")
	require.NoError(t, err)
	var view viewResponse
	decode(t, resp, &view)
	require.Len(t, view.Data, 1)
	assert.Equal(t, "Zoe", view.Data[0].Name)
	assert.Equal(t, "NZ", view.Data[0].Country)
	assert.Equal(t, int64(42), view.Data[0].Money)

	resp = post(t, ts.srv.URL+"/api/v1/players/p9/awards", `{}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	score, err := ts.mr.ZScore("ranking:total", "p9")
	require.NoError(t, err)
	assert.Equal(t, float64(43), score)
}

func TestSubmitAwardUnknownPlayer(t *testing.T) {
	ts := newTestServer(t)

	resp := post(t, ts.srv.URL+"/api/v1/players/nobody/awards", `{"amount":50}`)
	var body APIResponse
	decode(t, resp, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, body.Success)

	n, err := ts.total.Cardinality(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmitAwardRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "negative amount", body: `{"amount":-5}`},
		{name: "malformed body", body: `{"amount":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.srv.URL+"/api/v1/players/p1/awards", tt.body)
			var body APIResponse
			decode(t, resp, &body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, body.Success)
		})
	}

	resp := post(t, ts.srv.URL+"/api/v1/awards/batch", `{"awards":[]}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitAwardBatch(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "p1", "Ada", 0)

	body := `{"awards":[
		{"player_id":"p1","amount":10},
		{"player_id":"p2","name":"Bob","amount":20},
		{"player_id":"ghost","amount":99}
	]}`
	resp := post(t, ts.srv.URL+"/api/v1/awards/batch", body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(ts.srv.URL + "/api/v1/leaderboard/top")
	require.NoError(t, err)
	var top viewResponse
	decode(t, resp, &top)
	assert.Equal(t, []string{"p2", "p1"}, top.Data.IDs())
}

func TestAdminJobs(t *testing.T) {
	ts := newTestServer(t)

	resp := post(t, ts.srv.URL+"/api/v1/admin/distribute", "")
	var skipped struct {
		Data map[string]string `json:"data"`
	}
	decode(t, resp, &skipped)
	assert.Equal(t, "skipped", skipped.Data["status"])

	ts.register(t, "p1", "Ada", 500)
	ts.register(t, "p2", "Bob", 300)
	ts.register(t, "p3", "Cem", 200)

	resp = post(t, ts.srv.URL+"/api/v1/admin/snapshot", "")
	var snap struct {
		Data map[string]interface{} `json:"data"`
	}
	decode(t, resp, &snap)
	assert.Equal(t, float64(3), snap.Data["snapshotted"])

	resp = post(t, ts.srv.URL+"/api/v1/admin/distribute", "")
	var dist struct {
		Success bool                `json:"success"`
		Data    domain.Distribution `json:"data"`
	}
	decode(t, resp, &dist)
	require.True(t, dist.Success)
	assert.Equal(t, int64(1000), dist.Data.Total)
	require.Len(t, dist.Data.Payouts, 3)
	assert.Equal(t, int64(4), dist.Data.Payouts[0].Amount)
	assert.Equal(t, int64(3), dist.Data.Payouts[1].Amount)
	assert.Equal(t, int64(2), dist.Data.Payouts[2].Amount)

	n, err := ts.total.Cardinality(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func signToken(t *testing.T, id, name string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{PlayerID: id, Name: name, Country: "TR"})
	raw, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads messages until one satisfies match
func readUntil(t *testing.T, conn *gorilla.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketSessionFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "p1", "Ada", 50)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=" + signToken(t, "p2", "Bob")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readUntil(t, conn, func(m wsMessage) bool { return m.Type == websocket.MessageTypeScore })
	var view domain.View
	require.NoError(t, json.Unmarshal(msg.Data, &view))
	assert.Equal(t, []string{"p1", "p2"}, view.IDs())
	assert.Equal(t, "Bob", view[1].Name)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "end_game", "amount": 100}))

	readUntil(t, conn, func(m wsMessage) bool { return m.Type == websocket.MessageTypeAwarded })
	msg = readUntil(t, conn, func(m wsMessage) bool {
		if m.Type != websocket.MessageTypeScore {
			return false
		}
		var v domain.View
		require.NoError(t, json.Unmarshal(m.Data, &v))
		return len(v) > 0 && v[0].ID == "p2"
	})
	require.NoError(t, json.Unmarshal(msg.Data, &view))
	assert.Equal(t, int64(100), view[0].Money)
	assert.Equal(t, []string{"p2", "p1"}, view.IDs())

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "end_game", "amount": -1}))
	readUntil(t, conn, func(m wsMessage) bool { return m.Type == websocket.MessageTypeError })

	assert.Equal(t, 1, wsConnections(t, ts))
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return wsConnections(t, ts) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func wsConnections(t *testing.T, ts *testServer) int {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + "/api/v1/ws/stats")
	require.NoError(t, err)
	var stats struct {
		Data struct {
			TotalConnections int `json:"total_connections"`
		} `json:"data"`
	}
	decode(t, resp, &stats)
	return stats.Data.TotalConnections
}
