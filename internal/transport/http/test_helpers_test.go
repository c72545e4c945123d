package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/auth"
	"github.com/vovakirdan/teamchat-server/internal/config"
	"github.com/vovakirdan/teamchat-server/internal/core"
	"github.com/vovakirdan/teamchat-server/internal/proto"
	"github.com/vovakirdan/teamchat-server/internal/ratelimit"
	"github.com/vovakirdan/teamchat-server/internal/service/chat"
	"github.com/vovakirdan/teamchat-server/internal/service/projects"
	"github.com/vovakirdan/teamchat-server/internal/service/rooms"
	"github.com/vovakirdan/teamchat-server/internal/store"
	"github.com/vovakirdan/teamchat-server/internal/store/sqlite"
	"github.com/vovakirdan/teamchat-server/internal/store/storetest"
)

const testCookie = "teamchat_session"

// testEnv is a running server backed by an in-memory store. alice owns the
// fixture room, bob is a member of it and carol belongs to nothing.
type testEnv struct {
	ts    *httptest.Server
	store store.Store
	jwt   *auth.JWTConfig
	fx    storetest.Fixture
}

func newTestEnv(t *testing.T, tweak ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		return sqlite.ApplySchema(context.Background(), db)
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.RateLimit.WSFramesPerMinute = 0
	for _, fn := range tweak {
		fn(&cfg)
	}

	logger := zerolog.Nop()
	hub := core.NewHub(st, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	jwtCfg := &auth.JWTConfig{
		Secret: []byte("test-secret-test-secret-test-sec"),
		Issuer: "teamchat-test",
		TTL:    time.Hour,
	}
	svc := Services{
		Hub:            hub,
		Chat:           chat.New(st, hub, &logger),
		Rooms:          rooms.New(st),
		Projects:       projects.New(st),
		Users:          st,
		Sessions:       auth.NewUserSync(auth.NewJWTResolver(jwtCfg, testCookie), st),
		MessageLimiter: ratelimit.NewMemoryLimiter(ratelimit.PerMinute(cfg.RateLimit.MessagesPerMinute)),
	}

	// Same handler tree app.New serves.
	ts := httptest.NewServer(NewServer(svc, &cfg, &logger).Handler)
	t.Cleanup(ts.Close)

	fx := storetest.Seed(t, st, "alice")
	storetest.AddMember(t, st, fx.RoomID, "bob")

	return &testEnv{ts: ts, store: st, jwt: jwtCfg, fx: fx}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(e.jwt, auth.Identity{ID: userID})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

// do sends an API request as userID; an empty userID sends no credentials.
func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		t.Fatalf("expected status %d, got %d (%+v)", want, resp.StatusCode, body)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) postMessage(t *testing.T, userID, roomID, content string) proto.Message {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/chat/messages", userID, map[string]string{
		"roomId":  roomID,
		"content": content,
	})
	expectStatus(t, resp, http.StatusCreated)

	var out MessageResponse
	decodeBody(t, resp, &out)
	return out.Message
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/chat"
}

// dial opens a realtime connection as userID; an empty userID sends no credentials.
func (e *testEnv) dial(ctx context.Context, t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if userID != "" {
		header.Set("Cookie", testCookie+"="+e.token(t, userID))
	}
	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// dialConnected dials and consumes the connected frame.
func (e *testEnv) dialConnected(ctx context.Context, t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn := e.dial(ctx, t, userID)
	f := readFrame(ctx, t, conn)
	if f.Type != proto.OutboundTypeConnected || f.UserID != userID {
		t.Fatalf("expected connected frame for %s, got %+v", userID, f)
	}
	return conn
}

// frame is a union of every server frame.
type frame struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId"`
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

func (f frame) errorText(t *testing.T) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(f.Message, &s); err != nil {
		t.Fatalf("error frame message: %v", err)
	}
	return s
}

func (f frame) chatMessage(t *testing.T) proto.Message {
	t.Helper()
	var m proto.Message
	if err := json.Unmarshal(f.Message, &m); err != nil {
		t.Fatalf("message:new payload: %v", err)
	}
	return m
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func sendRaw(ctx context.Context, t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func subscribe(ctx context.Context, t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	sendRaw(ctx, t, conn, `{"type":"subscribe","roomId":"`+roomID+`"}`)
	f := readFrame(ctx, t, conn)
	if f.Type != proto.OutboundTypeSubscribed || f.RoomID != roomID {
		t.Fatalf("expected subscribed to %s, got %+v", roomID, f)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
