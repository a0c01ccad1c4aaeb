package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatconnect/chatconnect-server/internal/auth"
	"github.com/chatconnect/chatconnect-server/internal/config"
	"github.com/chatconnect/chatconnect-server/internal/core"
	"github.com/chatconnect/chatconnect-server/internal/log"
	"github.com/chatconnect/chatconnect-server/internal/proto"
	"github.com/chatconnect/chatconnect-server/internal/store/sqlite"
)

type testEnv struct {
	ts *httptest.Server
	st *sqlite.SQLiteStore
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.ReceiptRetryBackoff = 5 * time.Millisecond

	logger := log.Discard()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})

	hub := core.NewHub(st, nil, logger, core.Options{
		ReceiptRetryAttempts: cfg.ReceiptRetryAttempts,
		ReceiptRetryBackoff:  cfg.ReceiptRetryBackoff,
		PresenceTTL:          time.Minute,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := NewServer(hub, authService, st, &cfg, logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		st.Close()
	})

	return &testEnv{ts: ts, st: st}
}

func (e *testEnv) postJSON(t *testing.T, path, token string, body any) (*stdhttp.Response, []byte) {
	t.Helper()
	return e.doJSON(t, stdhttp.MethodPost, path, token, body)
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) (*stdhttp.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, out.Bytes()
}

// signup registers a user over the API and returns the auth response.
func (e *testEnv) signup(t *testing.T, name, email string) AuthResponse {
	t.Helper()

	resp, body := e.postJSON(t, "/api/auth/signup", "", SignupRequest{
		Name:     name,
		Email:    email,
		Password: "secret1",
	})
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("signup %s: status %d, body %s", email, resp.StatusCode, body)
	}

	var out AuthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return out
}

func (e *testEnv) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
}

// dialWS opens an authenticated socket and sends the join frame.
func (e *testEnv) dialWS(t *testing.T, ctx context.Context, token, userID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: userID})
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s frame: %v", frameType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: raw}); err != nil {
		t.Fatalf("write %s frame: %v", frameType, err)
	}
}

// wsFrame is the raw outbound envelope as read off the wire.
type wsFrame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// mustFrame reads frames until one of the wanted type arrives, discarding
// everything else.
func mustFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, wantType string) wsFrame {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for {
		var frame wsFrame
		if err := wsjson.Read(readCtx, conn, &frame); err != nil {
			t.Fatalf("waiting for %q frame: %v", wantType, err)
		}
		if frame.Type == wantType {
			return frame
		}
	}
}

func decodeFrame[T any](t *testing.T, frame wsFrame) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(frame.Data, &out); err != nil {
		t.Fatalf("decode %s frame data: %v", frame.Type, err)
	}
	return out
}
