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

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"collabedit/internal/auth"
	collabSvc "collabedit/internal/domain/services/collab"
	"collabedit/internal/middleware"
	"collabedit/internal/realtime"
	"collabedit/internal/repository/memory"
	authSvc "collabedit/internal/service/auth"
	svc "collabedit/internal/service/collab"
)

const (
	testSecret  = "handler-test-secret"
	readTimeout = 5 * time.Second
)

type fakeSandbox struct{}

func (fakeSandbox) Execute(_ context.Context, fileName, contents string) (*collabSvc.RunResult, error) {
	return &collabSvc.RunResult{Success: true, Stdout: fileName + ":" + contents}, nil
}

type testServer struct {
	*httptest.Server
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	identity := svc.NewIdentityService(store.Users(), logger)
	authorizer := authSvc.NewRoleAuthorizer()
	cache := realtime.NewMapCache()
	hub := realtime.NewHub(realtime.NewRegistry(), cache, store.Projects(), store.States(), store.Files(), store.TxManager(), 1<<20, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	projects := svc.NewProjectService(store.Projects(), store.States(), store.Files(), store.TxManager(), identity, authorizer, logger)
	files := svc.NewFileService(store.Projects(), store.States(), store.Files(), store.TxManager(), authorizer, cache, hub, fakeSandbox{}, logger)
	snapshots := svc.NewSnapshotService(store.Projects(), store.States(), store.Files(), store.TxManager(), authorizer, cache, hub, logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, &Handlers{
		Projects:  NewProjectHandler(projects, logger),
		Files:     NewFileHandler(files, logger),
		Snapshots: NewSnapshotHandler(snapshots, logger),
		Users:     NewUserHandler(identity, logger),
		WS:        NewWSHandler(hub, []string{"*"}, 1<<20, logger),
	})

	verifier, err := auth.NewHMACVerifier(testSecret, logger)
	if err != nil {
		t.Fatal(err)
	}

	var h http.Handler = mux
	h = middleware.Recovery(logger)(h)
	h = middleware.AuthMiddleware(verifier, identity, logger)(h)
	h = middleware.RequestLogger(logger)(h)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, store: store}
}

func token(t *testing.T, userID, username string) string {
	t.Helper()
	tok, err := auth.SignHS256(testSecret, userID, username, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// do sends a JSON request as userID and decodes the response into out when non-nil
func (s *testServer) do(t *testing.T, userID, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID, userID+"-name"))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// mustDo is do with an expected status
func (s *testServer) mustDo(t *testing.T, userID, method, path string, body any, want int, out any) {
	t.Helper()
	if got := s.do(t, userID, method, path, body, out); got != want {
		t.Fatalf("%s %s as %s: status = %d, want %d", method, path, userID, got, want)
	}
}

// dial opens the editor socket as userID
func (s *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token(t, userID, userID+"-name")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", userID, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func emit(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// next reads the next message and checks its event name
func next(t *testing.T, ws *websocket.Conn, event string, out any) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(readTimeout))
	var msg received
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("waiting for %s: %v", event, err)
	}
	if msg.Event != event {
		t.Fatalf("got event %s (%s), want %s", msg.Event, msg.Data, event)
	}
	if out != nil {
		if err := json.Unmarshal(msg.Data, out); err != nil {
			t.Fatal(err)
		}
	}
}
