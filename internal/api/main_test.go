package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"barcode-server/internal/auth"
	"barcode-server/internal/config"
	"barcode-server/internal/database"
	"barcode-server/internal/logger"
	"barcode-server/internal/models"
	"barcode-server/internal/storage"
	"barcode-server/internal/websocket"

	"github.com/stretchr/testify/require"
)

const testSecret = "api_test_secret"

type testEnv struct {
	server  *Server
	store   *database.FileStore
	storage *storage.LocalStorage
	hub     *websocket.Hub
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, func(fs *database.FileStore) database.Store { return fs })
}

// newTestEnvWithStore lets a test wrap the FileStore the server talks to.
func newTestEnvWithStore(t *testing.T, wrap func(*database.FileStore) database.Store) *testEnv {
	t.Helper()
	dir := t.TempDir()
	log := logger.Nop()

	store, err := database.OpenFileStore(filepath.Join(dir, "database.json"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	localStorage, err := storage.NewLocalStorage(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	cfg := &config.Config{
		JWT:     config.JWTConfig{Secret: testSecret, TTL: time.Hour},
		Storage: config.StorageConfig{Path: localStorage.BasePath(), MaxUploadBytes: 5 << 20},
		CORS:    config.CORSConfig{Origins: []string{"http://localhost:3001"}},
	}
	server := NewServer(cfg, wrap(store), localStorage, hub, log)

	return &testEnv{
		server:  server,
		store:   store,
		storage: localStorage,
		hub:     hub,
		handler: server.Router(),
	}
}

// createUser stores a user directly and returns its id and a valid token.
func (e *testEnv) createUser(t *testing.T, username string) (int64, string) {
	t.Helper()
	hash, err := auth.HashPassword("password")
	require.NoError(t, err)
	id, err := e.store.CreateUser(context.Background(), username, hash)
	require.NoError(t, err)
	token, err := auth.GenerateJWT(&models.User{ID: id, Username: username}, testSecret, time.Hour)
	require.NoError(t, err)
	return id, token
}

func (e *testEnv) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, field, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/barcodes", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type receivedEvent struct {
	EventType websocket.EventKind `json:"event_type"`
	Payload   json.RawMessage     `json:"payload"`
}

func nextEvent(t *testing.T, sub *websocket.Subscription) receivedEvent {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		var ev receivedEvent
		require.NoError(t, json.Unmarshal(msg, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return receivedEvent{}
	}
}

func noEvent(t *testing.T, sub *websocket.Subscription) {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected event %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
