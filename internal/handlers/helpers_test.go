package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/livestream-signaling/config"
	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/models"
	"github.com/mossy-p/livestream-signaling/internal/signaling"
)

func init() {
	gin.SetMode(gin.TestMode)
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

const (
	testSecret   = "test-secret"
	testPassword = "hunter2"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		Environment:      "test",
		AllowedOrigins:   []string{"http://localhost:3000"},
		JWTSecret:        testSecret,
		OperatorPassword: testPassword,
		WebSocket: config.WebSocketConfig{
			PingInterval:   54 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     64,
		},
		Signaling: config.SignalingConfig{QueueSize: 64},
	}
}

// startCore runs a coordinator for the duration of the test.
func startCore(t *testing.T) *signaling.Coordinator {
	t.Helper()
	coord := signaling.New(signaling.Config{QueueSize: 64}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		coord.Close()
	})
	return coord
}

type fakeBreaker string

func (b fakeBreaker) State() string { return string(b) }

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

// wsFrame is a server frame as seen by a websocket client.
type wsFrame struct {
	Type        models.EventType `json:"type"`
	From        string           `json:"from"`
	BroadcastID string           `json:"broadcastId"`
	Payload     json.RawMessage  `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signal" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want models.EventType) wsFrame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatal(err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var f wsFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode frame %s: %v", data, err)
		}
		if f.Type == want {
			return f
		}
	}
}
