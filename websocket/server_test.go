package websocket

import (
	"bytes"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/esimov/water-fluid/controller"
	"github.com/gorilla/websocket"
)

func newServer(t *testing.T, root string) (*Server, *httptest.Server) {
	t.Helper()
	s := controller.DefaultSettings()
	s.GridSize = 16
	ctrl, err := controller.New(s)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(HttpParams{Prefix: "/", Root: root}, ctrl, 30, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func (s *Server) density() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Solver().TotalDensity()
}

func (s *Server) numClients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func TestPointerEventsInjectFluid(t *testing.T) {
	srv, ts := newServer(t, "")
	conn := dial(t, ts)

	if err := conn.WriteJSON(Event{Type: "press", X: 50, Y: 50, Width: 100, Height: 100}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return srv.density() > 0 })

	if err := conn.WriteJSON(Event{Type: "reset"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return srv.density() == 0 })
}

func TestTickBroadcastsFrames(t *testing.T) {
	srv, ts := newServer(t, "")
	conn := dial(t, ts)
	waitFor(t, func() bool { return srv.numClients() == 1 })

	if err := srv.Tick(); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("expected a binary frame, got message type %d", mt)
	}
	img, err := png.Decode(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("frame is not a png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16*cellPixels || b.Dy() != 16*cellPixels {
		t.Errorf("unexpected frame size %v", b)
	}
}

func TestClientIsUnregisteredOnClose(t *testing.T) {
	srv, ts := newServer(t, "")
	conn := dial(t, ts)
	waitFor(t, func() bool { return srv.numClients() == 1 })

	conn.Close()
	waitFor(t, func() bool { return srv.numClients() == 0 })
}

func TestFrameHandler(t *testing.T) {
	srv, ts := newServer(t, "")
	srv.apply(Event{Type: "press", X: 8, Y: 8, Width: 16, Height: 16})

	resp, err := http.Get(ts.URL + "/frame.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	_, _, b, _ := img.At(8*cellPixels, 8*cellPixels).RGBA()
	if b == 0 {
		t.Error("expected colored pixel under the injected density")
	}
}

func TestStaticFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "style.css"), []byte("canvas { width: 100%; }"), 0644); err != nil {
		t.Fatal(err)
	}
	_, ts := newServer(t, root)

	resp, err := http.Get(ts.URL + "/style.css")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServesBrowserClient(t *testing.T) {
	_, ts := newServer(t, filepath.Join("..", "web"))

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"fluid-canvas", "/ws", "'press'", "'drag'", "'release'"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("client page does not reference %s", want)
		}
	}
}

func TestWebcamFramesIgnoredWithoutDetector(t *testing.T) {
	srv, _ := newServer(t, "")
	if err := srv.detect([]byte("not an image")); err != nil {
		t.Errorf("expected frames to be ignored without a detector, got %v", err)
	}
}

func TestOversizedMessageDropsClient(t *testing.T) {
	srv, ts := newServer(t, "")
	conn := dial(t, ts)
	waitFor(t, func() bool { return srv.numClients() == 1 })

	// the server may hang up before the whole payload is written
	conn.WriteMessage(websocket.BinaryMessage, make([]byte, maxMessageSize+1))
	waitFor(t, func() bool { return srv.numClients() == 0 })
}
