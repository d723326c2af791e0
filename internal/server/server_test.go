package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/eyeguard/internal/alarm"
	"github.com/ayusman/eyeguard/internal/metrics"
	"github.com/ayusman/eyeguard/internal/monitor"
)

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/api/settings", "/api/hooks", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>EyeGuard</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		// FileServer redirects /index.html to /
		if rec.Code != http.StatusMovedPermanently && rec.Code != http.StatusOK {
			t.Errorf("expected status 200 or 301, got %d", rec.Code)
		}
	})

	t.Run("serves index at root", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("API routes take precedence", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
			t.Errorf("expected health response, got %s", rec.Body.String())
		}
	})
}

func TestServer_Metrics(t *testing.T) {
	metrics.Init()
	s := New(Config{Metrics: true})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "eyeguard_") {
		t.Error("expected eyeguard metrics in output")
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := New(Config{})

	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() before start error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe("127.0.0.1:0") }()

	// Wait for the http.Server to be registered.
	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		started := s.httpSrv != nil
		s.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v, want nil after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}
}

type fakeFrames struct {
	mu  sync.Mutex
	buf []byte
}

func (f *fakeFrames) LatestJPEG() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf
}

func TestStreamHandler(t *testing.T) {
	frame := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	ts := httptest.NewServer(NewStreamHandler(&fakeFrames{buf: frame}, 5*time.Millisecond))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("unexpected Content-Type %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	header := make([]string, 0, 3)
	for len(header) < 3 {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading part header: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		header = append(header, line)
	}
	want := []string{"--frame", "Content-Type: image/jpeg", "Content-Length: 6"}
	for i := range want {
		if i >= len(header) || header[i] != want[i] {
			t.Fatalf("part header = %q, want %q", header, want)
		}
	}

	if line, _ := r.ReadString('\n'); line != "\r\n" {
		t.Fatalf("expected blank line after part header, got %q", line)
	}
	body := make([]byte, len(frame))
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, frame) {
		t.Errorf("frame = %x, want %x", body, frame)
	}
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	h := NewStreamHandler(&fakeFrames{}, 0)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

type fakeReadings struct {
	mu     sync.Mutex
	latest monitor.Reading
	subs   map[int]func(monitor.Reading)
	next   int
}

func newFakeReadings() *fakeReadings {
	return &fakeReadings{subs: make(map[int]func(monitor.Reading))}
}

func (f *fakeReadings) Subscribe(fn func(monitor.Reading)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeReadings) LatestReading() monitor.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

func (f *fakeReadings) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeReadings) emit(r monitor.Reading) {
	f.mu.Lock()
	subs := make([]func(monitor.Reading), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(r)
	}
}

func TestStateHandler(t *testing.T) {
	src := newFakeReadings()
	src.latest = monitor.Reading{EyesOpen: true}

	ts := httptest.NewServer(NewStateHandler(src))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	read := func() map[string]any {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid JSON %s: %v", data, err)
		}
		return msg
	}

	first := read()
	if first["eyes_open"] != true || first["alarm"] != "idle" {
		t.Errorf("unexpected first message %v", first)
	}

	deadline := time.Now().Add(time.Second)
	for src.subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	src.emit(monitor.Reading{Tracking: true, Observed: true, Alarm: alarm.Sounding})
	msg := read()
	if msg["alarm"] != "sounding" || msg["eyes_open"] != false || msg["tracking"] != true {
		t.Errorf("unexpected message %v", msg)
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for src.subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := src.subscribers(); n != 0 {
		t.Errorf("subscription leaked after disconnect, %d left", n)
	}
}

func TestStateHandler_SlowClientDoesNotBlock(t *testing.T) {
	src := newFakeReadings()

	ts := httptest.NewServer(NewStateHandler(src))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for src.subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10*clientBacklog; i++ {
			src.emit(monitor.Reading{Tracking: true})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on an unread client")
	}
}
