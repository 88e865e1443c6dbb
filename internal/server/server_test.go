package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bridgeport-dev/bridgeport/internal/event"
	"github.com/bridgeport-dev/bridgeport/internal/tool"
	"github.com/bridgeport-dev/bridgeport/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *event.Bus) {
	t.Helper()

	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	reg := tool.DefaultRegistry(t.TempDir(), nil)
	session := func() types.ServerSession {
		return types.ServerSession{
			Status:      types.StatusRunning,
			CurrentPort: 9960,
		}
	}
	return New(DefaultConfig(), reg, bus, session), bus
}

func doRPC(t *testing.T, srv *Server, body string) rpcResponse {
	t.Helper()

	req := httptest.NewRequest("POST", "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp rpcResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %q", body["status"])
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var session types.ServerSession
	if err := json.NewDecoder(w.Body).Decode(&session); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if session.Status != types.StatusRunning {
		t.Errorf("Expected running status, got %q", session.Status)
	}
	if session.CurrentPort != 9960 {
		t.Errorf("Expected port 9960, got %d", session.CurrentPort)
	}
}

func TestListTools(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/tools", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body struct {
		Tools []string `json:"tools"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	found := false
	for _, name := range body.Tools {
		if name == "file.read" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected file.read in tool list, got %v", body.Tools)
	}
}

func TestRPC_WriteThenRead(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"file.write","params":{"path":"notes.txt","content":"hello"}}`)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	resp = doRPC(t, srv, `{"jsonrpc":"2.0","id":2,"method":"file.read","params":{"path":"notes.txt"}}`)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("Expected object result, got %T", resp.Result)
	}
	if result["content"] != "hello" {
		t.Errorf("Expected content hello, got %v", result["content"])
	}
	if string(resp.ID) != "2" {
		t.Errorf("Expected id 2 echoed back, got %s", resp.ID)
	}
}

func TestRPC_UnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"no.such.tool","params":{}}`)
	if resp.Error == nil {
		t.Fatal("Expected error for unknown method")
	}
	if resp.Error.Code != rpcMethodNotFound {
		t.Errorf("Expected code %d, got %d", rpcMethodNotFound, resp.Error.Code)
	}
}

func TestRPC_ParseError(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRPC(t, srv, `{not json`)
	if resp.Error == nil {
		t.Fatal("Expected parse error")
	}
	if resp.Error.Code != rpcParseError {
		t.Errorf("Expected code %d, got %d", rpcParseError, resp.Error.Code)
	}
}

func TestRPC_InvalidRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRPC(t, srv, `{"id":1,"method":"file.read"}`)
	if resp.Error == nil {
		t.Fatal("Expected invalid request error")
	}
	if resp.Error.Code != rpcInvalidRequest {
		t.Errorf("Expected code %d, got %d", rpcInvalidRequest, resp.Error.Code)
	}
}

func TestRPC_PublishesToolExecutedEvent(t *testing.T) {
	srv, bus := newTestServer(t)

	received := make(chan event.Event, 1)
	unsub := bus.Subscribe(event.ToolExecuted, func(e event.Event) {
		select {
		case received <- e:
		default:
		}
	})
	defer unsub()

	doRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"file.write","params":{"path":"a.txt","content":"x"}}`)

	select {
	case e := <-received:
		data, ok := e.Data.(event.ToolExecutedData)
		if !ok {
			t.Fatalf("Expected ToolExecutedData, got %T", e.Data)
		}
		if data.Tool != "file.write" {
			t.Errorf("Expected tool file.write, got %q", data.Tool)
		}
		if data.CallID == "" {
			t.Error("Expected non-empty call ID")
		}
		if data.Err != "" {
			t.Errorf("Expected no error, got %q", data.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for tool.executed event")
	}
}

// mockResponseWriter implements http.Flusher for testing.
type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() {
	m.flushed++
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}

func TestNewSSEWriter_NoFlusher(t *testing.T) {
	_, err := newSSEWriter(&noFlushWriter{})
	if err == nil {
		t.Error("Expected error for writer without Flusher")
	}
}

func TestSSEWriter_WriteEvent(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	if err != nil {
		t.Fatalf("newSSEWriter failed: %v", err)
	}

	if err := sse.writeEvent("message", map[string]string{"message": "hello"}); err != nil {
		t.Fatalf("writeEvent failed: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: message\n") {
		t.Error("Expected event line")
	}
	if !strings.Contains(body, `"message":"hello"`) {
		t.Error("Expected data to contain message")
	}

	// Check SSE format: event line, data line, empty line
	lines := strings.Split(body, "\n")
	if len(lines) < 3 {
		t.Fatalf("Expected at least 3 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "event: ") {
		t.Errorf("First line should be event, got: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "data: ") {
		t.Errorf("Second line should be data, got: %s", lines[1])
	}
	if lines[2] != "" {
		t.Errorf("Third line should be empty, got: %s", lines[2])
	}
}

func TestSSEWriter_WriteHeartbeat(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	sse.writeHeartbeat()

	if !strings.Contains(w.Body.String(), ": heartbeat\n") {
		t.Errorf("Expected heartbeat comment, got: %s", w.Body.String())
	}
	if w.flushed == 0 {
		t.Error("Expected Flush to be called")
	}
}

func TestStreamEvents_Integration(t *testing.T) {
	srv, bus := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/event", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	var mu sync.Mutex
	var received []StreamEvent
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
			t.Errorf("Expected text/event-stream, got %s", ct)
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var evt StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
				continue
			}
			mu.Lock()
			received = append(received, evt)
			done := len(received) >= 2
			mu.Unlock()
			if done {
				cancel()
				return
			}
		}
	}()

	// Give the subscription time to register before publishing.
	time.Sleep(100 * time.Millisecond)

	bus.Publish(event.Event{
		Type: event.ServerRunning,
		Data: event.StatusData{Update: types.StatusUpdate{
			Status: types.StatusRunning,
			Port:   9960,
		}},
	})

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(received) < 2 {
		t.Fatalf("Expected connected event plus published event, got %d", len(received))
	}
	if received[0].Type != "server.connected" {
		t.Errorf("Expected server.connected first, got %s", received[0].Type)
	}
	if received[1].Type != event.ServerRunning {
		t.Errorf("Expected server.running, got %s", received[1].Type)
	}
}
