package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/digest"
	"github.com/mattjoyce/testagent/internal/events"
	"github.com/mattjoyce/testagent/internal/protocol"
	"github.com/mattjoyce/testagent/internal/workspace"
)

// mockHistory implements HistoryReader for testing
type mockHistory struct {
	recentFunc func(ctx context.Context, limit int) ([]protocol.HistoryEntry, error)
}

func (m *mockHistory) Recent(ctx context.Context, limit int) ([]protocol.HistoryEntry, error) {
	return m.recentFunc(ctx, limit)
}

type testAgent struct {
	server  *Server
	handler http.Handler
	store   *workspace.Store
	hub     *events.Hub
	metrics *Metrics
}

func newTestAgent(t *testing.T, opts ...Option) *testAgent {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := events.NewHub(64)
	metrics := NewMetrics("testagent")
	bridge := events.NewBridge(hub)

	exec := command.NewExecutor(
		command.WithLogger(logger),
		command.WithObserver(bridge),
		command.WithObserver(metrics),
	)
	store, err := workspace.NewStore(t.TempDir(),
		workspace.WithRetention(3),
		workspace.WithKiller(exec),
		workspace.WithLogger(logger),
		workspace.WithObserver(bridge),
		workspace.WithObserver(metrics),
	)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Wait)

	opts = append([]Option{WithEvents(hub), WithMetrics(metrics)}, opts...)
	srv := New(Config{Listen: "127.0.0.1:0"}, store, exec, logger, opts...)
	return &testAgent{server: srv, handler: srv.Handler(), store: store, hub: hub, metrics: metrics}
}

func (a *testAgent) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testAgent) create(t *testing.T) protocol.Workspace {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/test", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /test status = %d, body %s", rr.Code, rr.Body.String())
	}
	var ws protocol.Workspace
	if err := json.NewDecoder(rr.Body).Decode(&ws); err != nil {
		t.Fatalf("decode workspace: %v", err)
	}
	return ws
}

func TestHandleHealthz(t *testing.T) {
	a := newTestAgent(t)
	a.create(t)
	a.create(t)

	rr := a.do(t, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp protocol.Health
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Workspaces != 2 {
		t.Errorf("workspaces = %d, want 2", resp.Workspaces)
	}
	if resp.RunningCommands != 0 {
		t.Errorf("running = %d, want 0", resp.RunningCommands)
	}
}

func TestCreateWorkspace(t *testing.T) {
	a := newTestAgent(t)

	first := a.create(t)
	second := a.create(t)

	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", first.ID, second.ID)
	}
	if first.NextCommand != 1 {
		t.Errorf("nextCommand = %d, want 1", first.NextCommand)
	}
	if len(first.Commands) != 0 {
		t.Errorf("commands = %v, want empty", first.Commands)
	}
	info, err := os.Stat(first.Folder)
	if err != nil || !info.IsDir() {
		t.Fatalf("workspace folder %q missing: %v", first.Folder, err)
	}
	if filepath.Base(first.Folder) != "1" {
		t.Errorf("folder = %q, want basename 1", first.Folder)
	}
}

func TestCreateWorkspaceBodyIsEmptyCommandsObject(t *testing.T) {
	a := newTestAgent(t)
	rr := a.do(t, http.MethodPost, "/test", nil)
	if !strings.Contains(rr.Body.String(), `"commands":{}`) {
		t.Fatalf("body = %s, want commands:{}", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestUnknownWorkspaceReturns404(t *testing.T) {
	a := newTestAgent(t)
	a.create(t)

	cases := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/test/999999"},
		{http.MethodPost, "/test/999999/keep"},
		{http.MethodPost, "/test/999999/done"},
		{http.MethodPost, "/test/999999/delete"},
		{http.MethodPost, "/test/999999/file?path=a.txt"},
		{http.MethodGet, "/test/999999/file?path=a.txt"},
		{http.MethodPost, "/test/999999/command?cmd=true"},
		{http.MethodGet, "/test/999999/command/1"},
		{http.MethodPost, "/test/999999/command/1/kill"},
		{http.MethodGet, "/test/abc"},
		{http.MethodGet, "/test/0"},
		{http.MethodGet, "/test/-1"},
		{http.MethodGet, "/test/1/command/999999"},
		{http.MethodGet, "/test/1/command/xyz"},
		{http.MethodPost, "/test/1/command/999999/kill"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rr := a.do(t, tc.method, tc.target, strings.NewReader("x"))
			if rr.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404 (body %s)", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestBadRequests(t *testing.T) {
	a := newTestAgent(t)
	a.create(t)

	cases := []struct {
		name   string
		method string
		target string
	}{
		{"upload without path", http.MethodPost, "/test/1/file"},
		{"download without path", http.MethodGet, "/test/1/file"},
		{"upload escaping root", http.MethodPost, "/test/1/file?path=../../etc/x"},
		{"download escaping root", http.MethodGet, "/test/1/file?path=../outside"},
		{"upload to workspace root", http.MethodPost, "/test/1/file?path=."},
		{"upload to slash", http.MethodPost, "/test/1/file?path=/"},
		{"download of workspace root", http.MethodGet, "/test/1/file?path=sub/.."},
		{"command without cmd", http.MethodPost, "/test/1/command"},
		{"blank command", http.MethodPost, "/test/1/command?cmd=%20%20"},
		{"escaping cwd", http.MethodPost, "/test/1/command?cmd=true&cwd=../.."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := a.do(t, tc.method, tc.target, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	a := newTestAgent(t)
	ws := a.create(t)

	payload := bytes.Repeat([]byte("artifact-bytes\n"), 4096)
	rr := a.do(t, http.MethodPost, "/test/1/file?path=nested/dir/blob.bin", bytes.NewReader(payload))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got, want := rr.Header().Get(digest.Header), digest.Bytes(payload); got != want {
		t.Errorf("upload digest = %q, want %q", got, want)
	}

	onDisk, err := os.ReadFile(filepath.Join(ws.Folder, "nested", "dir", "blob.bin"))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if !bytes.Equal(onDisk, payload) {
		t.Fatal("file on disk differs from upload")
	}

	rr = a.do(t, http.MethodGet, "/test/1/file?path=nested/dir/blob.bin", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("download status = %d", rr.Code)
	}
	if !bytes.Equal(rr.Body.Bytes(), payload) {
		t.Fatal("downloaded bytes differ from upload")
	}
	if got, want := rr.Header().Get(digest.Header), digest.Bytes(payload); got != want {
		t.Errorf("download digest = %q, want %q", got, want)
	}
}

func TestUploadOverwritesAndLeadingSlashIsRelative(t *testing.T) {
	a := newTestAgent(t)
	ws := a.create(t)

	a.do(t, http.MethodPost, "/test/1/file?path=/a.txt", strings.NewReader("one"))
	rr := a.do(t, http.MethodPost, "/test/1/file?path=a.txt", strings.NewReader("two"))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rr.Code)
	}
	data, err := os.ReadFile(filepath.Join(ws.Folder, "a.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("content = %q, want two", data)
	}
}

func TestUploadEmptyBody(t *testing.T) {
	a := newTestAgent(t)
	ws := a.create(t)

	rr := a.do(t, http.MethodPost, "/test/1/file?path=empty", http.NoBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	info, err := os.Stat(filepath.Join(ws.Folder, "empty"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestDownloadMissingOrDirectory(t *testing.T) {
	a := newTestAgent(t)
	ws := a.create(t)
	if err := os.Mkdir(filepath.Join(ws.Folder, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"nope.txt", "sub"} {
		rr := a.do(t, http.MethodGet, "/test/1/file?path="+p, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", p, rr.Code)
		}
	}
}

func TestKeepExemptsFromEviction(t *testing.T) {
	a := newTestAgent(t)
	a.create(t) // 1
	if rr := a.do(t, http.MethodPost, "/test/1/keep", nil); rr.Code != http.StatusOK {
		t.Fatalf("keep status = %d", rr.Code)
	}
	for i := 0; i < 4; i++ {
		a.create(t) // 2..5, retention 3 evicts 2
	}

	if rr := a.do(t, http.MethodGet, "/test/1", nil); rr.Code != http.StatusOK {
		t.Errorf("kept workspace status = %d, want 200", rr.Code)
	}
	if rr := a.do(t, http.MethodGet, "/test/2", nil); rr.Code != http.StatusNotFound {
		t.Errorf("evicted workspace status = %d, want 404", rr.Code)
	}
	for _, id := range []string{"3", "4", "5"} {
		if rr := a.do(t, http.MethodGet, "/test/"+id, nil); rr.Code != http.StatusOK {
			t.Errorf("workspace %s status = %d, want 200", id, rr.Code)
		}
	}
}

func TestDeleteWorkspace(t *testing.T) {
	a := newTestAgent(t)
	ws := a.create(t)

	if rr := a.do(t, http.MethodPost, "/test/1/delete", nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := a.do(t, http.MethodGet, "/test/1", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("after delete status = %d, want 404", rr.Code)
	}
	if rr := a.do(t, http.MethodPost, "/test/1/delete", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rr.Code)
	}

	a.store.Wait()
	if _, err := os.Stat(ws.Folder); !os.IsNotExist(err) {
		t.Fatalf("folder still present after delete: %v", err)
	}
}

func TestDoneKeepsFiles(t *testing.T) {
	a := newTestAgent(t)
	ws := a.create(t)
	a.do(t, http.MethodPost, "/test/1/file?path=keep.txt", strings.NewReader("data"))

	rr := a.do(t, http.MethodPost, "/test/1/done", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("done status = %d", rr.Code)
	}
	if _, err := os.Stat(filepath.Join(ws.Folder, "keep.txt")); err != nil {
		t.Fatalf("file removed by done: %v", err)
	}
	if rr := a.do(t, http.MethodGet, "/test/1", nil); rr.Code != http.StatusOK {
		t.Fatalf("workspace gone after done: %d", rr.Code)
	}
}

func TestWorkspacePathWithTrailingSlash(t *testing.T) {
	a := newTestAgent(t)
	a.create(t)
	if rr := a.do(t, http.MethodGet, "/test/1/", nil); rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestHandleHistory(t *testing.T) {
	var gotLimit int
	h := &mockHistory{
		recentFunc: func(ctx context.Context, limit int) ([]protocol.HistoryEntry, error) {
			gotLimit = limit
			return []protocol.HistoryEntry{{WorkspaceID: 4, CommandID: 2, Command: "make", Status: protocol.StatusDone}}, nil
		},
	}
	a := newTestAgent(t, WithHistory(h))

	rr := a.do(t, http.MethodGet, "/history?limit=5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if gotLimit != 5 {
		t.Errorf("limit = %d, want 5", gotLimit)
	}
	var entries []protocol.HistoryEntry
	if err := json.NewDecoder(rr.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Command != "make" {
		t.Fatalf("entries = %+v", entries)
	}

	for _, bad := range []string{"abc", "-2"} {
		if rr := a.do(t, http.MethodGet, "/history?limit="+bad, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("limit %s status = %d, want 400", bad, rr.Code)
		}
	}
}

func TestHandleHistoryError(t *testing.T) {
	h := &mockHistory{
		recentFunc: func(ctx context.Context, limit int) ([]protocol.HistoryEntry, error) {
			return nil, errors.New("disk on fire")
		},
	}
	a := newTestAgent(t, WithHistory(h))
	if rr := a.do(t, http.MethodGet, "/history", nil); rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAgent(t)
	a.create(t)
	a.do(t, http.MethodGet, "/test/999999", nil)

	rr := a.do(t, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`testagent_http_requests_total{method="POST",route="/test",status="200"} 1`,
		`status="404"`,
		`testagent_workspaces 1`,
		`testagent_workspace_events_total{event="workspace.created"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestEventsStream(t *testing.T) {
	a := newTestAgent(t)
	a.create(t)

	ts := httptest.NewServer(a.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// The replayed creation arrives first; a live keep follows.
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = a.store.Keep(1)
	}()

	scanner := bufio.NewScanner(resp.Body)
	var seen []string
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			seen = append(seen, name)
			if name == protocol.EventWorkspaceKept {
				break
			}
		}
	}
	if len(seen) != 2 || seen[0] != protocol.EventWorkspaceCreated || seen[1] != protocol.EventWorkspaceKept {
		t.Fatalf("events = %v", seen)
	}
}

func TestEventsResumeFromLastEventID(t *testing.T) {
	a := newTestAgent(t)
	a.create(t)
	a.create(t)

	ts := httptest.NewServer(a.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if id, ok := strings.CutPrefix(scanner.Text(), "id: "); ok {
			if id != "2" {
				t.Fatalf("first replayed id = %s, want 2", id)
			}
			return
		}
	}
	t.Fatal("stream ended before any event")
}

func TestEventsDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := workspace.NewStore(t.TempDir(), workspace.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	srv := New(Config{}, store, command.NewExecutor(command.WithLogger(logger)), logger)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("metrics status = %d, want 404", rr.Code)
	}
}

func TestParseID(t *testing.T) {
	cases := map[string]bool{"1": true, "42": true, "0": false, "-3": false, "x": false, "": false, "1.5": false}
	for in, ok := range cases {
		if _, got := parseID(in); got != ok {
			t.Errorf("parseID(%q) ok = %v, want %v", in, got, ok)
		}
	}
}

func TestParseLastEventID(t *testing.T) {
	if got := parseLastEventID(""); got != 0 {
		t.Errorf("empty = %d", got)
	}
	if got := parseLastEventID("17"); got != 17 {
		t.Errorf("17 = %d", got)
	}
	if got := parseLastEventID("bogus"); got != 0 {
		t.Errorf("bogus = %d", got)
	}
}
