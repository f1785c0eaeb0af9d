package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codearena/internal/cli/command"
	httpclient "codearena/internal/cli/http"
	"codearena/internal/cli/state"
)

type scriptReader struct {
	lines   []string
	prompts []string
	closed  bool
}

func (r *scriptReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptReader) SetPrompt(prompt string) {
	r.prompts = append(r.prompts, prompt)
}

func (r *scriptReader) Close() error {
	r.closed = true
	return nil
}

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   string
}

func newSession(t *testing.T, baseURL string, lines ...string) (*Session, *scriptReader, *bytes.Buffer, *state.Session) {
	t.Helper()
	session := &state.Session{}
	client := httpclient.New(baseURL, time.Second, func() string { return session.Token })
	reader := &scriptReader{lines: lines}
	out := &bytes.Buffer{}
	store := state.NewStore(filepath.Join(t.TempDir(), "session.json"))
	return New(client, command.Registry(), session, store, false, reader, out), reader, out, session
}

func TestSessionSendsCommands(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.RequestURI(),
			auth:   r.Header.Get("Authorization"),
			body:   string(body),
		})
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "message": "success"})
	}))
	defer server.Close()

	sess, reader, out, session := newSession(t, server.URL,
		"contest join 4",
		"set token abc",
		"contest join 4",
		`problem run 2 lang=python code="print(1)"`,
		"contest leaderboard",
		"9",
		"exit",
	)
	sess.Run(testContext(t))

	if !reader.closed {
		t.Fatalf("reader must be closed on exit")
	}
	if session.Token != "abc" {
		t.Fatalf("token not stored: %q", session.Token)
	}
	if !strings.Contains(out.String(), "requires a token") {
		t.Fatalf("expected auth hint, got %q", out.String())
	}
	if !strings.Contains(out.String(), "bye") {
		t.Fatalf("expected goodbye, got %q", out.String())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 3 {
		t.Fatalf("expected 3 requests, got %d: %+v", len(requests), requests)
	}
	if requests[0].method != "POST" || requests[0].path != "/api/v1/contests/4/join" || requests[0].auth != "Bearer abc" {
		t.Fatalf("unexpected join request: %+v", requests[0])
	}
	if requests[1].path != "/api/v1/problems/2/run" || requests[1].body != `{"code":"print(1)","language":"python"}` {
		t.Fatalf("unexpected run request: %+v", requests[1])
	}
	if requests[2].method != "GET" || requests[2].path != "/api/v1/contests/9/leaderboard" {
		t.Fatalf("unexpected leaderboard request: %+v", requests[2])
	}
	found := false
	for _, prompt := range reader.prompts {
		if prompt == "id: " {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected prompt for missing id, got %v", reader.prompts)
	}
}

func TestSessionReportsErrors(t *testing.T) {
	sess, _, out, _ := newSession(t, "http://127.0.0.1:1",
		"contest",
		"contest explode 1",
		"show token",
		"set timeout nope",
	)
	sess.Run(testContext(t))

	for _, want := range []string{"invalid command", "unknown command: contest explode", "token: <empty>", "invalid duration"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output %q", want, out.String())
		}
	}
}

func TestHelpListsCommands(t *testing.T) {
	sess, _, out, _ := newSession(t, "http://127.0.0.1:1", "help")
	sess.Run(testContext(t))
	if !strings.Contains(out.String(), "contest prizes <id>") {
		t.Fatalf("help missing contest prizes: %q", out.String())
	}
}

func TestSessionRendersEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Trace-Id", r.Header.Get("X-Trace-Id"))
		if r.URL.Path == "/api/v1/contests/5" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":20001,"message":"contest not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"message":"success","data":{"rank":1}}`))
	}))
	defer server.Close()

	sess, _, out, session := newSession(t, server.URL,
		"contest get 5",
		"contest leaderboard 6",
		"set token abcdefghijklmnop",
		"show token",
		"logout",
		"show token",
	)
	sess.Run(testContext(t))

	text := out.String()
	for _, want := range []string{
		"HTTP 404 failed",
		"code 20001: contest not found",
		"HTTP 200 ok",
		`{"rank":1}`,
		"token: abcdef...mnop",
		"token cleared",
		"token: <empty>",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output %q", want, text)
		}
	}
	first := strings.Split(text, "\n")[0]
	if !strings.Contains(first, "trace=") || strings.HasSuffix(first, "trace=") {
		t.Fatalf("trace id missing: %q", first)
	}
	if session.Token != "" {
		t.Fatalf("logout must clear the token")
	}
}

// testContext stands in for t.Context (Go 1.24+) on older toolchains: the
// returned context is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
