package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/retry"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := New(Config{BaseURL: server.URL, APIKey: "key", APIHost: "judge.example", PollInterval: time.Millisecond}, server.Client())
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	return c.WithRetryPolicy(retry.DefaultPolicy().WithSleeper(noSleep))
}

func TestExecuteAccepted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submissions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("base64_encoded") != "true" || r.URL.Query().Get("wait") != "true" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-RapidAPI-Key") != "key" || r.Header.Get("X-RapidAPI-Host") != "judge.example" {
			t.Errorf("missing api headers")
		}
		var req submissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request failed: %v", err)
		}
		if req.LanguageID != 71 || req.SourceCode != b64("print(5)") || req.Stdin != b64("2 3") {
			t.Errorf("unexpected payload: %+v", req)
		}
		_, _ = w.Write([]byte(`{"stdout":"` + b64("5\n") + `","status":{"id":3,"description":"Accepted"},"time":"0.01","memory":1024}`))
	})

	exec, err := c.Execute(testContext(t), "print(5)", "Python", "2 3")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if exec.Outcome != model.VerdictAccepted || exec.Stdout != "5\n" || exec.Memory != 1024 {
		t.Fatalf("unexpected execution: %+v", exec)
	}
}

func TestExecuteDecodesWrappedBase64(t *testing.T) {
	long := "line one of output\nline two of output\nline three of output\nline four\n"
	encoded := b64(long)
	wrapped := encoded[:20] + "\\n" + encoded[20:]
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stdout":"` + wrapped + `","status":{"id":3,"description":"Accepted"}}`))
	})
	exec, err := c.Execute(testContext(t), "code", "javascript", "")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if exec.Stdout != long {
		t.Fatalf("unexpected stdout: %q", exec.Stdout)
	}
}

func TestExecutePollsPendingSubmission(t *testing.T) {
	var polls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"token":"abc","status":{"id":1,"description":"In Queue"}}`))
			return
		}
		if r.URL.Path != "/submissions/abc" {
			t.Errorf("unexpected poll path: %s", r.URL.Path)
		}
		if polls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"token":"abc","status":{"id":2,"description":"Processing"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"abc","stderr":"` + b64("boom") + `","status":{"id":11,"description":"Runtime Error (NZEC)"}}`))
	})

	exec, err := c.Execute(testContext(t), "code", "cpp", "")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if exec.Outcome != model.VerdictRuntimeError || exec.Stderr != "boom" {
		t.Fatalf("unexpected execution: %+v", exec)
	}
	if polls.Load() != 2 {
		t.Fatalf("expected 2 polls, got %d", polls.Load())
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"stdout":"` + b64("ok") + `","status":{"id":3,"description":"Accepted"}}`))
	})

	exec, err := c.Execute(testContext(t), "code", "java", "")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if exec.Outcome != model.VerdictAccepted || calls.Load() != 3 {
		t.Fatalf("unexpected result after %d calls: %+v", calls.Load(), exec)
	}
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	exec, err := c.Execute(testContext(t), "code", "java", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if pkgerrors.GetCode(err) != pkgerrors.JudgeUnavailable {
		t.Fatalf("unexpected error code: %v", err)
	}
	if exec.Outcome != model.VerdictJudgeUnavailable {
		t.Fatalf("unexpected outcome: %s", exec.Outcome)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome model.Verdict
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad"}`, outcome: model.VerdictJudgeUnavailable},
		{name: "malformed json", status: http.StatusOK, body: `not json`, outcome: model.VerdictJudgeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			exec, err := c.Execute(testContext(t), "code", "js", "")
			if err == nil || exec.Outcome != tt.outcome {
				t.Fatalf("unexpected result: %+v err=%v", exec, err)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected a single attempt, got %d", calls.Load())
			}
		})
	}
}

func TestExecuteCompileErrorIsNotAnError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"compile_output":"` + b64("syntax error") + `","status":{"id":6,"description":"Compilation Error"}}`))
	})
	exec, err := c.Execute(testContext(t), "int main(", "c++", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Outcome != model.VerdictCompileError || exec.Stderr != "syntax error" || calls.Load() != 1 {
		t.Fatalf("unexpected execution: %+v", exec)
	}
}

func TestExecuteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	c, err := New(Config{BaseURL: server.URL, Timeout: 20 * time.Millisecond}, server.Client())
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	c.WithRetryPolicy(retry.DefaultPolicy().WithSleeper(noSleep))

	exec, err := c.Execute(testContext(t), "while(true){}", "js", "")
	if pkgerrors.GetCode(err) != pkgerrors.JudgeTimeout {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Outcome != model.VerdictTimedOut {
		t.Fatalf("unexpected outcome: %s", exec.Outcome)
	}
}

func TestExecuteTimeoutAppliesPerAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			time.Sleep(120 * time.Millisecond)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"stdout":"` + b64("ok") + `","status":{"id":3,"description":"Accepted"}}`))
	}))
	t.Cleanup(server.Close)
	c, err := New(Config{BaseURL: server.URL, Timeout: 200 * time.Millisecond}, server.Client())
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	c.WithRetryPolicy(retry.DefaultPolicy().WithSleeper(noSleep))

	exec, err := c.Execute(testContext(t), "code", "js", "")
	if err != nil {
		t.Fatalf("later attempts must get a full timeout: %v", err)
	}
	if exec.Outcome != model.VerdictAccepted || calls.Load() != 3 {
		t.Fatalf("unexpected result after %d calls: %+v", calls.Load(), exec)
	}
}

func TestLanguageID(t *testing.T) {
	c, err := New(Config{BaseURL: "http://judge.local"}, nil)
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	tests := map[string]int{
		"javascript": 63,
		"Python":     71,
		"C++":        54,
		"cpp":        54,
		"java":       62,
		"brainfuck":  63,
		"":           63,
	}
	for language, want := range tests {
		if got := c.LanguageID(language); got != want {
			t.Fatalf("LanguageID(%q) = %d, want %d", language, got, want)
		}
	}
}

func TestStatusMapping(t *testing.T) {
	tests := map[int]model.Verdict{
		3:  model.VerdictAccepted,
		4:  model.VerdictWrongAnswer,
		5:  model.VerdictTimedOut,
		6:  model.VerdictCompileError,
		7:  model.VerdictRuntimeError,
		12: model.VerdictRuntimeError,
		13: model.VerdictJudgeUnavailable,
		14: model.VerdictJudgeUnavailable,
	}
	for id, want := range tests {
		if got := outcomeFor(id); got != want {
			t.Fatalf("outcomeFor(%d) = %s, want %s", id, got, want)
		}
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
