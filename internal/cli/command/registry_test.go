package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func mustCommand(t *testing.T, key string) Command {
	t.Helper()
	cmd, ok := Registry()[key]
	if !ok {
		t.Fatalf("command %q not registered", key)
	}
	return cmd
}

func TestRegistryKeysMatchCommands(t *testing.T) {
	for key, cmd := range Registry() {
		if key != cmd.Key() {
			t.Fatalf("key %q does not match command %q", key, cmd.Key())
		}
		if cmd.Usage == "" {
			t.Fatalf("command %q has no usage", key)
		}
	}
}

func TestParseParamsPositional(t *testing.T) {
	cmd := mustCommand(t, "contest submit")
	params, err := ParseParams(cmd, []string{"3", "7", "lang=python", "code=print(1)"})
	if err != nil {
		t.Fatalf("parse params failed: %v", err)
	}
	if params.Get("id") != "3" || params.Get("problem_id") != "7" {
		t.Fatalf("unexpected positional binding: %v", params)
	}
	if params.Get("language") != "python" {
		t.Fatalf("alias not canonicalized: %v", params)
	}

	if _, err := ParseParams(cmd, []string{"3", "7", "python", "extra"}); err == nil {
		t.Fatalf("expected error for extra argument")
	}
	if _, err := ParseParams(cmd, []string{"=x"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestBuildRequestContestSubmit(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "main.py")
	if err := os.WriteFile(source, []byte("print(input())"), 0o600); err != nil {
		t.Fatalf("write source failed: %v", err)
	}
	cmd := mustCommand(t, "contest submit")
	params := Params{"id": "3", "problem_id": "7", "language": "python", "file": source}

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/v1/contests/3/problems/7/submit" {
		t.Fatalf("unexpected request: %s %s", req.Method, req.Path)
	}
	var body map[string]string
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if body["code"] != "print(input())" || body["language"] != "python" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestBuildRequestRequiresCode(t *testing.T) {
	cmd := mustCommand(t, "problem run")
	if _, err := BuildRequest(cmd, Params{"id": "1", "language": "go"}); err == nil {
		t.Fatalf("expected error without code")
	}
}

func TestBuildRequestQueryAndValidation(t *testing.T) {
	cmd := mustCommand(t, "contest list")
	req, err := BuildRequest(cmd, Params{"status": "active", "limit": "5"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Path != "/api/v1/contests?limit=5&status=active" {
		t.Fatalf("unexpected path: %s", req.Path)
	}
	if req.Body != nil {
		t.Fatalf("GET must not carry a body")
	}

	if _, err := BuildRequest(cmd, Params{"limit": "many"}); err == nil {
		t.Fatalf("expected error for non-numeric limit")
	}
	get := mustCommand(t, "contest get")
	if _, err := BuildRequest(get, Params{}); err == nil {
		t.Fatalf("expected error for missing path parameter")
	}
}

func TestBuildRequestStatusAndCreate(t *testing.T) {
	req, err := BuildRequest(mustCommand(t, "contest status"), Params{"id": "2", "status": "cancelled"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "PATCH" || string(req.Body) != `{"status":"cancelled"}` {
		t.Fatalf("unexpected status request: %s %s", req.Method, req.Body)
	}

	dir := t.TempDir()
	file := filepath.Join(dir, "contest.json")
	if err := os.WriteFile(file, []byte(`{"title":"Daily"}`), 0o600); err != nil {
		t.Fatalf("write file failed: %v", err)
	}
	req, err = BuildRequest(mustCommand(t, "contest create"), Params{"file": file})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if string(req.Body) != `{"title":"Daily"}` {
		t.Fatalf("unexpected create body: %s", req.Body)
	}

	if err := os.WriteFile(file, []byte(`{broken`), 0o600); err != nil {
		t.Fatalf("write file failed: %v", err)
	}
	if _, err := BuildRequest(mustCommand(t, "contest create"), Params{"file": file}); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}
