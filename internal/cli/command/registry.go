package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	idField       = Field{Name: "id", Prompt: "id", Type: FieldInt64, Required: true}
	problemField  = Field{Name: "problem_id", Aliases: []string{"problem", "pid"}, Prompt: "problem_id", Type: FieldInt64, Required: true}
	languageField = Field{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true}
	codeField     = Field{Name: "code", Prompt: "code", Type: FieldString}
	fileField     = Field{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile}
	limitField    = Field{Name: "limit", Prompt: "limit", Type: FieldInt, Query: true}
	offsetField   = Field{Name: "offset", Prompt: "offset", Type: FieldInt, Query: true}
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "problem",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/problems",
			Usage:        "problem list [difficulty=easy] [limit=20] [offset=0]",
			Fields: []Field{
				{Name: "difficulty", Prompt: "difficulty", Type: FieldString, Query: true},
				limitField,
				offsetField,
			},
		},
		{
			Service:      "problem",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/problems/:id",
			Usage:        "problem get <id>",
			Fields:       []Field{idField},
		},
		{
			Service:      "problem",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/api/v1/problems/:id/run",
			Usage:        "problem run <id> language=python source_file=./main.py",
			Fields:       []Field{idField, languageField, codeField, fileField},
		},
		{
			Service:      "problem",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/problems/:id/submit",
			RequiresAuth: true,
			Usage:        "problem submit <id> language=python source_file=./main.py",
			Fields:       []Field{idField, languageField, codeField, fileField},
		},
		{
			Service:      "contest",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/contests",
			Usage:        "contest list [status=active] [type=weekly] [limit=20] [offset=0]",
			Fields: []Field{
				{Name: "status", Prompt: "status", Type: FieldString, Query: true},
				{Name: "type", Prompt: "type", Type: FieldString, Query: true},
				limitField,
				offsetField,
			},
		},
		{
			Service:      "contest",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:id",
			Usage:        "contest get <id>",
			Fields:       []Field{idField},
		},
		{
			Service:      "contest",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/contests",
			RequiresAuth: true,
			Usage:        "contest create file=./contest.json",
			Fields: []Field{
				{Name: "file", Prompt: "contest json file", Type: FieldFile, Required: true},
			},
		},
		{
			Service:      "contest",
			Action:       "join",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/join",
			RequiresAuth: true,
			Usage:        "contest join <id>",
			Fields:       []Field{idField},
		},
		{
			Service:      "contest",
			Action:       "start",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/start",
			RequiresAuth: true,
			Usage:        "contest start <id>",
			Fields:       []Field{idField},
		},
		{
			Service:      "contest",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/problems/:problem_id/submit",
			RequiresAuth: true,
			Usage:        "contest submit <id> <problem_id> language=python source_file=./main.py",
			Fields:       []Field{idField, problemField, languageField, codeField, fileField},
		},
		{
			Service:      "contest",
			Action:       "leaderboard",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:id/leaderboard",
			Usage:        "contest leaderboard <id>",
			Fields:       []Field{idField},
		},
		{
			Service:      "contest",
			Action:       "status",
			Method:       "PATCH",
			PathTemplate: "/api/v1/contests/:id/status",
			RequiresAuth: true,
			Usage:        "contest status <id> <active|completed|cancelled>",
			Fields: []Field{
				idField,
				{Name: "status", Prompt: "status", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "contest",
			Action:       "prizes",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/prizes",
			RequiresAuth: true,
			Usage:        "contest prizes <id>",
			Fields:       []Field{idField},
		},
		{
			Service:      "me",
			Action:       "solved",
			Method:       "GET",
			PathTemplate: "/api/v1/me/solved",
			RequiresAuth: true,
			Usage:        "me solved [limit=50]",
			Fields:       []Field{limitField},
		},
		{
			Service:      "me",
			Action:       "source",
			Method:       "GET",
			PathTemplate: "/api/v1/me/solved/:problem_id/source",
			RequiresAuth: true,
			Usage:        "me source <problem_id>",
			Fields:       []Field{problemField},
		},
		{
			Service:      "me",
			Action:       "activity",
			Method:       "GET",
			PathTemplate: "/api/v1/me/activity",
			RequiresAuth: true,
			Usage:        "me activity [limit=20]",
			Fields:       []Field{limitField},
		},
		{
			Service:      "leaderboard",
			Action:       "global",
			Method:       "GET",
			PathTemplate: "/api/v1/leaderboard",
			Usage:        "leaderboard global [limit=10]",
			Fields:       []Field{limitField},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Usages returns the usage line of every command in a stable order.
func Usages(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, commands[key].Usage)
	}
	return lines
}

// BuildRequest turns a command and its parameters into an HTTP request.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	if err := validateFields(cmd.Fields, params); err != nil {
		return RequestSpec{}, err
	}
	path, err := buildPath(cmd.PathTemplate, cmd.Fields, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if query := buildQuery(cmd.Fields, params); query != "" {
		path += "?" + query
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		switch p := payload.(type) {
		case nil:
		case json.RawMessage:
			body = p
		default:
			body, err = json.Marshal(p)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func validateFields(fields []Field, params Params) error {
	for _, field := range fields {
		value := params.Get(field.Name)
		if value == "" {
			continue
		}
		switch field.Type {
		case FieldInt:
			if _, err := ParseInt(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		case FieldInt64:
			if _, err := ParseInt64(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
	}
	return nil
}

func buildPath(template string, fields []Field, params Params) (string, error) {
	path := template
	for _, field := range fields {
		placeholder := ":" + field.Name
		if !strings.Contains(path, placeholder) {
			continue
		}
		value := params.Get(field.Name)
		if value == "" {
			return "", fmt.Errorf("missing path parameter: %s", field.Name)
		}
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
	}
	return path, nil
}

func buildQuery(fields []Field, params Params) string {
	values := url.Values{}
	for _, field := range fields {
		if !field.Query {
			continue
		}
		if value := params.Get(field.Name); value != "" {
			values.Set(field.Name, value)
		}
	}
	return values.Encode()
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Key() {
	case "problem run", "problem submit", "contest submit":
		return buildCodePayload(params)
	case "contest create":
		raw, err := ReadFile(params.Get("file"))
		if err != nil {
			return nil, err
		}
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("invalid json content in %s", params.Get("file"))
		}
		return json.RawMessage(raw), nil
	case "contest status":
		return map[string]string{"status": params.Get("status")}, nil
	}
	return nil, nil
}

func buildCodePayload(params Params) (interface{}, error) {
	code := params.Get("code")
	if code == "" && params.Get("source_file") != "" {
		var err error
		code, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code or source_file is required")
	}
	return map[string]string{
		"code":     code,
		"language": params.Get("language"),
	}, nil
}
