package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"codearena/internal/cli/command"
	httpclient "codearena/internal/cli/http"
	"codearena/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "arena> "

// LineReader is the part of a readline instance the session needs.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	session    *state.Session
	store      *state.Store
	prettyJSON bool
	reader     LineReader
	out        io.Writer
}

// NewReadline opens a terminal line editor with persistent history.
func NewReadline(historyFile string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func New(client *httpclient.Client, commands map[string]command.Command, session *state.Session, store *state.Store, prettyJSON bool, reader LineReader, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		session:    session,
		store:      store,
		prettyJSON: prettyJSON,
		reader:     reader,
		out:        out,
	}
}

// Run reads commands until exit, EOF or context cancellation.
func (s *Session) Run(ctx context.Context) {
	defer func() { _ = s.reader.Close() }()
	for {
		if ctx.Err() != nil {
			return
		}
		s.reader.SetPrompt(prompt)
		line, err := s.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) bool {
	if line == "help" {
		s.printHelp()
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if line == "logout" {
		if err := s.store.Clear(s.session); err != nil {
			s.printLine("clear session failed: %v", err)
			return true
		}
		s.printLine("token cleared")
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|token|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8080")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.session.BaseURL = s.client.BaseURL()
		if err := s.store.Save(s.session); err != nil {
			s.printLine("save session failed: %v", err)
			return
		}
		s.printLine("base set to %s", s.client.BaseURL())
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		if len(parts) < 2 {
			s.printLine("usage: set token <access_token>")
			return
		}
		s.session.Token = parts[1]
		if err := s.store.Save(s.session); err != nil {
			s.printLine("save session failed: %v", err)
			return
		}
		s.printLine("token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		s.printLine("token: %s", s.session.MaskedToken())
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("session: %s", s.store.Path())
	default:
		s.printLine("usage: show token|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> [args] key=value ...")
	}
	key := tokens[0] + " " + tokens[1]
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	if cmd.RequiresAuth && s.session.Token == "" {
		return fmt.Errorf("%s requires a token, use: set token <access_token>", key)
	}
	params, err := command.ParseParams(cmd, tokens[2:])
	if err != nil {
		return err
	}
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	reply, err := s.client.Send(ctx, req)
	if err != nil {
		return err
	}
	s.renderReply(reply)
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		s.reader.SetPrompt(field.Prompt + ": ")
		value, err := s.reader.Readline()
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("%s is required", field.Name)
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) renderReply(reply httpclient.Reply) {
	status := "ok"
	if !reply.OK() {
		status = "failed"
	}
	s.printLine("HTTP %d %s (%s) trace=%s", reply.StatusCode, status, reply.Duration.Round(time.Millisecond), reply.TraceID)
	if reply.Envelope != nil && !reply.OK() {
		s.printLine("code %d: %s", reply.Envelope.Code, reply.Envelope.Message)
		return
	}
	payload := reply.Body
	if reply.Envelope != nil && reply.Envelope.Data != nil {
		payload = reply.Envelope.Data
	}
	if len(payload) == 0 {
		return
	}
	if s.prettyJSON {
		var indented bytes.Buffer
		if err := json.Indent(&indented, payload, "", "  "); err == nil {
			s.printLine("%s", indented.String())
			return
		}
	}
	s.printLine("%s", string(payload))
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> [args] key=value ...")
	s.printLine("system: help | exit | logout | set base|timeout|token | show token|config")
	s.printLine("commands:")
	for _, usage := range command.Usages(s.commands) {
		s.printLine("  %s", usage)
	}
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
