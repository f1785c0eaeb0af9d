// Package client talks to a Judge0-compatible execution service.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"codearena/internal/common/metrics"
	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/retry"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultLanguage     = "javascript"
	maxResponseBytes    = 4 << 20

	statusInQueue    = 1
	statusProcessing = 2
)

var languageIDs = map[string]int{
	"javascript": 63,
	"js":         63,
	"node":       63,
	"python":     71,
	"python3":    71,
	"py":         71,
	"cpp":        54,
	"c++":        54,
	"java":       62,
}

// Config holds judge client settings.
type Config struct {
	BaseURL         string        `yaml:"baseURL" validate:"required,url"`
	APIKey          string        `yaml:"apiKey"`
	APIHost         string        `yaml:"apiHost"`
	DefaultLanguage string        `yaml:"defaultLanguage"`
	Timeout         time.Duration `yaml:"timeout"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	BaseDelay       time.Duration `yaml:"baseDelay"`
	MaxDelay        time.Duration `yaml:"maxDelay"`
}

func (c *Config) applyDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = defaultLanguage
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	policy := retry.DefaultPolicy()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = policy.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = policy.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = policy.MaxDelay
	}
}

// Client executes source code on the external judge.
type Client struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
}

func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("judge base url is required")
	}
	cfg.applyDefaults()
	if _, ok := languageIDs[strings.ToLower(cfg.DefaultLanguage)]; !ok {
		return nil, fmt.Errorf("unsupported default language %q", cfg.DefaultLanguage)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{cfg: cfg, http: httpClient}
	c.policy = retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Retryable:   isTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn(context.Background(), "judge call failed, retrying",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		},
	}
	return c, nil
}

// WithRetryPolicy overrides the retry behaviour, keeping the transient-error predicate.
func (c *Client) WithRetryPolicy(policy retry.Policy) *Client {
	policy.Retryable = isTransient
	c.policy = policy
	return c
}

// LanguageID resolves a language name to its judge identifier. Unknown names
// fall back to the default language.
func (c *Client) LanguageID(language string) int {
	if id, ok := languageIDs[strings.ToLower(strings.TrimSpace(language))]; ok {
		return id
	}
	return languageIDs[strings.ToLower(c.cfg.DefaultLanguage)]
}

// Execute runs sourceCode with stdin. Each attempt gets its own Timeout; an
// attempt that times out is not retried. Transport problems are reported both as
// the Outcome of the returned Execution and as a JudgeUnavailable or
// JudgeTimeout error; judge-reported outcomes are never errors.
func (c *Client) Execute(ctx context.Context, sourceCode, language, stdin string) (model.Execution, error) {
	if strings.TrimSpace(sourceCode) == "" {
		return model.Execution{}, pkgerrors.ValidationError("code", "must not be empty")
	}
	start := time.Now()

	payload := submissionRequest{
		SourceCode: encode(sourceCode),
		LanguageID: c.LanguageID(language),
		Stdin:      encode(stdin),
	}

	var exec model.Execution
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		var callErr error
		exec, callErr = c.submit(ctx, payload)
		return callErr
	})
	if err != nil {
		code := pkgerrors.JudgeUnavailable
		exec = model.Execution{Outcome: model.VerdictJudgeUnavailable, Stderr: err.Error()}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = pkgerrors.JudgeTimeout
			exec.Outcome = model.VerdictTimedOut
		}
		metrics.ObserveJudgeCall(string(exec.Outcome), time.Since(start))
		return exec, pkgerrors.Wrapf(err, code, "judge call failed: %v", err)
	}
	metrics.ObserveJudgeCall(string(exec.Outcome), time.Since(start))
	return exec, nil
}

func (c *Client) submit(ctx context.Context, payload submissionRequest) (model.Execution, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.Execution{}, err
	}
	url := c.cfg.BaseURL + "/submissions?base64_encoded=true&wait=true"
	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return model.Execution{}, err
	}
	if resp.Token != "" && isPending(resp.Status.ID) {
		resp, err = c.poll(ctx, resp.Token)
		if err != nil {
			return model.Execution{}, err
		}
	}
	return resp.toExecution()
}

func (c *Client) poll(ctx context.Context, token string) (*submissionResponse, error) {
	url := fmt.Sprintf("%s/submissions/%s?base64_encoded=true", c.cfg.BaseURL, token)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		resp, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if !isPending(resp.Status.ID) {
			return resp, nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*submissionResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	}
	if c.cfg.APIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &transientError{err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("judge responded with status %d: %s", resp.StatusCode, truncate(string(raw), 200))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &transientError{err: statusErr}
		}
		return nil, statusErr
	}

	var decoded submissionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("malformed judge response: %w", err)
	}
	return &decoded, nil
}

type submissionRequest struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

type submissionResponse struct {
	Token         string  `json:"token"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Time          *string `json:"time"`
	Memory        *int    `json:"memory"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

func (r *submissionResponse) toExecution() (model.Execution, error) {
	exec := model.Execution{
		Status:   r.Status.Description,
		StatusID: r.Status.ID,
		Outcome:  outcomeFor(r.Status.ID),
	}
	var err error
	if exec.Stdout, err = decode(r.Stdout); err != nil {
		return model.Execution{}, fmt.Errorf("decode stdout: %w", err)
	}
	if exec.Stderr, err = decode(r.Stderr); err != nil {
		return model.Execution{}, fmt.Errorf("decode stderr: %w", err)
	}
	if exec.CompileOutput, err = decode(r.CompileOutput); err != nil {
		return model.Execution{}, fmt.Errorf("decode compile output: %w", err)
	}
	if exec.Stderr == "" && exec.CompileOutput != "" {
		exec.Stderr = exec.CompileOutput
	}
	if exec.Stderr == "" && r.Message != nil && exec.Outcome != model.VerdictAccepted {
		if msg, decodeErr := decode(r.Message); decodeErr == nil {
			exec.Stderr = msg
		}
	}
	if r.Time != nil {
		exec.Time = *r.Time
	}
	if r.Memory != nil {
		exec.Memory = *r.Memory
	}
	return exec, nil
}

// outcomeFor maps Judge0 status ids to verdicts.
func outcomeFor(statusID int) model.Verdict {
	switch {
	case statusID == 3:
		return model.VerdictAccepted
	case statusID == 4:
		return model.VerdictWrongAnswer
	case statusID == 5:
		return model.VerdictTimedOut
	case statusID == 6:
		return model.VerdictCompileError
	case statusID >= 7 && statusID <= 12:
		return model.VerdictRuntimeError
	default:
		return model.VerdictJudgeUnavailable
	}
}

func isPending(statusID int) bool {
	return statusID == statusInQueue || statusID == statusProcessing
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decode accepts the line-wrapped base64 the judge emits.
func decode(s *string) (string, error) {
	if s == nil || *s == "" {
		return "", nil
	}
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(*s)
	out, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
