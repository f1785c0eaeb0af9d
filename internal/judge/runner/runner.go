// Package runner evaluates source code against a problem's test cases.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"

	"codearena/internal/common/metrics"
	"codearena/internal/judge/model"
	problemmodel "codearena/internal/problem/model"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultConcurrency = 4

	noCasesMessage = "no test cases available for verification"
)

// Executor runs one program against stdin.
type Executor interface {
	Execute(ctx context.Context, sourceCode, language, stdin string) (model.Execution, error)
}

type Config struct {
	Concurrency int `yaml:"concurrency"`
}

// Runner fans test cases out to the judge through a bounded pool shared by all submissions.
type Runner struct {
	executor Executor
	sem      chan struct{}
}

func New(executor Executor, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Runner{
		executor: executor,
		sem:      make(chan struct{}, cfg.Concurrency),
	}
}

// Run evaluates sourceCode. Run mode only uses visible cases, submit mode uses all of them.
// Judge failures are reported in the result; the error is only set for invalid input.
func (r *Runner) Run(ctx context.Context, problem *problemmodel.Problem, sourceCode, language string, mode model.Mode) (*model.SubmissionResult, error) {
	if strings.TrimSpace(sourceCode) == "" {
		return nil, pkgerrors.ValidationError("code", "must not be empty")
	}
	if strings.TrimSpace(language) == "" {
		return nil, pkgerrors.ValidationError("language", "must not be empty")
	}
	if problem == nil {
		return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
	}

	cases := problem.TestCases
	if mode == model.ModeRun {
		cases = problem.VisibleCases()
	}

	var result *model.SubmissionResult
	if len(cases) == 0 {
		result = r.runAdHoc(ctx, sourceCode, language, mode)
	} else {
		result = aggregate(r.runCases(ctx, cases, sourceCode, language))
	}

	metrics.ObserveVerdict(string(mode), string(result.Verdict))
	logger.Debug(ctx, "submission evaluated",
		zap.Int64("problem_id", problem.ID),
		zap.String("mode", string(mode)),
		zap.String("verdict", string(result.Verdict)),
		zap.Int("cases", len(cases)),
	)
	return result, nil
}

func (r *Runner) runAdHoc(ctx context.Context, sourceCode, language string, mode model.Mode) *model.SubmissionResult {
	exec := r.execute(ctx, sourceCode, language, "")
	result := &model.SubmissionResult{
		Verdict:     exec.Outcome,
		TestResults: []model.CaseResult{},
		Stdout:      exec.Stdout,
		Stderr:      exec.Stderr,
	}
	if mode == model.ModeSubmit {
		result.Message = noCasesMessage
	}
	return result
}

func (r *Runner) runCases(ctx context.Context, cases []model.TestCase, sourceCode, language string) []model.CaseResult {
	results := make([]model.CaseResult, len(cases))
	var wg sync.WaitGroup
	for i, tc := range cases {
		input := caseText(tc.Input)
		expected := caseText(tc.Expected)
		results[i] = model.CaseResult{
			Index:    i,
			TestCase: i + 1,
			Input:    input,
			Expected: expected,
			Hidden:   tc.IsHidden,
		}

		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			results[i].Verdict = model.VerdictJudgeUnavailable
			results[i].Stderr = ctx.Err().Error()
			continue
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-r.sem }()
			exec := r.execute(ctx, sourceCode, language, results[idx].Input)
			judgeCase(&results[idx], exec)
		}(i)
	}
	wg.Wait()
	return results
}

func (r *Runner) execute(ctx context.Context, sourceCode, language, stdin string) model.Execution {
	exec, err := r.executor.Execute(ctx, sourceCode, language, stdin)
	if err != nil {
		logger.Warn(ctx, "judge call failed", zap.Error(err))
		if exec.Outcome == "" {
			exec.Outcome = model.VerdictJudgeUnavailable
		}
		if exec.Stderr == "" {
			exec.Stderr = err.Error()
		}
	}
	return exec
}

func judgeCase(result *model.CaseResult, exec model.Execution) {
	result.Actual = exec.Stdout
	result.Stderr = exec.Stderr
	if !exec.Outcome.Ran() {
		result.Verdict = exec.Outcome
		return
	}
	result.Passed = strings.TrimSpace(exec.Stdout) == strings.TrimSpace(result.Expected)
	if result.Passed {
		result.Verdict = model.VerdictAccepted
	} else {
		result.Verdict = model.VerdictWrongAnswer
	}
}

// aggregate reduces ordered case results to one verdict: the lowest failing
// index decides, an unreachable judge included.
func aggregate(results []model.CaseResult) *model.SubmissionResult {
	out := &model.SubmissionResult{Verdict: model.VerdictAccepted, TestResults: results}
	for i := range results {
		if results[i].Passed {
			continue
		}
		out.Verdict = results[i].Verdict
		out.Stdout = results[i].Actual
		out.Stderr = results[i].Stderr
		if out.Verdict == model.VerdictJudgeUnavailable {
			out.Message = "judge unavailable, please retry"
		}
		return out
	}
	return out
}

// caseText turns a stored JSON value into judge text: strings verbatim, anything else compact JSON.
func caseText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
