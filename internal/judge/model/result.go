package model

import "encoding/json"

// Verdict is the categorical outcome of running code against a test case.
type Verdict string

const (
	VerdictAccepted         Verdict = "Accepted"
	VerdictWrongAnswer      Verdict = "WrongAnswer"
	VerdictRuntimeError     Verdict = "RuntimeError"
	VerdictCompileError     Verdict = "CompileError"
	VerdictTimedOut         Verdict = "TimedOut"
	VerdictJudgeUnavailable Verdict = "JudgeUnavailable"
)

// Ran reports whether the program executed to completion, so its output is comparable.
func (v Verdict) Ran() bool {
	return v == VerdictAccepted || v == VerdictWrongAnswer
}

// Mode selects which test cases are evaluated.
type Mode string

const (
	ModeRun    Mode = "run"
	ModeSubmit Mode = "submit"
)

// Execution is the decoded result of one judge call.
type Execution struct {
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	CompileOutput string  `json:"compileOutput,omitempty"`
	Status        string  `json:"status"`
	StatusID      int     `json:"statusId"`
	Time          string  `json:"time,omitempty"`
	Memory        int     `json:"memory,omitempty"`
	Outcome       Verdict `json:"outcome"`
}

// TestCase is one input/expected pair. Both sides hold JSON values; strings
// are used verbatim and anything else is sent as compact JSON text.
type TestCase struct {
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected"`
	IsHidden bool            `json:"isHidden"`
}

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Index    int     `json:"-"`
	TestCase int     `json:"testCase"`
	Input    string  `json:"input,omitempty"`
	Expected string  `json:"expected,omitempty"`
	Actual   string  `json:"actual,omitempty"`
	Passed   bool    `json:"passed"`
	Verdict  Verdict `json:"verdict"`
	Stderr   string  `json:"error,omitempty"`
	Hidden   bool    `json:"hidden,omitempty"`
}

// SubmissionResult aggregates the per-case results of a run or submit.
type SubmissionResult struct {
	Verdict     Verdict      `json:"status"`
	TestResults []CaseResult `json:"testResults"`
	Stdout      string       `json:"output,omitempty"`
	Stderr      string       `json:"stderr,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// Accepted reports whether every case passed.
func (r *SubmissionResult) Accepted() bool {
	return r != nil && r.Verdict == VerdictAccepted
}

// Redacted returns a copy with hidden case payloads blanked for API output.
func (r *SubmissionResult) Redacted() *SubmissionResult {
	if r == nil {
		return nil
	}
	out := *r
	out.TestResults = make([]CaseResult, len(r.TestResults))
	for i, item := range r.TestResults {
		if item.Hidden {
			item.Input, item.Expected, item.Actual, item.Stderr = "", "", "", ""
		}
		out.TestResults[i] = item
	}
	return &out
}
