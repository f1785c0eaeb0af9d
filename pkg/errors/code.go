package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges:
// 10000-10999: system & common
// 11000-11999: auth
// 12000-12999: problem
// 13000-13999: submission & judge
// 14000-14999: contest
const (
	Success ErrorCode = 0

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	ValidationFailed ErrorCode = 10300
	InvalidFormat    ErrorCode = 10301

	StorageError ErrorCode = 10400
	MQError      ErrorCode = 10500

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	ProblemNotFound   ErrorCode = 12000
	ProblemInactive   ErrorCode = 12001
	ProblemSlugExists ErrorCode = 12002
	TestCaseInvalid   ErrorCode = 12102

	SubmitTooFrequently  ErrorCode = 13004
	SubmissionInFlight   ErrorCode = 13005
	LanguageNotSupported ErrorCode = 13003
	CodeTooLarge         ErrorCode = 13002
	JudgeUnavailable     ErrorCode = 13100
	JudgeTimeout         ErrorCode = 13101

	ContestNotFound        ErrorCode = 14000
	ParticipantNotFound    ErrorCode = 14001
	ContestFull            ErrorCode = 14100
	AlreadyRegistered      ErrorCode = 14101
	RegistrationClosed     ErrorCode = 14102
	NotRegistered          ErrorCode = 14103
	AlreadyStarted         ErrorCode = 14200
	NotStarted             ErrorCode = 14201
	AttemptExpired         ErrorCode = 14202
	AlreadySolved          ErrorCode = 14203
	ContestNotActive       ErrorCode = 14204
	ProblemNotInContest    ErrorCode = 14205
	InvalidTransition      ErrorCode = 14300
	ConcurrentModification ErrorCode = 14301
)

var errorMessages = map[ErrorCode]string{
	Success:             "success",
	InternalServerError: "internal server error",
	InvalidParams:       "invalid parameters",
	NotFound:            "resource not found",
	Unauthorized:        "unauthorized",
	Forbidden:           "forbidden",
	TooManyRequests:     "too many requests",
	ServiceUnavailable:  "service unavailable",
	Timeout:             "request timeout",

	DatabaseError:       "database error",
	RecordNotFound:      "record not found",
	RecordAlreadyExists: "record already exists",
	TransactionFailed:   "transaction failed",
	CacheError:          "cache error",
	LockFailed:          "failed to acquire lock",
	ValidationFailed:    "validation failed",
	InvalidFormat:       "invalid format",
	StorageError:        "object storage error",
	MQError:             "message queue error",

	TokenExpired: "token expired",
	TokenInvalid: "token invalid",

	ProblemNotFound:   "problem not found",
	ProblemInactive:   "problem is not active",
	ProblemSlugExists: "problem slug already exists",
	TestCaseInvalid:   "invalid test case",

	SubmitTooFrequently:  "submitting too frequently",
	SubmissionInFlight:   "a submission for this problem is already being judged",
	LanguageNotSupported: "language not supported",
	CodeTooLarge:         "code too large",
	JudgeUnavailable:     "judge unavailable",
	JudgeTimeout:         "judge timed out",

	ContestNotFound:        "contest not found",
	ParticipantNotFound:    "participant not found",
	ContestFull:            "contest is full",
	AlreadyRegistered:      "already registered for this contest",
	RegistrationClosed:     "contest is not open for registration",
	NotRegistered:          "not registered for this contest",
	AlreadyStarted:         "contest attempt already started",
	NotStarted:             "contest attempt not started",
	AttemptExpired:         "contest attempt has expired",
	AlreadySolved:          "problem already solved",
	ContestNotActive:       "contest is not active",
	ProblemNotInContest:    "problem is not part of this contest",
	InvalidTransition:      "invalid contest status transition",
	ConcurrentModification: "contest was modified concurrently, retry later",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// IsStateConflict reports whether the code belongs to the contest state conflict family.
func (c ErrorCode) IsStateConflict() bool {
	return c >= 14100 && c < 14400
}

// HTTPStatus maps the error code to an HTTP status code.
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return http.StatusUnauthorized
	case c == Forbidden, c == NotRegistered:
		return http.StatusForbidden
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound, c == ProblemInactive,
		c == ContestNotFound, c == ParticipantNotFound:
		return http.StatusNotFound
	case c == TooManyRequests, c == SubmitTooFrequently, c == SubmissionInFlight:
		return http.StatusTooManyRequests
	case c == JudgeUnavailable:
		return http.StatusBadGateway
	case c == JudgeTimeout, c == Timeout:
		return http.StatusGatewayTimeout
	case c == ServiceUnavailable:
		return http.StatusServiceUnavailable
	case c == RecordAlreadyExists, c == ProblemSlugExists, c.IsStateConflict():
		return http.StatusConflict
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge, c == TestCaseInvalid:
		return http.StatusBadRequest
	case c >= 10300 && c < 10400:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
